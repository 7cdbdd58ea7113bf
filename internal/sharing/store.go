package sharing

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Store manages wallet-keyed capability grants on content records.
// Grants live entirely off-chain; the wallet address is an opaque
// capability key and is never signature-verified here.
type Store struct {
	repo   Repository
	trail  audit.Recorder
	logger *logger.Logger
}

// NewStore creates a new capability grant store
func NewStore(repo Repository, trail audit.Recorder, log *logger.Logger) *Store {
	return &Store{
		repo:   repo,
		trail:  trail,
		logger: log,
	}
}

// Grant issues (or re-issues) a capability on resourceID to a wallet.
// Granting the same pair again replaces the previous grant whatever
// its state, so re-granting after expiry or revocation needs no
// special path.
func (s *Store) Grant(ctx context.Context, actorID, resourceID, walletAddress string, expirationDays int) (*types.CapabilityGrant, *types.LedgerWarning, error) {
	normalized, err := NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, nil, err
	}
	if resourceID == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "resource id is required", nil)
	}
	if expirationDays < types.MinGrantExpirationDays || expirationDays > types.MaxGrantExpirationDays {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "expiration must be between 1 and 365 days",
			map[string]interface{}{"expiration_days": expirationDays})
	}

	now := time.Now().UTC()
	grant := &types.CapabilityGrant{
		ID:             uuid.New().String(),
		ResourceID:     resourceID,
		WalletAddress:  normalized,
		GrantedAt:      now,
		ExpiresAt:      now.AddDate(0, 0, expirationDays),
		ExpirationDays: expirationDays,
		Active:         true,
	}

	stored, err := s.repo.Upsert(ctx, grant)
	if err != nil {
		return nil, nil, err
	}

	warning, err := s.trail.Append(ctx, &types.AuditEntry{
		ActorID:    actorID,
		TargetID:   normalized,
		Action:     types.ActionGrantCreated,
		ResourceID: resourceID,
		Details: map[string]interface{}{
			"expiration_days": expirationDays,
			"expires_at":      stored.ExpiresAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, nil, err
	}

	return stored, warning, nil
}

// Revoke deactivates an active grant. Revoking a missing or already
// inactive grant is NotFound; revocation is not idempotent.
func (s *Store) Revoke(ctx context.Context, actorID, resourceID, walletAddress string) (*types.LedgerWarning, error) {
	normalized, err := NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, err
	}

	revoked, err := s.repo.Deactivate(ctx, resourceID, normalized)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no active grant for resource and wallet")
	}

	warning, err := s.trail.Append(ctx, &types.AuditEntry{
		ActorID:    actorID,
		TargetID:   normalized,
		Action:     types.ActionGrantRevoked,
		ResourceID: resourceID,
	})
	if err != nil {
		return nil, err
	}

	return warning, nil
}

// CheckAccess reports whether the wallet holds a usable capability on
// the resource at asOf. Expiry is evaluated here, at read time; the
// stored row is never rewritten when it lapses.
func (s *Store) CheckAccess(ctx context.Context, resourceID, walletAddress string, asOf time.Time) (bool, error) {
	normalized, err := NormalizeWalletAddress(walletAddress)
	if err != nil {
		return false, err
	}

	grant, err := s.repo.GetByPair(ctx, resourceID, normalized)
	if err != nil {
		if types.IsErrorType(err, types.ErrorTypeNotFound) {
			return false, nil
		}
		return false, err
	}

	if !grant.Usable(asOf) {
		return false, nil
	}

	if err := s.repo.TouchAccess(ctx, resourceID, normalized, asOf); err != nil {
		// The access already succeeded; losing the counter bump is
		// not worth failing the check over.
		s.logger.WithError(err).Warn("Failed to record grant access")
	}

	return true, nil
}

// ListForWallet returns the grants a wallet can currently use.
// Revoked and expired grants stay in storage but are filtered out
// here; usability is evaluated at read time like CheckAccess.
func (s *Store) ListForWallet(ctx context.Context, walletAddress string) ([]*types.CapabilityGrant, error) {
	normalized, err := NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, err
	}

	grants, err := s.repo.ListByWallet(ctx, normalized)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	usable := make([]*types.CapabilityGrant, 0, len(grants))
	for _, grant := range grants {
		if grant.Usable(now) {
			usable = append(usable, grant)
		}
	}

	return usable, nil
}

// NormalizeWalletAddress validates the 0x-prefixed 20-byte hex form
// and lowercases it so lookups are case-insensitive.
func NormalizeWalletAddress(address string) (string, error) {
	if !walletAddressPattern.MatchString(address) {
		return "", types.NewValidationError(types.ErrCodeInvalidInput, "wallet address must be 0x followed by 40 hex characters", nil)
	}
	return strings.ToLower(address), nil
}

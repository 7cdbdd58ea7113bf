package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Repository persists capability grants. One grant exists per
// (resource, wallet) pair; re-granting overwrites it in place.
type Repository interface {
	Upsert(ctx context.Context, grant *types.CapabilityGrant) (*types.CapabilityGrant, error)
	GetByPair(ctx context.Context, resourceID, walletAddress string) (*types.CapabilityGrant, error)
	ListByWallet(ctx context.Context, walletAddress string) ([]*types.CapabilityGrant, error)
	Deactivate(ctx context.Context, resourceID, walletAddress string) (bool, error)
	TouchAccess(ctx context.Context, resourceID, walletAddress string, at time.Time) error
}

// SQLRepository implements Repository on PostgreSQL
type SQLRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRepository creates a new capability grant repository
func NewRepository(db *sql.DB, log *logger.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: log,
	}
}

const grantColumns = `
	id, resource_id, wallet_address, granted_at, expires_at, expiration_days,
	active, access_count, last_accessed_at`

// Upsert creates or replaces the grant for a (resource, wallet) pair.
// A replaced grant gets fresh timestamps and a reset access counter.
func (r *SQLRepository) Upsert(ctx context.Context, grant *types.CapabilityGrant) (*types.CapabilityGrant, error) {
	query := fmt.Sprintf(`
		INSERT INTO capability_grants (id, resource_id, wallet_address, granted_at, expires_at, expiration_days, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT ON CONSTRAINT capability_grants_resource_wallet_key DO UPDATE
		SET granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			expiration_days = EXCLUDED.expiration_days,
			active = TRUE,
			access_count = 0,
			last_accessed_at = NULL
		RETURNING %s`, grantColumns)

	row := r.db.QueryRowContext(ctx, query,
		grant.ID,
		grant.ResourceID,
		grant.WalletAddress,
		grant.GrantedAt,
		grant.ExpiresAt,
		grant.ExpirationDays,
	)

	stored, err := scanGrant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}

	return stored, nil
}

// GetByPair retrieves the grant for a (resource, wallet) pair
func (r *SQLRepository) GetByPair(ctx context.Context, resourceID, walletAddress string) (*types.CapabilityGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM capability_grants
		WHERE resource_id = $1 AND wallet_address = $2`, grantColumns)

	row := r.db.QueryRowContext(ctx, query, resourceID, walletAddress)
	grant, err := scanGrant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no grant for resource and wallet")
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	return grant, nil
}

// ListByWallet returns all grants held by a wallet, newest first.
// Expired and revoked grants are included; usability is the caller's
// read-time call.
func (r *SQLRepository) ListByWallet(ctx context.Context, walletAddress string) ([]*types.CapabilityGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM capability_grants
		WHERE wallet_address = $1
		ORDER BY granted_at DESC`, grantColumns)

	rows, err := r.db.QueryContext(ctx, query, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*types.CapabilityGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// Deactivate revokes an active grant. Returns false when no active
// grant exists for the pair.
func (r *SQLRepository) Deactivate(ctx context.Context, resourceID, walletAddress string) (bool, error) {
	query := `
		UPDATE capability_grants
		SET active = FALSE
		WHERE resource_id = $1 AND wallet_address = $2 AND active = TRUE`

	result, err := r.db.ExecContext(ctx, query, resourceID, walletAddress)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate grant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// TouchAccess bumps the access counter after a successful check
func (r *SQLRepository) TouchAccess(ctx context.Context, resourceID, walletAddress string, at time.Time) error {
	query := `
		UPDATE capability_grants
		SET access_count = access_count + 1, last_accessed_at = $1
		WHERE resource_id = $2 AND wallet_address = $3`

	if _, err := r.db.ExecContext(ctx, query, at, resourceID, walletAddress); err != nil {
		return fmt.Errorf("failed to record grant access: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (*types.CapabilityGrant, error) {
	var grant types.CapabilityGrant
	var lastAccessedAt sql.NullTime

	err := row.Scan(
		&grant.ID,
		&grant.ResourceID,
		&grant.WalletAddress,
		&grant.GrantedAt,
		&grant.ExpiresAt,
		&grant.ExpirationDays,
		&grant.Active,
		&grant.AccessCount,
		&lastAccessedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastAccessedAt.Valid {
		grant.LastAccessedAt = &lastAccessedAt.Time
	}

	return &grant, nil
}

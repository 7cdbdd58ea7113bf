package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/monitoring"
	"github.com/caremesh/consentd/pkg/types"
)

// Decision reasons, in precedence order.
const (
	ReasonEmergencyOverride = "emergency-override"
	ReasonConsent           = "consent"
	ReasonCapabilityGrant   = "capability-grant"
	ReasonNoGrant           = "no-grant"
)

// ConsentChecker answers whether a consent relationship currently
// authorizes the accessor.
type ConsentChecker interface {
	IsActive(ctx context.Context, subjectID, accessorID string, asOf time.Time) (bool, error)
}

// CapabilityChecker answers whether a wallet holds a usable capability
// on a resource.
type CapabilityChecker interface {
	CheckAccess(ctx context.Context, resourceID, walletAddress string, asOf time.Time) (bool, error)
}

// Request is one access question put to the engine. WalletAddress is
// optional; without it the capability path is skipped.
type Request struct {
	SubjectID     string `json:"subject_id"`
	AccessorID    string `json:"accessor_id"`
	ResourceID    string `json:"resource_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Decision is the engine's answer. Reason names the authorization
// path that allowed access, or "no-grant" on denial.
type Decision struct {
	Allowed   bool                 `json:"allowed"`
	Reason    string               `json:"reason"`
	CheckedAt time.Time            `json:"checked_at"`
	Warning   *types.LedgerWarning `json:"warning,omitempty"`
}

// Engine answers access questions by consulting the authorization
// paths in fixed precedence: emergency override, then consent, then
// capability grant. The first path that allows wins and later paths
// are not consulted. Every answer is audited.
type Engine struct {
	overrides OverrideRepository
	consents  ConsentChecker
	grants    CapabilityChecker
	trail     audit.Recorder
	metrics   *monitoring.MetricsCollector
	logger    *logger.Logger
}

// NewEngine creates a new access decision engine
func NewEngine(overrides OverrideRepository, consents ConsentChecker, grants CapabilityChecker, trail audit.Recorder, metrics *monitoring.MetricsCollector, log *logger.Logger) *Engine {
	return &Engine{
		overrides: overrides,
		consents:  consents,
		grants:    grants,
		trail:     trail,
		metrics:   metrics,
		logger:    log,
	}
}

// Decide answers one access question. Errors from an authorization
// path abort the decision rather than falling through to the next
// path, so a storage fault can never widen access.
func (e *Engine) Decide(ctx context.Context, req Request) (*Decision, error) {
	if req.SubjectID == "" || req.AccessorID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "subject and accessor are required", nil)
	}

	now := time.Now().UTC()
	decision := &Decision{Allowed: false, Reason: ReasonNoGrant, CheckedAt: now}

	overridden, err := e.overrides.IsActive(ctx, req.SubjectID, req.AccessorID)
	if err != nil {
		return nil, err
	}

	switch {
	case overridden:
		decision.Allowed = true
		decision.Reason = ReasonEmergencyOverride

	default:
		consented, err := e.consents.IsActive(ctx, req.SubjectID, req.AccessorID, now)
		if err != nil {
			return nil, err
		}
		if consented {
			decision.Allowed = true
			decision.Reason = ReasonConsent
			break
		}

		if req.WalletAddress != "" && req.ResourceID != "" {
			held, err := e.grants.CheckAccess(ctx, req.ResourceID, req.WalletAddress, now)
			if err != nil {
				return nil, err
			}
			if held {
				decision.Allowed = true
				decision.Reason = ReasonCapabilityGrant
			}
		}
	}

	e.logger.AccessDecision(req.AccessorID, req.SubjectID, decision.Reason, decision.Allowed)
	if e.metrics != nil {
		e.metrics.RecordAccessDecision(decision.Allowed, decision.Reason)
	}

	warning, err := e.trail.Append(ctx, &types.AuditEntry{
		ActorID:    req.AccessorID,
		TargetID:   req.SubjectID,
		Action:     types.ActionAccessChecked,
		ResourceID: req.ResourceID,
		Details: map[string]interface{}{
			"allowed": decision.Allowed,
			"reason":  decision.Reason,
		},
	})
	if err != nil {
		return nil, err
	}
	decision.Warning = warning

	return decision, nil
}

// GrantEmergencyOverride activates an override for the pair. Admin
// callers only; the handler enforces the role, the engine records who
// granted it.
func (e *Engine) GrantEmergencyOverride(ctx context.Context, grantedBy, subjectID, accessorID, reason string) (*types.EmergencyOverride, *types.LedgerWarning, error) {
	if subjectID == "" || accessorID == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "subject and accessor are required", nil)
	}
	if reason == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "emergency overrides require a reason", nil)
	}

	stored, err := e.overrides.Upsert(ctx, &types.EmergencyOverride{
		ID:         uuid.New().String(),
		SubjectID:  subjectID,
		AccessorID: accessorID,
		Reason:     reason,
		GrantedBy:  grantedBy,
		Active:     true,
	})
	if err != nil {
		return nil, nil, err
	}

	warning, err := e.trail.Append(ctx, &types.AuditEntry{
		ActorID:  grantedBy,
		TargetID: subjectID,
		Action:   types.ActionEmergencyGranted,
		Details: map[string]interface{}{
			"accessor_id": accessorID,
			"reason":      reason,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	return stored, warning, nil
}

// RevokeEmergencyOverride lifts an active override
func (e *Engine) RevokeEmergencyOverride(ctx context.Context, revokedBy, subjectID, accessorID string) (*types.LedgerWarning, error) {
	lifted, err := e.overrides.Deactivate(ctx, subjectID, accessorID)
	if err != nil {
		return nil, err
	}
	if !lifted {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "no active override for pair")
	}

	warning, err := e.trail.Append(ctx, &types.AuditEntry{
		ActorID:  revokedBy,
		TargetID: subjectID,
		Action:   types.ActionEmergencyRevoked,
		Details: map[string]interface{}{
			"accessor_id": accessorID,
		},
	})
	if err != nil {
		return nil, err
	}

	return warning, nil
}

// ListEmergencyOverrides returns all active overrides
func (e *Engine) ListEmergencyOverrides(ctx context.Context) ([]*types.EmergencyOverride, error) {
	return e.overrides.ListActive(ctx)
}

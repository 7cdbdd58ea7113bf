package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Service owns the consent lifecycle: request -> grant -> revoke ->
// re-request. Transitions commit off-chain first and mirror to the
// ledger best-effort; a ledger failure surfaces as a warning on the
// response and a marker on the audit entry, never as a failure of the
// transition itself.
type Service struct {
	repo    Repository
	gateway ledger.Gateway
	trail   audit.Recorder
	mspID   string
	logger  *logger.Logger
}

// NewService creates a new consent service
func NewService(repo Repository, gateway ledger.Gateway, trail audit.Recorder, mspID string, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		trail:   trail,
		mspID:   mspID,
		logger:  log,
	}
}

// RequestAccess opens (or re-opens) a consent request from accessor to
// subject. A revoked record is reset to pending in place; a pending or
// granted record makes the request a Conflict.
func (s *Service) RequestAccess(ctx context.Context, subjectID, accessorID, message string, scope types.ConsentScope) (*types.Consent, *types.LedgerWarning, error) {
	if subjectID == "" || accessorID == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "subject and accessor are required", nil)
	}
	if subjectID == accessorID {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "subject and accessor must differ", nil)
	}
	if err := validateScope(&scope); err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil && !types.IsErrorType(err, types.ErrorTypeNotFound) {
		return nil, nil, err
	}

	switch {
	case existing == nil:
		record := &types.Consent{
			ID:             uuid.New().String(),
			SubjectID:      subjectID,
			AccessorID:     accessorID,
			Status:         types.ConsentPending,
			Scope:          scope,
			RequestMessage: message,
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}
		if err := s.repo.Insert(ctx, record); err != nil {
			return nil, nil, err
		}

	case existing.Status == types.ConsentRevoked:
		// Re-request resets the same record, the pair identity is
		// preserved across the full lifecycle.
		reset, err := s.repo.ResetToPending(ctx, subjectID, accessorID, message, scope)
		if err != nil {
			return nil, nil, err
		}
		if !reset {
			return nil, nil, types.NewConflictError(types.ErrCodeConflict, "consent changed concurrently, re-request rejected")
		}

	default:
		return nil, nil, types.NewConflictError(types.ErrCodeConflict,
			"a consent request already exists for this pair")
	}

	record, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		return nil, nil, err
	}

	warning, err := s.trail.Append(ctx, &types.AuditEntry{
		ActorID:  accessorID,
		TargetID: subjectID,
		Action:   types.ActionConsentRequested,
		Details: map[string]interface{}{
			"record_types": scope.RecordTypes,
			"message":      message,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	return record, warning, nil
}

// Grant transitions the pair's consent from pending to granted. Only
// the subject may call it. The off-chain transition commits first;
// the ledger mirror is stamped when the submission (or the supplied
// transaction reference) lands, and a mirror failure degrades to a
// warning.
func (s *Service) Grant(ctx context.Context, subjectID, accessorID string, overrides *types.ScopeOverrides, txRef string) (*types.Consent, *types.LedgerWarning, error) {
	existing, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		return nil, nil, err
	}

	if existing.Status != types.ConsentPending {
		return nil, nil, types.NewInvalidStateError(types.ErrCodeInvalidState,
			"consent is not pending", map[string]interface{}{"status": existing.Status})
	}

	scope := mergeScope(existing.Scope, overrides)
	if err := validateScope(&scope); err != nil {
		return nil, nil, err
	}

	granted, err := s.repo.MarkGranted(ctx, subjectID, accessorID, scope, "")
	if err != nil {
		return nil, nil, err
	}
	if !granted {
		// Lost the race against a concurrent transition.
		return nil, nil, types.NewInvalidStateError(types.ErrCodeInvalidState, "consent is not pending", nil)
	}

	warning := s.mirrorGrant(ctx, subjectID, accessorID, scope, txRef)

	auditDetails := map[string]interface{}{"record_types": scope.RecordTypes}
	if warning != nil {
		auditDetails["ledger_status"] = types.ErrCodeLedgerUnavailable
	}
	if _, err := s.trail.Append(ctx, &types.AuditEntry{
		ActorID:  subjectID,
		TargetID: accessorID,
		Action:   types.ActionConsentGranted,
		Details:  auditDetails,
	}); err != nil {
		return nil, nil, err
	}

	record, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		return nil, nil, err
	}

	return record, warning, nil
}

// Revoke transitions the pair's consent from granted to revoked. Only
// the subject may call it.
func (s *Service) Revoke(ctx context.Context, subjectID, accessorID, reason, txRef string) (*types.Consent, *types.LedgerWarning, error) {
	revoked, err := s.repo.MarkRevoked(ctx, subjectID, accessorID, reason)
	if err != nil {
		return nil, nil, err
	}
	if !revoked {
		return nil, nil, types.NewNotFoundError(types.ErrCodeNotFound, "no granted consent exists for pair")
	}

	warning := s.mirrorRevoke(ctx, subjectID, accessorID, reason, txRef)

	auditDetails := map[string]interface{}{}
	if reason != "" {
		auditDetails["reason"] = reason
	}
	if warning != nil {
		auditDetails["ledger_status"] = types.ErrCodeLedgerUnavailable
	}
	if _, err := s.trail.Append(ctx, &types.AuditEntry{
		ActorID:  subjectID,
		TargetID: accessorID,
		Action:   types.ActionConsentRevoked,
		Details:  auditDetails,
	}); err != nil {
		return nil, nil, err
	}

	record, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		return nil, nil, err
	}

	return record, warning, nil
}

// IsActive is the single consent-expiry predicate. Every
// authorization path that needs to know whether a consent currently
// authorizes access must call this, not recompute it.
func (s *Service) IsActive(ctx context.Context, subjectID, accessorID string, asOf time.Time) (bool, error) {
	record, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		if types.IsErrorType(err, types.ErrorTypeNotFound) {
			return false, nil
		}
		return false, err
	}

	if record.Status != types.ConsentGranted {
		return false, nil
	}
	if record.Scope.EndDate != nil && record.Scope.EndDate.Before(asOf) {
		return false, nil
	}
	return true, nil
}

// Status returns the pair's consent with its derived effective status
func (s *Service) Status(ctx context.Context, subjectID, accessorID string) (*types.Consent, types.ConsentStatus, error) {
	record, err := s.repo.GetByPair(ctx, subjectID, accessorID)
	if err != nil {
		return nil, "", err
	}
	return record, record.EffectiveStatus(time.Now().UTC()), nil
}

// mirrorGrant pushes the grant to the ledger, or stamps a caller
// supplied transaction reference. Failures degrade to a warning.
func (s *Service) mirrorGrant(ctx context.Context, subjectID, accessorID string, scope types.ConsentScope, txRef string) *types.LedgerWarning {
	now := time.Now().UTC()

	if txRef != "" {
		if err := s.repo.StampGrantMirror(ctx, subjectID, accessorID, txRef, 0, now); err != nil {
			s.logger.WithError(err).Warn("Failed to stamp supplied grant transaction reference")
		}
		return nil
	}

	receipt, err := s.gateway.Submit(ctx, ledger.TxConsentGrant, &ledger.ConsentFact{
		SubjectID:  subjectID,
		AccessorID: accessorID,
		Status:     string(types.ConsentGranted),
		UpdatedAt:  now,
	}, s.signerFor(subjectID))
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"subject_id":  subjectID,
			"accessor_id": accessorID,
		}).Warn("Consent granted off-chain but ledger mirror failed")
		return types.PendingLedgerConfirmation("consent grant", err)
	}

	if err := s.repo.StampGrantMirror(ctx, subjectID, accessorID, receipt.TxID, receipt.Block, receipt.Timestamp); err != nil {
		s.logger.WithError(err).Warn("Failed to stamp grant mirror")
	}
	return nil
}

func (s *Service) mirrorRevoke(ctx context.Context, subjectID, accessorID, reason, txRef string) *types.LedgerWarning {
	now := time.Now().UTC()

	if txRef != "" {
		if err := s.repo.StampRevokeMirror(ctx, subjectID, accessorID, txRef, 0, now); err != nil {
			s.logger.WithError(err).Warn("Failed to stamp supplied revoke transaction reference")
		}
		return nil
	}

	receipt, err := s.gateway.Submit(ctx, ledger.TxConsentRevoke, &ledger.ConsentFact{
		SubjectID:  subjectID,
		AccessorID: accessorID,
		Status:     string(types.ConsentRevoked),
		UpdatedAt:  now,
	}, s.signerFor(subjectID))
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"subject_id":  subjectID,
			"accessor_id": accessorID,
		}).Warn("Consent revoked off-chain but ledger mirror failed")
		return types.PendingLedgerConfirmation("consent revoke", err)
	}

	if err := s.repo.StampRevokeMirror(ctx, subjectID, accessorID, receipt.TxID, receipt.Block, receipt.Timestamp); err != nil {
		s.logger.WithError(err).Warn("Failed to stamp revoke mirror")
	}
	return nil
}

func (s *Service) signerFor(actorID string) ledger.SigningIdentity {
	return ledger.SigningIdentity{ID: actorID, MSPID: s.mspID}
}

// validateScope enforces the fixed scope shape at the boundary
func validateScope(scope *types.ConsentScope) error {
	if len(scope.RecordTypes) == 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "scope requires at least one record type", nil)
	}
	if scope.StartDate != nil && scope.EndDate != nil && scope.EndDate.Before(*scope.StartDate) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "scope end date precedes start date", nil)
	}
	return nil
}

// mergeScope applies the subject's overrides onto the requested scope
func mergeScope(base types.ConsentScope, overrides *types.ScopeOverrides) types.ConsentScope {
	if overrides == nil {
		return base
	}

	merged := base
	if len(overrides.RecordTypes) > 0 {
		merged.RecordTypes = overrides.RecordTypes
	}
	if overrides.StartDate != nil {
		merged.StartDate = overrides.StartDate
	}
	if overrides.EndDate != nil {
		merged.EndDate = overrides.EndDate
	}
	if overrides.AllowDownload != nil {
		merged.AllowDownload = *overrides.AllowDownload
	}
	if overrides.AllowReshare != nil {
		merged.AllowReshare = *overrides.AllowReshare
	}
	return merged
}

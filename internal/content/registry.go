package content

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/internal/hashing"
	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// Registry ingests content records and verifies their integrity. The
// document bytes themselves live in external storage behind the
// storage locator; the registry only ever sees them as a stream to
// hash.
type Registry struct {
	repo    Repository
	hasher  *hashing.Hasher
	gateway ledger.Gateway
	trail   audit.Recorder
	mspID   string
	logger  *logger.Logger
}

// NewRegistry creates a new content registry
func NewRegistry(repo Repository, hasher *hashing.Hasher, gateway ledger.Gateway, trail audit.Recorder, mspID string, log *logger.Logger) *Registry {
	return &Registry{
		repo:    repo,
		hasher:  hasher,
		gateway: gateway,
		trail:   trail,
		mspID:   mspID,
		logger:  log,
	}
}

// Register ingests a document: its stream is hashed exactly once, the
// metadata row commits off-chain, and the hash is anchored on the
// ledger best-effort. A ledger failure leaves the record unregistered
// with a warning; re-anchoring is an operator concern.
func (r *Registry) Register(ctx context.Context, ownerID, name, mediaType, storageLocator string, body io.Reader) (*types.ContentRecord, *types.LedgerWarning, error) {
	if ownerID == "" || name == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "owner and name are required", nil)
	}
	if storageLocator == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "storage locator is required", nil)
	}

	hash, size, err := r.hasher.Digest(body)
	if err != nil {
		return nil, nil, types.NewInternalError(types.ErrCodeInternalError, "failed to hash content", err)
	}
	if size == 0 {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "content is empty", nil)
	}

	record := &types.ContentRecord{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           name,
		MediaType:      mediaType,
		ContentHash:    hash,
		Size:           size,
		StorageLocator: storageLocator,
		CreatedAt:      time.Now().UTC(),
	}

	if err := r.repo.Insert(ctx, record); err != nil {
		return nil, nil, err
	}

	warning := r.anchorHash(ctx, record)

	auditDetails := map[string]interface{}{
		"content_hash": hash,
		"size":         size,
	}
	if warning != nil {
		auditDetails["ledger_status"] = types.ErrCodeLedgerUnavailable
	}
	if _, err := r.trail.Append(ctx, &types.AuditEntry{
		ActorID:    ownerID,
		TargetID:   ownerID,
		Action:     types.ActionRecordRegistered,
		ResourceID: record.ID,
		Details:    auditDetails,
	}); err != nil {
		return nil, nil, err
	}

	stored, err := r.repo.Get(ctx, record.ID)
	if err != nil {
		return nil, nil, err
	}

	return stored, warning, nil
}

// VerifyIntegrity re-hashes the document stream and compares the
// digest against both trust domains. The off-chain comparison always
// completes; the ledger comparison degrades to a warning with a nil
// verdict when the ledger cannot be reached.
func (r *Registry) VerifyIntegrity(ctx context.Context, actorID, recordID string, body io.Reader) (*types.IntegrityReport, error) {
	record, err := r.repo.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	result, err := r.hasher.Verify(body, record.ContentHash)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to hash content", err)
	}

	report := &types.IntegrityReport{
		RecordID:    recordID,
		ActualHash:  result.ActualHash,
		StoredHash:  record.ContentHash,
		StoredMatch: result.Match,
		VerifiedAt:  time.Now().UTC(),
	}

	ledgerHash, warning := r.fetchLedgerHash(ctx, recordID)
	report.Warning = warning
	if warning == nil {
		report.LedgerHash = ledgerHash
		match := strings.EqualFold(result.ActualHash, ledgerHash)
		report.LedgerMatch = &match
	}

	if _, err := r.trail.Append(ctx, &types.AuditEntry{
		ActorID:    actorID,
		TargetID:   record.OwnerID,
		Action:     types.ActionRecordVerified,
		ResourceID: recordID,
		Details: map[string]interface{}{
			"stored_match": report.StoredMatch,
			"ledger_match": report.LedgerMatch,
		},
	}); err != nil {
		return nil, err
	}

	return report, nil
}

// Get retrieves a content record by id
func (r *Registry) Get(ctx context.Context, recordID string) (*types.ContentRecord, error) {
	return r.repo.Get(ctx, recordID)
}

// ListByOwner returns an owner's records, newest first
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]*types.ContentRecord, error) {
	return r.repo.ListByOwner(ctx, ownerID)
}

func (r *Registry) anchorHash(ctx context.Context, record *types.ContentRecord) *types.LedgerWarning {
	receipt, err := r.gateway.Submit(ctx, ledger.TxRecordRegister, &ledger.RecordHashFact{
		RecordID:     record.ID,
		OwnerID:      record.OwnerID,
		ContentHash:  record.ContentHash,
		RegisteredAt: record.CreatedAt,
	}, ledger.SigningIdentity{ID: record.OwnerID, MSPID: r.mspID})
	if err != nil {
		r.logger.WithError(err).WithField("record_id", record.ID).
			Warn("Content record stored but ledger anchoring failed")
		return types.PendingLedgerConfirmation("record registration", err)
	}

	if err := r.repo.StampRegistration(ctx, record.ID, record.ID, receipt.TxID, receipt.Block, receipt.Timestamp); err != nil {
		r.logger.WithError(err).Warn("Failed to stamp record registration")
	}
	return nil
}

func (r *Registry) fetchLedgerHash(ctx context.Context, recordID string) (string, *types.LedgerWarning) {
	raw, err := r.gateway.Query(ctx, ledger.FactRecordHash, recordID)
	if err != nil {
		r.logger.WithError(err).WithField("record_id", recordID).
			Warn("Ledger hash unavailable during integrity check")
		return "", types.PendingLedgerConfirmation("ledger hash lookup", err)
	}

	var fact ledger.RecordHashFact
	if err := json.Unmarshal(raw, &fact); err != nil {
		return "", types.PendingLedgerConfirmation("ledger hash decode", err)
	}

	return fact.ContentHash, nil
}

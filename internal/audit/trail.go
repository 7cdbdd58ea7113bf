package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/monitoring"
	"github.com/caremesh/consentd/pkg/types"
)

// Recorder is the append side of the audit trail. Every decision and
// state transition in the engine goes through it.
type Recorder interface {
	Append(ctx context.Context, entry *types.AuditEntry) (*types.LedgerWarning, error)
}

// Trail owns the append-only audit log. The ledger is the primary
// store; every entry is mirrored off-chain first so a ledger outage
// never loses an entry or fails the triggering operation.
type Trail struct {
	repo    Repository
	gateway ledger.Gateway
	signer  ledger.SigningIdentity
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewTrail creates the audit trail. The signer identifies the engine
// itself on audit append transactions.
func NewTrail(repo Repository, gateway ledger.Gateway, signer ledger.SigningIdentity, log *logger.Logger, metrics *monitoring.MetricsCollector) *Trail {
	return &Trail{
		repo:    repo,
		gateway: gateway,
		signer:  signer,
		logger:  log,
		metrics: metrics,
	}
}

// Append writes the entry off-chain, then mirrors it to the ledger.
// A ledger failure is returned as a non-fatal warning and never rolls
// back the off-chain insert; an error is returned only when the
// off-chain insert itself fails.
func (t *Trail) Append(ctx context.Context, entry *types.AuditEntry) (*types.LedgerWarning, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := t.repo.Insert(ctx, entry); err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to append audit entry", err)
	}

	_, err := t.gateway.Submit(ctx, ledger.TxAuditAppend, entry, t.signer)
	if err != nil {
		t.logger.WithError(err).WithFields(map[string]interface{}{
			"entry_id": entry.ID,
			"action":   entry.Action,
		}).Warn("Audit entry committed off-chain but ledger mirror failed")
		t.recordEvent(entry.Action, false)
		return types.PendingLedgerConfirmation("audit append", err), nil
	}

	entry.Mirrored = true
	if err := t.repo.MarkMirrored(ctx, entry.ID); err != nil {
		// The ledger copy landed; only the off-chain flag is stale.
		t.logger.WithError(err).WithField("entry_id", entry.ID).
			Warn("Failed to flag audit entry as mirrored")
	}

	t.recordEvent(entry.Action, true)
	return nil, nil
}

// ByActor returns the actor's entries, most recent first. The ledger
// is consulted first; the off-chain mirror answers when the ledger is
// unavailable or holds nothing for the actor.
func (t *Trail) ByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	entries, err := t.gateway.QueryAuditByActor(ctx, actorID, limit)
	if err == nil && len(entries) > 0 {
		return entries, nil
	}
	if err != nil {
		t.logger.WithError(err).WithField("actor_id", actorID).
			Warn("Ledger audit query failed, falling back to off-chain mirror")
	}

	return t.repo.ListByActor(ctx, actorID, limit)
}

// ByAction returns entries carrying the given action tag, most recent
// first, from the off-chain secondary index.
func (t *Trail) ByAction(ctx context.Context, action string, limit int) ([]*types.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.repo.ListByAction(ctx, action, limit)
}

func (t *Trail) recordEvent(action string, mirrored bool) {
	if t.metrics != nil {
		t.metrics.RecordAuditEvent(action, mirrored)
	}
}

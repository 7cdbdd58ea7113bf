package ledger

import (
	"context"
	"time"

	"github.com/caremesh/consentd/pkg/types"
)

// TxKind identifies the kind of state-change transaction submitted to
// the ledger.
type TxKind string

const (
	TxConsentGrant   TxKind = "consent_grant"
	TxConsentRevoke  TxKind = "consent_revoke"
	TxRecordRegister TxKind = "record_register"
	TxAuditAppend    TxKind = "audit_append"
)

// FactKind identifies the kind of fact queried from the ledger.
type FactKind string

const (
	FactConsentStatus FactKind = "consent_status"
	FactRecordHash    FactKind = "record_hash"
)

// SigningIdentity is the explicit signer for a ledger call. It is
// passed per call rather than held as ambient gateway state so tests
// can run against a mock gateway without key material.
type SigningIdentity struct {
	ID     string `json:"id"`
	MSPID  string `json:"msp_id"`
	KeyRef string `json:"key_ref,omitempty"`
}

// TxReceipt is returned for a successfully submitted transaction.
type TxReceipt struct {
	TxID      string    `json:"tx_id"`
	Block     uint64    `json:"block"`
	Timestamp time.Time `json:"timestamp"`
}

// Gateway is the single funnel for all ledger traffic. Callers must
// treat every error from it as a soft failure: the off-chain commit of
// the triggering operation has already happened by the time a gateway
// call is attempted, and a ledger error must never unwind it.
type Gateway interface {
	// Submit sends a signed state-change transaction. A timeout is
	// reported as LedgerUnavailable with the outcome marked unknown;
	// submissions are never retried automatically.
	Submit(ctx context.Context, kind TxKind, payload interface{}, signer SigningIdentity) (*TxReceipt, error)

	// Query reads a fact from the ledger. Missing facts return a
	// not-found error; transport failures return LedgerUnavailable.
	Query(ctx context.Context, kind FactKind, key string) ([]byte, error)

	// QueryAuditByActor returns the actor's audit entries from the
	// ledger, most recent first.
	QueryAuditByActor(ctx context.Context, actorID string, limit int) ([]*types.AuditEntry, error)
}

// ConsentFact is the ledger's view of a consent relationship, keyed by
// subject|accessor.
type ConsentFact struct {
	SubjectID  string    `json:"subject_id"`
	AccessorID string    `json:"accessor_id"`
	Status     string    `json:"status"`
	TxID       string    `json:"tx_id"`
	Block      uint64    `json:"block"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordHashFact is the ledger's view of a registered content record,
// keyed by record id.
type RecordHashFact struct {
	RecordID     string    `json:"record_id"`
	OwnerID      string    `json:"owner_id"`
	ContentHash  string    `json:"content_hash"`
	TxID         string    `json:"tx_id"`
	Block        uint64    `json:"block"`
	RegisteredAt time.Time `json:"registered_at"`
}

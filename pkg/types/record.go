package types

import "time"

// RecordRegistration holds the on-chain registration state of a
// content record.
type RecordRegistration struct {
	LedgerResourceID string    `json:"ledger_resource_id,omitempty"`
	TxID             string    `json:"tx_id,omitempty"`
	Block            uint64    `json:"block,omitempty"`
	Registered       bool      `json:"registered"`
	RegisteredAt     time.Time `json:"registered_at,omitempty"`
}

// ContentRecord describes an opaque byte-addressable document. The
// content hash is computed once at ingestion and never changes; it is
// the only attribute compared against the ledger's recorded hash.
type ContentRecord struct {
	ID             string             `json:"id"`
	OwnerID        string             `json:"owner_id"`
	Name           string             `json:"name"`
	MediaType      string             `json:"media_type"`
	ContentHash    string             `json:"content_hash"`
	Size           int64              `json:"size"`
	StorageLocator string             `json:"storage_locator"`
	Registration   RecordRegistration `json:"registration"`
	CreatedAt      time.Time          `json:"created_at"`
}

// IntegrityReport is the result of re-hashing a record's bytes and
// comparing against both the off-chain and on-chain recorded hashes.
type IntegrityReport struct {
	RecordID    string         `json:"record_id"`
	ActualHash  string         `json:"actual_hash"`
	StoredHash  string         `json:"stored_hash"`
	LedgerHash  string         `json:"ledger_hash,omitempty"`
	StoredMatch bool           `json:"stored_match"`
	LedgerMatch *bool          `json:"ledger_match,omitempty"`
	Warning     *LedgerWarning `json:"warning,omitempty"`
	VerifiedAt  time.Time      `json:"verified_at"`
}

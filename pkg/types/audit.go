package types

import "time"

// Audit action tags. Free-form strings on the wire but drawn from this
// closed set everywhere in the engine.
const (
	ActionAccessChecked    = "ACCESS_CHECKED"
	ActionConsentRequested = "CONSENT_REQUESTED"
	ActionConsentGranted   = "CONSENT_GRANTED"
	ActionConsentRevoked   = "CONSENT_REVOKED"
	ActionGrantCreated     = "GRANT_CREATED"
	ActionGrantRevoked     = "GRANT_REVOKED"
	ActionEmergencyGranted = "EMERGENCY_GRANTED"
	ActionEmergencyRevoked = "EMERGENCY_REVOKED"
	ActionRecordRegistered = "RECORD_REGISTERED"
	ActionRecordVerified   = "RECORD_VERIFIED"
)

// AuditEntry is an append-only record of a decision or state
// transition. Entries are never mutated or deleted once appended.
type AuditEntry struct {
	ID         string                 `json:"id"`
	ActorID    string                 `json:"actor_id"`
	TargetID   string                 `json:"target_id"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
	// Mirrored reports whether the ledger copy of this entry has been
	// confirmed. False marks the inconsistency window after a failed
	// ledger append.
	Mirrored bool `json:"mirrored"`
}

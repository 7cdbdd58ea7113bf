package types

import "time"

// ConsentStatus represents the lifecycle state of a consent record
type ConsentStatus string

const (
	ConsentPending ConsentStatus = "pending"
	ConsentGranted ConsentStatus = "granted"
	ConsentRevoked ConsentStatus = "revoked"
	// ConsentExpired is derived at read time from the scope end date.
	// It is never written to storage.
	ConsentExpired ConsentStatus = "expired"
)

// ConsentScope bounds what a granted consent covers. The shape is
// fixed and validated at the request/grant boundary rather than being
// an open-ended attribute map.
type ConsentScope struct {
	RecordTypes   []string   `json:"record_types"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	AllowDownload bool       `json:"allow_download"`
	AllowReshare  bool       `json:"allow_reshare"`
}

// ScopeOverrides carries the optional scope changes a subject can
// apply when granting. Nil fields leave the requested scope untouched.
type ScopeOverrides struct {
	RecordTypes   []string   `json:"record_types,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	AllowDownload *bool      `json:"allow_download,omitempty"`
	AllowReshare  *bool      `json:"allow_reshare,omitempty"`
}

// ConsentMirror holds the on-chain references for a consent record.
// Empty fields mean the corresponding ledger write has not been
// confirmed yet.
type ConsentMirror struct {
	GrantTxID      string     `json:"grant_tx_id,omitempty"`
	GrantBlock     uint64     `json:"grant_block,omitempty"`
	GrantMirrored  *time.Time `json:"grant_mirrored_at,omitempty"`
	RevokeTxID     string     `json:"revoke_tx_id,omitempty"`
	RevokeBlock    uint64     `json:"revoke_block,omitempty"`
	RevokeMirrored *time.Time `json:"revoke_mirrored_at,omitempty"`
}

// Consent represents the access relationship between one subject
// (record owner) and one accessor. Exactly one record exists per
// (subject, accessor) pair; a revoked consent is reset in place when
// re-requested.
type Consent struct {
	ID              string        `json:"id"`
	SubjectID       string        `json:"subject_id"`
	AccessorID      string        `json:"accessor_id"`
	Status          ConsentStatus `json:"status"`
	Scope           ConsentScope  `json:"scope"`
	RequestMessage  string        `json:"request_message,omitempty"`
	ResponseMessage string        `json:"response_message,omitempty"`
	Mirror          ConsentMirror `json:"mirror"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EffectiveStatus derives the visible status at asOf. A granted
// consent whose scope end date has passed reads as expired without any
// stored transition.
func (c *Consent) EffectiveStatus(asOf time.Time) ConsentStatus {
	if c.Status == ConsentGranted && c.Scope.EndDate != nil && c.Scope.EndDate.Before(asOf) {
		return ConsentExpired
	}
	return c.Status
}

// EmergencyOverride grants an accessor unconditional access to a
// subject's records. Creating and removing overrides is restricted to
// administrators and always audited.
type EmergencyOverride struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	AccessorID string    `json:"accessor_id"`
	Reason     string    `json:"reason"`
	GrantedBy  string    `json:"granted_by"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

package types

import "time"

// CapabilityGrant binds one content record to a wallet address with a
// hard expiry. It is independent of any registered consent
// relationship: whoever can sign for the wallet holds the capability.
type CapabilityGrant struct {
	ID             string     `json:"id"`
	ResourceID     string     `json:"resource_id"`
	WalletAddress  string     `json:"wallet_address"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ExpirationDays int        `json:"expiration_days"`
	Active         bool       `json:"active"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Usable reports whether the grant authorizes access at asOf. Expiry
// is evaluated here at read time; expired grants are never swept.
func (g *CapabilityGrant) Usable(asOf time.Time) bool {
	return g.Active && asOf.Before(g.ExpiresAt)
}

// Capability grant expiration bounds, in days.
const (
	MinGrantExpirationDays = 1
	MaxGrantExpirationDays = 365
)

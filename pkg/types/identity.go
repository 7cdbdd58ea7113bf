package types

// UserRole represents the role attached to an authenticated actor
type UserRole string

const (
	RolePatient UserRole = "patient"
	RoleDoctor  UserRole = "doctor"
	RoleAdmin   UserRole = "admin"
)

// UserClaims carries the authenticated actor identity supplied by the
// identity collaborator. Session mechanics live outside this engine.
type UserClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	OrgID    string   `json:"org_id,omitempty"`
}

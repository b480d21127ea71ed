package domain

import "time"

// Role enumerates platform roles.
type Role string

const (
	RoleStudent       Role = "student"
	RoleCounselor     Role = "counselor"
	RolePeerCounselor Role = "peer_counselor"
	RoleAdmin         Role = "admin"
)

// Counselor reports whether the role provides counseling capability.
func (r Role) Counselor() bool {
	return r == RoleCounselor || r == RolePeerCounselor
}

// User is the domain model for authenticated parties. Registration and
// credential management live in an external service; only the identity
// needed for ticket authorization is modeled here.
type User struct {
	ID        string
	Username  string
	FullName  string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

package auth

import "time"

// Role is the account role carried in tokens and checked by route guards.
type Role string

const (
	RoleUser      Role = "user"
	RoleSeller    Role = "seller"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may moderate catalog and orders.
func (r Role) IsStaff() bool { return r == RoleAdmin || r == RoleModerator }

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID   string        `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Role     Role          `json:"role"`
	TokenID  string        `json:"-"`
	TokenTTL time.Duration `json:"-"`
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

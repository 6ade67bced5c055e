package model

import "time"

// Operator roles. Super admins may manage other operators; regular
// admins may only act against the downstream service.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Operator represents an administrative user of the control plane.
// Passwords are stored as bcrypt hashes. Emails are stored lowercase
// and compared case-insensitively.
type Operator struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string     `json:"name" db:"name"`
	Role         string     `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsSuperAdmin reports whether the operator holds the super_admin role.
func (o *Operator) IsSuperAdmin() bool {
	return o.Role == RoleSuperAdmin
}

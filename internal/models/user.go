package models

import "time"

// SiteRole is the site-wide role attached to a user account. Group
// roles are modelled separately; SiteRole only covers tenant-level
// administration.
type SiteRole string

const (
	SiteRoleNone       SiteRole = "NONE"
	SiteRoleAdmin      SiteRole = "ADMIN"
	SiteRoleSuperAdmin SiteRole = "SUPERADMIN"
)

// User represents a user account row.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	SiteRole     SiteRole   `db:"site_role" json:"site_role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

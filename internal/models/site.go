package models

import "time"

// SiteSettings is the per-tenant site configuration row.
type SiteSettings struct {
	Tenant    string    `db:"tenant" json:"tenant"`
	Name      string    `db:"name" json:"name"`
	Closed    bool      `db:"closed" json:"closed"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SiteContext carries the tenant identity and site-wide closed flag into
// permission and access-level evaluation. It is passed explicitly so
// concurrent multi-tenant evaluation never reads process-wide state.
type SiteContext struct {
	Tenant string
	Closed bool
}

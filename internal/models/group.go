package models

import "time"

// GroupRole enumerates per-group membership roles.
type GroupRole string

const (
	GroupRoleOwner   GroupRole = "OWNER"
	GroupRoleAdmin   GroupRole = "ADMIN"
	GroupRoleMember  GroupRole = "MEMBER"
	GroupRolePending GroupRole = "PENDING"
	GroupRoleRemoved GroupRole = "REMOVED"
)

// Active reports whether the role counts as full group membership.
// Pending requesters and removed users are not active members.
func (r GroupRole) Active() bool {
	switch r {
	case GroupRoleOwner, GroupRoleAdmin, GroupRoleMember:
		return true
	}
	return false
}

// CanAdminister reports whether the role may manage the group.
func (r GroupRole) CanAdminister() bool {
	return r == GroupRoleOwner || r == GroupRoleAdmin
}

// Group is a content-owning community. A closed group restricts the
// logged-in and public access tiers to its own members.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Closed    bool      `db:"closed" json:"closed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GroupMembership records a user's role within a group, unique per
// (user, group).
type GroupMembership struct {
	UserID    string    `db:"user_id" json:"user_id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Role      GroupRole `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Subgroup is a named subset of a group's members. Subgroup grants are
// always narrower than the parent group grant.
type Subgroup struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActorSnapshot is a transaction-consistent view of everything permission
// evaluation needs about one actor. The zero value represents an anonymous
// request with no session.
type ActorSnapshot struct {
	UserID     string
	SiteRole   SiteRole
	GroupRoles map[string]GroupRole
	Subgroups  map[string]struct{}
}

// Anonymous reports whether the snapshot carries no authenticated user.
func (a ActorSnapshot) Anonymous() bool { return a.UserID == "" }

// SiteAdmin reports whether the actor holds a site-wide admin role.
func (a ActorSnapshot) SiteAdmin() bool {
	return a.SiteRole == SiteRoleAdmin || a.SiteRole == SiteRoleSuperAdmin
}

// RoleIn returns the actor's role in the given group, if any.
func (a ActorSnapshot) RoleIn(groupID string) (GroupRole, bool) {
	role, ok := a.GroupRoles[groupID]
	return role, ok
}

// InSubgroup reports subgroup membership.
func (a ActorSnapshot) InSubgroup(subgroupID string) bool {
	_, ok := a.Subgroups[subgroupID]
	return ok
}

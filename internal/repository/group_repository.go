package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

// GroupRepository persists groups, memberships, and subgroups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByID fetches a group.
func (r *GroupRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Group, error) {
	const query = `SELECT id, name, closed, created_at, updated_at FROM groups WHERE id = $1`
	var group models.Group
	if err := sqlx.GetContext(ctx, q, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// GetMembership returns the (user, group) membership row, if present.
func (r *GroupRepository) GetMembership(ctx context.Context, q sqlx.QueryerContext, userID, groupID string) (*models.GroupMembership, error) {
	const query = `SELECT user_id, group_id, role, created_at, updated_at
	FROM group_memberships WHERE user_id = $1 AND group_id = $2`
	var membership models.GroupMembership
	if err := sqlx.GetContext(ctx, q, &membership, query, userID, groupID); err != nil {
		return nil, err
	}
	return &membership, nil
}

// UpsertMembership sets the user's role in a group, unique per (user, group).
func (r *GroupRepository) UpsertMembership(ctx context.Context, ext sqlx.ExtContext, membership *models.GroupMembership) error {
	now := time.Now().UTC()
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = now
	}
	membership.UpdatedAt = now
	const query = `INSERT INTO group_memberships (user_id, group_id, role, created_at, updated_at)
	VALUES (:user_id, :group_id, :role, :created_at, :updated_at)
	ON CONFLICT (user_id, group_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, membership); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// ListSubgroups returns a group's subgroups ordered by creation.
func (r *GroupRepository) ListSubgroups(ctx context.Context, q sqlx.QueryerContext, groupID string) ([]models.Subgroup, error) {
	const query = `SELECT id, group_id, name, created_at FROM subgroups
	WHERE group_id = $1 ORDER BY created_at`
	var subgroups []models.Subgroup
	if err := sqlx.SelectContext(ctx, q, &subgroups, query, groupID); err != nil {
		return nil, fmt.Errorf("list subgroups: %w", err)
	}
	return subgroups, nil
}

// GetSubgroup fetches one subgroup.
func (r *GroupRepository) GetSubgroup(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Subgroup, error) {
	const query = `SELECT id, group_id, name, created_at FROM subgroups WHERE id = $1`
	var subgroup models.Subgroup
	if err := sqlx.GetContext(ctx, q, &subgroup, query, id); err != nil {
		return nil, err
	}
	return &subgroup, nil
}

// CreateSubgroup inserts a subgroup under a group.
func (r *GroupRepository) CreateSubgroup(ctx context.Context, ext sqlx.ExtContext, subgroup *models.Subgroup) error {
	if subgroup.ID == "" {
		subgroup.ID = uuid.NewString()
	}
	if subgroup.CreatedAt.IsZero() {
		subgroup.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subgroups (id, group_id, name, created_at)
	VALUES (:id, :group_id, :name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, subgroup); err != nil {
		return fmt.Errorf("create subgroup: %w", err)
	}
	return nil
}

// AddSubgroupMember places a user into a subgroup.
func (r *GroupRepository) AddSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error {
	const query = `INSERT INTO subgroup_members (subgroup_id, user_id, created_at)
	VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := ext.ExecContext(ctx, query, subgroupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add subgroup member: %w", err)
	}
	return nil
}

// DeleteSubgroup removes a subgroup together with its member rows. Access
// tokens referencing the subgroup simply stop matching anyone.
func (r *GroupRepository) DeleteSubgroup(ctx context.Context, ext sqlx.ExtContext, id string) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM subgroup_members WHERE subgroup_id = $1`, id); err != nil {
		return fmt.Errorf("delete subgroup members: %w", err)
	}
	result, err := ext.ExecContext(ctx, `DELETE FROM subgroups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subgroup: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check subgroup delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveSubgroupMember removes a user from a subgroup.
func (r *GroupRepository) RemoveSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM subgroup_members WHERE subgroup_id = $1 AND user_id = $2`, subgroupID, userID); err != nil {
		return fmt.Errorf("remove subgroup member: %w", err)
	}
	return nil
}

// ActorSnapshot loads the transaction-consistent membership view used for
// permission decisions. Pass the mutation's transaction so a concurrent
// role change cannot slip between the check and the write.
func (r *GroupRepository) ActorSnapshot(ctx context.Context, q sqlx.QueryerContext, userID string, siteRole models.SiteRole) (models.ActorSnapshot, error) {
	snapshot := models.ActorSnapshot{
		UserID:     userID,
		SiteRole:   siteRole,
		GroupRoles: map[string]models.GroupRole{},
		Subgroups:  map[string]struct{}{},
	}
	if userID == "" {
		return snapshot, nil
	}

	var memberships []models.GroupMembership
	const membershipQuery = `SELECT user_id, group_id, role, created_at, updated_at
	FROM group_memberships WHERE user_id = $1`
	if err := sqlx.SelectContext(ctx, q, &memberships, membershipQuery, userID); err != nil {
		return snapshot, fmt.Errorf("load memberships: %w", err)
	}
	for _, m := range memberships {
		snapshot.GroupRoles[m.GroupID] = m.Role
	}

	var subgroupIDs []string
	const subgroupQuery = `SELECT subgroup_id FROM subgroup_members WHERE user_id = $1`
	if err := sqlx.SelectContext(ctx, q, &subgroupIDs, subgroupQuery, userID); err != nil {
		return snapshot, fmt.Errorf("load subgroup memberships: %w", err)
	}
	for _, id := range subgroupIDs {
		snapshot.Subgroups[id] = struct{}{}
	}
	return snapshot, nil
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

type groupStore interface {
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Group, error)
	GetMembership(ctx context.Context, q sqlx.QueryerContext, userID, groupID string) (*models.GroupMembership, error)
	UpsertMembership(ctx context.Context, ext sqlx.ExtContext, membership *models.GroupMembership) error
	ListSubgroups(ctx context.Context, q sqlx.QueryerContext, groupID string) ([]models.Subgroup, error)
	CreateSubgroup(ctx context.Context, ext sqlx.ExtContext, subgroup *models.Subgroup) error
	GetSubgroup(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Subgroup, error)
	DeleteSubgroup(ctx context.Context, ext sqlx.ExtContext, id string) error
	AddSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error
	RemoveSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error
}

// GroupService manages memberships and subgroups. Every operation is
// gated by can-administer on the target group.
type GroupService struct {
	db     *sqlx.DB
	groups groupStore
	perms  *PermissionService
	audit  auditLogger
	logger *zap.Logger
}

// NewGroupService constructs the service.
func NewGroupService(db *sqlx.DB, groups groupStore, perms *PermissionService, audit auditLogger, logger *zap.Logger) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{db: db, groups: groups, perms: perms, audit: audit, logger: logger}
}

// Get returns a group visible to any authenticated actor.
func (s *GroupService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Group, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	group, err := s.groups.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// SetMembership assigns a role to a user within the group.
func (s *GroupService) SetMembership(ctx context.Context, groupID string, req dto.SetMembershipRequest, claims *models.JWTClaims) (*models.GroupMembership, error) {
	role := models.GroupRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	switch role {
	case models.GroupRoleOwner, models.GroupRoleAdmin, models.GroupRoleMember, models.GroupRolePending, models.GroupRoleRemoved:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported group role")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	actor, err := s.requireAdmin(ctx, tx, groupID, claims)
	if err != nil {
		return nil, err
	}

	previous, err := s.groups.GetMembership(ctx, tx, req.UserID, groupID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}

	membership := &models.GroupMembership{UserID: req.UserID, GroupID: groupID, Role: role}
	if err := s.groups.UpsertMembership(ctx, tx, membership); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set membership")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit membership change")
	}

	var oldValues []byte
	if previous != nil {
		oldValues, _ = json.Marshal(map[string]string{"role": string(previous.Role)})
	}
	newValues, _ := json.Marshal(map[string]string{"user_id": req.UserID, "role": string(role)})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionMembershipChange,
		Resource:   "group",
		ResourceID: &groupID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
	return membership, nil
}

// CreateSubgroup adds a subgroup under the group.
func (s *GroupService) CreateSubgroup(ctx context.Context, groupID string, req dto.CreateSubgroupRequest, claims *models.JWTClaims) (*models.Subgroup, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	actor, err := s.requireAdmin(ctx, tx, groupID, claims)
	if err != nil {
		return nil, err
	}

	subgroup := &models.Subgroup{GroupID: groupID, Name: strings.TrimSpace(req.Name)}
	if subgroup.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subgroup name is required")
	}
	if err := s.groups.CreateSubgroup(ctx, tx, subgroup); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subgroup")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit subgroup create")
	}

	newValues, _ := json.Marshal(map[string]string{"name": subgroup.Name})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSubgroupCreate,
		Resource:   "group",
		ResourceID: &groupID,
		NewValues:  newValues,
	})
	return subgroup, nil
}

// DeleteSubgroup removes a subgroup and its member rows. Content carrying
// the subgroup's access token keeps the token; it just no longer matches.
func (s *GroupService) DeleteSubgroup(ctx context.Context, subgroupID string, claims *models.JWTClaims) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	subgroup, err := s.groups.GetSubgroup(ctx, tx, subgroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subgroup")
	}
	actor, err := s.requireAdmin(ctx, tx, subgroup.GroupID, claims)
	if err != nil {
		return err
	}

	if err := s.groups.DeleteSubgroup(ctx, tx, subgroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subgroup")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit subgroup delete")
	}

	oldValues, _ := json.Marshal(map[string]string{"name": subgroup.Name})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSubgroupDelete,
		Resource:   "group",
		ResourceID: &subgroup.GroupID,
		OldValues:  oldValues,
	})
	return nil
}

// ListSubgroups returns the group's subgroups in creation order.
func (s *GroupService) ListSubgroups(ctx context.Context, groupID string, claims *models.JWTClaims) ([]models.Subgroup, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	subgroups, err := s.groups.ListSubgroups(ctx, s.db, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subgroups")
	}
	return subgroups, nil
}

// SetSubgroupMember adds or removes a subgroup member. Subgroup grants
// are a subset of the parent group, so the member must hold an active
// group membership.
func (s *GroupService) SetSubgroupMember(ctx context.Context, subgroupID string, req dto.SubgroupMemberRequest, add bool, claims *models.JWTClaims) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	subgroup, err := s.groups.GetSubgroup(ctx, tx, subgroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subgroup")
	}
	if _, err := s.requireAdmin(ctx, tx, subgroup.GroupID, claims); err != nil {
		return err
	}

	if add {
		membership, err := s.groups.GetMembership(ctx, tx, req.UserID, subgroup.GroupID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "user is not a member of the parent group")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
		}
		if !membership.Role.Active() {
			return appErrors.Clone(appErrors.ErrValidation, "user is not an active member of the parent group")
		}
		if err := s.groups.AddSubgroupMember(ctx, tx, subgroupID, req.UserID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add subgroup member")
		}
	} else {
		if err := s.groups.RemoveSubgroupMember(ctx, tx, subgroupID, req.UserID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove subgroup member")
		}
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit subgroup member change")
	}
	return nil
}

func (s *GroupService) requireAdmin(ctx context.Context, q sqlx.QueryerContext, groupID string, claims *models.JWTClaims) (models.ActorSnapshot, error) {
	if claims == nil {
		return models.ActorSnapshot{}, appErrors.ErrUnauthorized
	}
	if _, err := s.groups.GetByID(ctx, q, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ActorSnapshot{}, appErrors.ErrNotFound
		}
		return models.ActorSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	actor, err := s.perms.LoadActor(ctx, q, claims)
	if err != nil {
		return models.ActorSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if !s.perms.CanAdminister(actor, groupID) {
		return models.ActorSnapshot{}, appErrors.ErrForbidden
	}
	return actor, nil
}

func (s *GroupService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "group-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

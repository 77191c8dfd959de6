package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

type actorSnapshotLoader interface {
	ActorSnapshot(ctx context.Context, q sqlx.QueryerContext, userID string, siteRole models.SiteRole) (models.ActorSnapshot, error)
}

type permissionObserver interface {
	ObservePermissionCheck(operation string, allowed bool)
}

// PermissionService answers can-read / can-write / can-administer for an
// actor against a content item. Evaluation is a pure function of the
// actor snapshot; the snapshot itself is loaded from whatever queryer the
// caller supplies, so checks made inside a mutation transaction see the
// same membership state the mutation commits against.
type PermissionService struct {
	groups  actorSnapshotLoader
	metrics permissionObserver
	logger  *zap.Logger
}

// NewPermissionService constructs the service. metrics may be nil.
func NewPermissionService(groups actorSnapshotLoader, metrics permissionObserver, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{groups: groups, metrics: metrics, logger: logger}
}

// LoadActor builds the transaction-consistent actor view. A nil claims
// value is a valid anonymous actor.
func (s *PermissionService) LoadActor(ctx context.Context, q sqlx.QueryerContext, claims *models.JWTClaims) (models.ActorSnapshot, error) {
	if claims == nil {
		return models.ActorSnapshot{SiteRole: models.SiteRoleNone}, nil
	}
	return s.groups.ActorSnapshot(ctx, q, claims.UserID, claims.SiteRole)
}

// CanRead reports whether the actor may read the item. Write permission
// implies read permission, so an actor can never hold an unreadable item
// it is allowed to modify.
func (s *PermissionService) CanRead(actor models.ActorSnapshot, item *models.ContentItem) bool {
	allowed := ownerOrSiteAdmin(actor, item) ||
		satisfies(actor, item.ReadAccess, true) ||
		satisfies(actor, item.WriteAccess, false)
	s.observe("read", allowed)
	return allowed
}

// CanWrite reports whether the actor may modify the item. The owner and
// site admins always pass regardless of token contents.
func (s *PermissionService) CanWrite(actor models.ActorSnapshot, item *models.ContentItem) bool {
	allowed := ownerOrSiteAdmin(actor, item) || satisfies(actor, item.WriteAccess, false)
	s.observe("write", allowed)
	return allowed
}

// CanAdminister reports whether the actor may manage the given group.
func (s *PermissionService) CanAdminister(actor models.ActorSnapshot, groupID string) bool {
	allowed := s.canAdminister(actor, groupID)
	s.observe("administer", allowed)
	return allowed
}

func (s *PermissionService) canAdminister(actor models.ActorSnapshot, groupID string) bool {
	if actor.SiteAdmin() {
		return true
	}
	if actor.Anonymous() {
		return false
	}
	role, ok := actor.RoleIn(groupID)
	return ok && role.CanAdminister()
}

func (s *PermissionService) observe(operation string, allowed bool) {
	if s.metrics != nil {
		s.metrics.ObservePermissionCheck(operation, allowed)
	}
}

func ownerOrSiteAdmin(actor models.ActorSnapshot, item *models.ContentItem) bool {
	if actor.Anonymous() {
		return false
	}
	return actor.UserID == item.OwnerID || actor.SiteAdmin()
}

// satisfies evaluates an access list against the actor snapshot.
// Anonymous actors only ever satisfy the public token. Pending group
// membership counts for read evaluation (allowPending) but never grants
// the active-member group token used for writes.
func satisfies(actor models.ActorSnapshot, list models.AccessList, allowPending bool) bool {
	if list.Contains(models.PublicToken) {
		return true
	}
	if actor.Anonymous() {
		return false
	}
	if list.Contains(models.LoggedInToken) {
		return true
	}
	if list.Contains(models.UserToken(actor.UserID)) {
		return true
	}
	for _, token := range list.Tokens() {
		switch token.Kind {
		case models.TokenGroup:
			role, ok := actor.RoleIn(token.ID)
			if !ok {
				continue
			}
			if role.Active() || (allowPending && role == models.GroupRolePending) {
				return true
			}
		case models.TokenSubgroup:
			if actor.InSubgroup(token.ID) {
				return true
			}
		}
	}
	return false
}

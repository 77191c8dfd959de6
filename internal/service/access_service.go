package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

type accessGroupStore interface {
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Group, error)
	ListSubgroups(ctx context.Context, q sqlx.QueryerContext, groupID string) ([]models.Subgroup, error)
	GetSubgroup(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Subgroup, error)
}

// AccessService expands the small access-level selector into a concrete
// access list and enumerates the levels selectable for an item in its
// current group/site context.
type AccessService struct {
	groups accessGroupStore
	logger *zap.Logger
}

// NewAccessService constructs the service.
func NewAccessService(groups accessGroupStore, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{groups: groups, logger: logger}
}

// AccessIDToACL expands a selector into the access list it stands for.
// Closed groups substitute their own group token for the logged-in and
// public tiers; a closed site downgrades the public tier to logged-in.
// Group-closed wins when both apply.
func (s *AccessService) AccessIDToACL(ctx context.Context, q sqlx.QueryerContext, item *models.ContentItem, level models.AccessLevel, site models.SiteContext) (models.AccessList, error) {
	list := models.NewAccessList(models.UserToken(item.OwnerID))

	group, err := s.itemGroup(ctx, q, item)
	if err != nil {
		return models.AccessList{}, err
	}

	switch level.Kind {
	case models.LevelPrivate:
		return list, nil

	case models.LevelLoggedIn:
		if group != nil && group.Closed {
			list.Add(models.GroupToken(group.ID))
		} else {
			list.Add(models.LoggedInToken)
		}
		return list, nil

	case models.LevelPublic:
		switch {
		case group != nil && group.Closed:
			list.Add(models.GroupToken(group.ID))
		case site.Closed:
			list.Add(models.LoggedInToken)
		default:
			list.Add(models.PublicToken)
		}
		return list, nil

	case models.LevelGroup:
		if group == nil {
			return models.AccessList{}, appErrors.Clone(appErrors.ErrInvalidAccessLevel, "item does not belong to a group")
		}
		list.Add(models.GroupToken(group.ID))
		return list, nil

	case models.LevelSubgroup:
		subgroup, err := s.groups.GetSubgroup(ctx, q, level.SubgroupID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.AccessList{}, appErrors.Clone(appErrors.ErrInvalidAccessLevel, "unknown subgroup")
			}
			return models.AccessList{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subgroup")
		}
		if group == nil || subgroup.GroupID != group.ID {
			return models.AccessList{}, appErrors.Clone(appErrors.ErrInvalidAccessLevel, "subgroup does not belong to the item's group")
		}
		list.Add(models.SubgroupToken(subgroup.ID))
		return list, nil
	}

	return models.AccessList{}, appErrors.Clone(appErrors.ErrInvalidAccessLevel, fmt.Sprintf("unsupported access level %s", level))
}

// GetAccessIDs enumerates the levels selectable for the item, in fixed
// order: private, group access, one option per subgroup by creation,
// logged-in, public. A level whose expansion would collapse into another
// offered level (the closed-group and closed-site downgrades) is omitted
// so that expanding any offered id and deriving the level back always
// round-trips.
func (s *AccessService) GetAccessIDs(ctx context.Context, q sqlx.QueryerContext, item *models.ContentItem, site models.SiteContext) ([]models.AccessOption, error) {
	group, err := s.itemGroup(ctx, q, item)
	if err != nil {
		return nil, err
	}

	options := []models.AccessOption{
		{ID: models.AccessLevel{Kind: models.LevelPrivate}.String(), Description: "Only the owner"},
	}

	if group != nil {
		options = append(options, models.AccessOption{
			ID:          models.AccessLevel{Kind: models.LevelGroup}.String(),
			Description: fmt.Sprintf("All members of %s", group.Name),
		})
		subgroups, err := s.groups.ListSubgroups(ctx, q, group.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subgroups")
		}
		for _, sg := range subgroups {
			options = append(options, models.AccessOption{
				ID:          sg.ID,
				Description: fmt.Sprintf("Subgroup: %s", sg.Name),
			})
		}
	}

	groupClosed := group != nil && group.Closed
	if !groupClosed {
		options = append(options, models.AccessOption{
			ID:          models.AccessLevel{Kind: models.LevelLoggedIn}.String(),
			Description: "All logged-in users",
		})
		if !site.Closed {
			options = append(options, models.AccessOption{
				ID:          models.AccessLevel{Kind: models.LevelPublic}.String(),
				Description: "Public",
			})
		}
	}

	return options, nil
}

// LevelFromACL collapses an access list back into the selector it was
// expanded from.
func (s *AccessService) LevelFromACL(list models.AccessList) models.AccessLevel {
	if list.Contains(models.PublicToken) {
		return models.AccessLevel{Kind: models.LevelPublic}
	}
	if list.Contains(models.LoggedInToken) {
		return models.AccessLevel{Kind: models.LevelLoggedIn}
	}
	for _, token := range list.Tokens() {
		switch token.Kind {
		case models.TokenGroup:
			return models.AccessLevel{Kind: models.LevelGroup}
		case models.TokenSubgroup:
			return models.AccessLevel{Kind: models.LevelSubgroup, SubgroupID: token.ID}
		}
	}
	return models.AccessLevel{Kind: models.LevelPrivate}
}

func (s *AccessService) itemGroup(ctx context.Context, q sqlx.QueryerContext, item *models.ContentItem) (*models.Group, error) {
	if item.GroupID == nil || *item.GroupID == "" {
		return nil, nil
	}
	group, err := s.groups.GetByID(ctx, q, *item.GroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidAccessLevel, "item references an unknown group")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

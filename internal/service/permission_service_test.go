package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

type actorLoaderStub struct {
	snapshots map[string]models.ActorSnapshot
}

func (s *actorLoaderStub) ActorSnapshot(ctx context.Context, q sqlx.QueryerContext, userID string, siteRole models.SiteRole) (models.ActorSnapshot, error) {
	if snap, ok := s.snapshots[userID]; ok {
		return snap, nil
	}
	return models.ActorSnapshot{UserID: userID, SiteRole: siteRole}, nil
}

func memberOf(userID string, roles map[string]models.GroupRole) models.ActorSnapshot {
	return models.ActorSnapshot{UserID: userID, SiteRole: models.SiteRoleNone, GroupRoles: roles}
}

func TestPermissionsAnonymousActor(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	anon := models.ActorSnapshot{}

	public := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner"), models.PublicToken),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}
	require.True(t, svc.CanRead(anon, public))
	require.False(t, svc.CanWrite(anon, public))

	loggedIn := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner"), models.LoggedInToken),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}
	require.False(t, svc.CanRead(anon, loggedIn))
}

func TestPermissionsOwnerAndSiteAdminBypassTokens(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	item := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	owner := models.ActorSnapshot{UserID: "owner", SiteRole: models.SiteRoleNone}
	require.True(t, svc.CanRead(owner, item))
	require.True(t, svc.CanWrite(owner, item))

	admin := models.ActorSnapshot{UserID: "admin", SiteRole: models.SiteRoleAdmin}
	require.True(t, svc.CanRead(admin, item))
	require.True(t, svc.CanWrite(admin, item))

	stranger := models.ActorSnapshot{UserID: "someone", SiteRole: models.SiteRoleNone}
	require.False(t, svc.CanRead(stranger, item))
	require.False(t, svc.CanWrite(stranger, item))
}

func TestPermissionsPendingMemberReadsButNeverWrites(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	item := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner"), models.GroupToken("g1")),
		WriteAccess: models.NewAccessList(models.UserToken("owner"), models.GroupToken("g1")),
	}

	pending := memberOf("u1", map[string]models.GroupRole{"g1": models.GroupRolePending})
	require.True(t, svc.CanRead(pending, item))
	require.False(t, svc.CanWrite(pending, item))

	member := memberOf("u2", map[string]models.GroupRole{"g1": models.GroupRoleMember})
	require.True(t, svc.CanRead(member, item))
	require.True(t, svc.CanWrite(member, item))

	removed := memberOf("u3", map[string]models.GroupRole{"g1": models.GroupRoleRemoved})
	require.False(t, svc.CanRead(removed, item))
	require.False(t, svc.CanWrite(removed, item))
}

func TestPermissionsWriteImpliesRead(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	// Reader tier narrower than writer tier: write grant must still read.
	item := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner"), models.GroupToken("g1")),
	}

	writer := memberOf("u1", map[string]models.GroupRole{"g1": models.GroupRoleMember})
	require.True(t, svc.CanWrite(writer, item))
	require.True(t, svc.CanRead(writer, item))

	// Pending membership satisfies nothing on the write list, for
	// reading or writing.
	pending := memberOf("u2", map[string]models.GroupRole{"g1": models.GroupRolePending})
	require.False(t, svc.CanWrite(pending, item))
	require.False(t, svc.CanRead(pending, item))
}

func TestPermissionsSubgroupToken(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	item := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner"), models.SubgroupToken("sg1")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	inside := models.ActorSnapshot{
		UserID:    "u1",
		GroupRoles: map[string]models.GroupRole{"g1": models.GroupRoleMember},
		Subgroups: map[string]struct{}{"sg1": {}},
	}
	require.True(t, svc.CanRead(inside, item))

	outside := memberOf("u2", map[string]models.GroupRole{"g1": models.GroupRoleMember})
	require.False(t, svc.CanRead(outside, item))
}

func TestCanAdminister(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)

	require.True(t, svc.CanAdminister(models.ActorSnapshot{UserID: "a", SiteRole: models.SiteRoleSuperAdmin}, "g1"))
	require.False(t, svc.CanAdminister(models.ActorSnapshot{}, "g1"))

	groupAdmin := memberOf("u1", map[string]models.GroupRole{"g1": models.GroupRoleAdmin})
	require.True(t, svc.CanAdminister(groupAdmin, "g1"))
	require.False(t, svc.CanAdminister(groupAdmin, "g2"))

	member := memberOf("u2", map[string]models.GroupRole{"g1": models.GroupRoleMember})
	require.False(t, svc.CanAdminister(member, "g1"))
}

type permissionObserverStub struct {
	checks []string
}

func (s *permissionObserverStub) ObservePermissionCheck(operation string, allowed bool) {
	s.checks = append(s.checks, fmt.Sprintf("%s=%t", operation, allowed))
}

func TestPermissionChecksReportOutcomes(t *testing.T) {
	observer := &permissionObserverStub{}
	svc := NewPermissionService(&actorLoaderStub{}, observer, nil)
	item := &models.ContentItem{
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner"), models.PublicToken),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	anon := models.ActorSnapshot{}
	require.True(t, svc.CanRead(anon, item))
	require.False(t, svc.CanWrite(anon, item))
	require.False(t, svc.CanAdminister(anon, "g1"))

	admin := memberOf("u1", map[string]models.GroupRole{"g1": models.GroupRoleAdmin})
	require.True(t, svc.CanAdminister(admin, "g1"))

	require.Equal(t, []string{
		"read=true",
		"write=false",
		"administer=false",
		"administer=true",
	}, observer.checks)
}

func TestLoadActorNilClaimsIsAnonymous(t *testing.T) {
	svc := NewPermissionService(&actorLoaderStub{}, nil, nil)
	actor, err := svc.LoadActor(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, actor.Anonymous())
}

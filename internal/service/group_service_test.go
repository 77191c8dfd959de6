package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

// groupAdminStoreStub widens groupStoreStub with the membership and
// subgroup-member writes the admin operations need.
type groupAdminStoreStub struct {
	*groupStoreStub
	memberships map[string]*models.GroupMembership
	sgMembers   map[string]map[string]bool
	sgSeq       int
}

func newGroupAdminStoreStub() *groupAdminStoreStub {
	return &groupAdminStoreStub{
		groupStoreStub: newGroupStoreStub(),
		memberships:    map[string]*models.GroupMembership{},
		sgMembers:      map[string]map[string]bool{},
	}
}

func membershipKey(userID, groupID string) string { return userID + "/" + groupID }

func (s *groupAdminStoreStub) addMembership(userID, groupID string, role models.GroupRole) {
	s.memberships[membershipKey(userID, groupID)] = &models.GroupMembership{UserID: userID, GroupID: groupID, Role: role}
}

func (s *groupAdminStoreStub) GetMembership(ctx context.Context, q sqlx.QueryerContext, userID, groupID string) (*models.GroupMembership, error) {
	if m, ok := s.memberships[membershipKey(userID, groupID)]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *groupAdminStoreStub) UpsertMembership(ctx context.Context, ext sqlx.ExtContext, membership *models.GroupMembership) error {
	clone := *membership
	s.memberships[membershipKey(membership.UserID, membership.GroupID)] = &clone
	return nil
}

func (s *groupAdminStoreStub) CreateSubgroup(ctx context.Context, ext sqlx.ExtContext, subgroup *models.Subgroup) error {
	if subgroup.ID == "" {
		s.sgSeq++
		subgroup.ID = fmt.Sprintf("sg%d", s.sgSeq)
	}
	s.addSubgroup(subgroup.ID, subgroup.GroupID, subgroup.Name)
	return nil
}

func (s *groupAdminStoreStub) DeleteSubgroup(ctx context.Context, ext sqlx.ExtContext, id string) error {
	sg, ok := s.subgroups[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(s.subgroups, id)
	delete(s.sgMembers, id)
	kept := s.bySgGroup[sg.GroupID][:0]
	for _, candidate := range s.bySgGroup[sg.GroupID] {
		if candidate.ID != id {
			kept = append(kept, candidate)
		}
	}
	s.bySgGroup[sg.GroupID] = kept
	return nil
}

func (s *groupAdminStoreStub) AddSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error {
	if s.sgMembers[subgroupID] == nil {
		s.sgMembers[subgroupID] = map[string]bool{}
	}
	s.sgMembers[subgroupID][userID] = true
	return nil
}

func (s *groupAdminStoreStub) RemoveSubgroupMember(ctx context.Context, ext sqlx.ExtContext, subgroupID, userID string) error {
	delete(s.sgMembers[subgroupID], userID)
	return nil
}

type groupFixture struct {
	svc    *GroupService
	store  *groupAdminStoreStub
	actors *actorLoaderStub
	audit  *auditLogStub
	mock   sqlmock.Sqlmock
}

func newGroupFixture(t *testing.T) *groupFixture {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	store := newGroupAdminStoreStub()
	actors := &actorLoaderStub{snapshots: map[string]models.ActorSnapshot{}}
	audit := &auditLogStub{}
	svc := NewGroupService(db, store, NewPermissionService(actors, nil, nil), audit, nil)
	return &groupFixture{svc: svc, store: store, actors: actors, audit: audit, mock: mock}
}

func TestGroupSetMembershipRequiresGroupAdmin(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)
	f.actors.snapshots["member"] = memberOf("member", map[string]models.GroupRole{"g1": models.GroupRoleMember})

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.SetMembership(context.Background(), "g1", dto.SetMembershipRequest{UserID: "u2", Role: "MEMBER"}, userClaims("member"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SetMembership(context.Background(), "g1", dto.SetMembershipRequest{UserID: "u2", Role: "MEMBER"}, nil)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestGroupSetMembershipUpsertsAndAudits(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)
	f.store.addMembership("u2", "g1", models.GroupRolePending)
	f.actors.snapshots["boss"] = memberOf("boss", map[string]models.GroupRole{"g1": models.GroupRoleAdmin})

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	membership, err := f.svc.SetMembership(context.Background(), "g1", dto.SetMembershipRequest{UserID: "u2", Role: "member"}, userClaims("boss"))
	require.NoError(t, err)
	require.Equal(t, models.GroupRoleMember, membership.Role)
	require.Equal(t, models.GroupRoleMember, f.store.memberships["u2/g1"].Role)

	require.Len(t, f.audit.logs, 1)
	log := f.audit.logs[0]
	require.Equal(t, models.AuditActionMembershipChange, log.Action)
	require.JSONEq(t, `{"role":"PENDING"}`, string(log.OldValues))
	require.JSONEq(t, `{"user_id":"u2","role":"MEMBER"}`, string(log.NewValues))
}

func TestGroupSetMembershipRejectsUnknownRole(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)

	_, err := f.svc.SetMembership(context.Background(), "g1", dto.SetMembershipRequest{UserID: "u2", Role: "janitor"}, userClaims("boss"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGroupSetMembershipUnknownGroupIsNotFound(t *testing.T) {
	f := newGroupFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.SetMembership(context.Background(), "ghost", dto.SetMembershipRequest{UserID: "u2", Role: "MEMBER"}, userClaims("boss"))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupCreateSubgroup(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)
	f.actors.snapshots["boss"] = memberOf("boss", map[string]models.GroupRole{"g1": models.GroupRoleOwner})

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.CreateSubgroup(context.Background(), "g1", dto.CreateSubgroupRequest{Name: "   "}, userClaims("boss"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	subgroup, err := f.svc.CreateSubgroup(context.Background(), "g1", dto.CreateSubgroupRequest{Name: " Blitz team "}, userClaims("boss"))
	require.NoError(t, err)
	require.Equal(t, "Blitz team", subgroup.Name)
	require.NotEmpty(t, subgroup.ID)

	subgroups, err := f.svc.ListSubgroups(context.Background(), "g1", userClaims("anyone"))
	require.NoError(t, err)
	require.Len(t, subgroups, 1)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionSubgroupCreate, f.audit.logs[0].Action)
}

func TestGroupDeleteSubgroup(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)
	f.store.addSubgroup("sg1", "g1", "Blitz team")
	f.store.sgMembers["sg1"] = map[string]bool{"u2": true}
	f.actors.snapshots["boss"] = memberOf("boss", map[string]models.GroupRole{"g1": models.GroupRoleAdmin})
	f.actors.snapshots["member"] = memberOf("member", map[string]models.GroupRole{"g1": models.GroupRoleMember})

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.DeleteSubgroup(context.Background(), "sg1", userClaims("member"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.DeleteSubgroup(context.Background(), "sg1", userClaims("boss")))
	require.NotContains(t, f.store.subgroups, "sg1")
	require.NotContains(t, f.store.sgMembers, "sg1")
	require.Empty(t, f.store.bySgGroup["g1"])

	require.Len(t, f.audit.logs, 1)
	log := f.audit.logs[0]
	require.Equal(t, models.AuditActionSubgroupDelete, log.Action)
	require.Equal(t, "g1", *log.ResourceID)
	require.JSONEq(t, `{"name":"Blitz team"}`, string(log.OldValues))
}

func TestGroupDeleteSubgroupUnknownIsNotFound(t *testing.T) {
	f := newGroupFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.DeleteSubgroup(context.Background(), "ghost", userClaims("boss"))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupSubgroupMemberMustBeActiveInParent(t *testing.T) {
	f := newGroupFixture(t)
	f.store.addGroup("g1", "Chess club", false)
	f.store.addSubgroup("sg1", "g1", "Blitz team")
	f.actors.snapshots["boss"] = memberOf("boss", map[string]models.GroupRole{"g1": models.GroupRoleAdmin})

	// No parent membership at all.
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.SetSubgroupMember(context.Background(), "sg1", dto.SubgroupMemberRequest{UserID: "outsider"}, true, userClaims("boss"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// Pending parent membership is not enough.
	f.store.addMembership("pending", "g1", models.GroupRolePending)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.SetSubgroupMember(context.Background(), "sg1", dto.SubgroupMemberRequest{UserID: "pending"}, true, userClaims("boss"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	f.store.addMembership("u2", "g1", models.GroupRoleMember)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.SetSubgroupMember(context.Background(), "sg1", dto.SubgroupMemberRequest{UserID: "u2"}, true, userClaims("boss")))
	require.True(t, f.store.sgMembers["sg1"]["u2"])

	// Removal has no membership precondition.
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.SetSubgroupMember(context.Background(), "sg1", dto.SubgroupMemberRequest{UserID: "u2"}, false, userClaims("boss")))
	require.False(t, f.store.sgMembers["sg1"]["u2"])
}

func TestGroupSubgroupMemberUnknownSubgroup(t *testing.T) {
	f := newGroupFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.SetSubgroupMember(context.Background(), "ghost", dto.SubgroupMemberRequest{UserID: "u2"}, true, userClaims("boss"))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

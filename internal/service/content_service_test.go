package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

type contentStoreStub struct {
	items map[string]*models.ContentItem
	seq   int
}

func newContentStoreStub() *contentStoreStub {
	return &contentStoreStub{items: map[string]*models.ContentItem{}}
}

func (s *contentStoreStub) Create(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error {
	if item.ID == "" {
		s.seq++
		item.ID = fmt.Sprintf("c%d", s.seq)
	}
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *contentStoreStub) GetByID(ctx context.Context, q sqlx.QueryerContext, id string, withDeleted bool) (*models.ContentItem, error) {
	item, ok := s.items[id]
	if !ok || (item.DeletedAt != nil && !withDeleted) {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *contentStoreStub) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ContentItem, error) {
	return s.GetByID(ctx, tx, id, false)
}

func (s *contentStoreStub) Update(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error {
	if _, ok := s.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	item.UpdatedAt = time.Now().UTC()
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *contentStoreStub) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	out := make([]models.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		if item.DeletedAt != nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *contentStoreStub) Purge(ctx context.Context, ext sqlx.ExtContext, id string) error {
	item, ok := s.items[id]
	if !ok || item.DeletedAt == nil {
		return fmt.Errorf("purge content item: not soft-deleted")
	}
	delete(s.items, id)
	return nil
}

type auditLogStub struct {
	logs []*models.AuditLog
}

func (a *auditLogStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type contentFixture struct {
	svc       *ContentService
	contents  *contentStoreStub
	groups    *groupStoreStub
	revisions *revisionStoreStub
	actors    *actorLoaderStub
	audit     *auditLogStub
	mock      sqlmock.Sqlmock
}

func newContentFixture(t *testing.T) *contentFixture {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	contents := newContentStoreStub()
	groups := newGroupStoreStub()
	revisions := newRevisionStoreStub()
	actors := &actorLoaderStub{snapshots: map[string]models.ActorSnapshot{}}
	audit := &auditLogStub{}

	perms := NewPermissionService(actors, nil, nil)
	access := NewAccessService(groups, nil)
	svc := NewContentService(db, contents, perms, access, NewRevisionService(revisions, nil, nil), audit, nil)

	return &contentFixture{
		svc:       svc,
		contents:  contents,
		groups:    groups,
		revisions: revisions,
		actors:    actors,
		audit:     audit,
		mock:      mock,
	}
}

func userClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, SiteRole: models.SiteRoleNone}
}

func TestContentCreateDefaultsToPrivate(t *testing.T) {
	f := newContentFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	item, err := f.svc.Create(context.Background(), dto.CreateContentRequest{Title: "Notes"}, userClaims("u1"), models.SiteContext{})
	require.NoError(t, err)
	require.Equal(t, "u1", item.OwnerID)
	require.Equal(t, []string{"user:u1"}, item.ReadAccess.Strings())
	require.Equal(t, []string{"user:u1"}, item.WriteAccess.Strings())

	require.Len(t, f.revisions.inserted, 1)
	rev := f.revisions.inserted[0]
	require.Equal(t, models.RevisionCreate, rev.Kind)
	require.Equal(t, "u1", rev.AuthorID)
	require.Nil(t, rev.StatusPublishedChanged)
}

func TestContentCreateWithPublishRecordsStatusChange(t *testing.T) {
	f := newContentFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	item, err := f.svc.Create(context.Background(), dto.CreateContentRequest{Title: "News", Publish: true, ReadAccessID: "2"}, userClaims("u1"), models.SiteContext{})
	require.NoError(t, err)
	require.Equal(t, models.StatePublished, item.Lifecycle())
	require.Contains(t, item.ReadAccess.Strings(), "public")

	rev := f.revisions.inserted[0]
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangePublished, *rev.StatusPublishedChanged)
}

func TestContentCreateInGroupRequiresActiveMembership(t *testing.T) {
	f := newContentFixture(t)
	f.groups.addGroup("g1", "Chess club", false)
	f.actors.snapshots["pending"] = memberOf("pending", map[string]models.GroupRole{"g1": models.GroupRolePending})
	groupID := "g1"

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Create(context.Background(), dto.CreateContentRequest{Title: "x", GroupID: &groupID}, userClaims("pending"), models.SiteContext{})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	f.actors.snapshots["member"] = memberOf("member", map[string]models.GroupRole{"g1": models.GroupRoleMember})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	item, err := f.svc.Create(context.Background(), dto.CreateContentRequest{Title: "x", GroupID: &groupID, ReadAccessID: "4"}, userClaims("member"), models.SiteContext{})
	require.NoError(t, err)
	require.Contains(t, item.ReadAccess.Strings(), "group:g1")
}

func TestContentGetHidesUnreadableAsNotFound(t *testing.T) {
	f := newContentFixture(t)
	f.contents.items["c1"] = &models.ContentItem{
		ID:          "c1",
		OwnerID:     "owner",
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	_, err := f.svc.Get(context.Background(), "c1", userClaims("stranger"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Get(context.Background(), "missing", userClaims("stranger"))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestContentListFiltersByReadability(t *testing.T) {
	f := newContentFixture(t)
	f.contents.items["mine"] = &models.ContentItem{
		ID: "mine", OwnerID: "u1",
		ReadAccess:  models.NewAccessList(models.UserToken("u1")),
		WriteAccess: models.NewAccessList(models.UserToken("u1")),
	}
	f.contents.items["theirs"] = &models.ContentItem{
		ID: "theirs", OwnerID: "u2",
		ReadAccess:  models.NewAccessList(models.UserToken("u2")),
		WriteAccess: models.NewAccessList(models.UserToken("u2")),
	}

	items, err := f.svc.List(context.Background(), dto.ContentQuery{}, userClaims("u1"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "mine", items[0].ID)
}

func TestContentUpdateGates(t *testing.T) {
	f := newContentFixture(t)
	f.contents.items["c1"] = &models.ContentItem{
		ID:      "c1",
		OwnerID: "owner",
		Title:   "Original",
		ReadAccess: models.NewAccessList(
			models.UserToken("owner"), models.PublicToken),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}
	title := "Changed"

	// Anonymous callers on a readable item are asked to authenticate.
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, _, err := f.svc.Update(context.Background(), "c1", dto.UpdateContentRequest{Title: &title}, nil)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	// A reader without a write grant is refused, not hidden.
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, _, err = f.svc.Update(context.Background(), "c1", dto.UpdateContentRequest{Title: &title}, userClaims("reader"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.Empty(t, f.revisions.inserted)
}

func TestContentUpdateRecordsMinimalRevision(t *testing.T) {
	f := newContentFixture(t)
	f.contents.items["c1"] = &models.ContentItem{
		ID:          "c1",
		OwnerID:     "owner",
		Title:       "Original",
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}
	title := "Changed"

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	item, revision, err := f.svc.Update(context.Background(), "c1", dto.UpdateContentRequest{Title: &title}, userClaims("owner"))
	require.NoError(t, err)
	require.Equal(t, "Changed", item.Title)
	require.NotNil(t, revision)
	require.Equal(t, models.RevisionUpdate, revision.Kind)
	require.Equal(t, []string{"title"}, []string(revision.ChangedFields))
	require.Nil(t, revision.StatusPublishedChanged)
}

func TestContentDeleteIsSoftAndKeepsHistory(t *testing.T) {
	f := newContentFixture(t)
	now := time.Now().UTC()
	f.contents.items["c1"] = &models.ContentItem{
		ID:          "c1",
		OwnerID:     "owner",
		Title:       "Doomed",
		PublishedAt: &now,
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Delete(context.Background(), "c1", userClaims("owner")))

	require.NotNil(t, f.contents.items["c1"].DeletedAt)
	require.Len(t, f.revisions.inserted, 1)
	rev := f.revisions.inserted[0]
	require.Equal(t, models.RevisionDelete, rev.Kind)
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangeDeleted, *rev.StatusPublishedChanged)

	// The deleted item is gone from reads but its history remains.
	_, err := f.svc.Get(context.Background(), "c1", userClaims("owner"))
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NotEmpty(t, f.revisions.byID["c1"])
}

func TestContentPurgeRequiresSiteAdmin(t *testing.T) {
	f := newContentFixture(t)
	now := time.Now().UTC()
	f.contents.items["c1"] = &models.ContentItem{ID: "c1", OwnerID: "owner", DeletedAt: &now}

	err := f.svc.Purge(context.Background(), "c1", userClaims("owner"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	admin := &models.JWTClaims{UserID: "admin", SiteRole: models.SiteRoleAdmin}
	f.revisions.byID["c1"] = []models.Revision{{ContainerID: "c1"}}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.Purge(context.Background(), "c1", admin))

	require.NotContains(t, f.contents.items, "c1")
	require.Empty(t, f.revisions.byID["c1"])
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionContentPurge, f.audit.logs[0].Action)
}

func TestContentSetAccessAuditsWithoutRevision(t *testing.T) {
	f := newContentFixture(t)
	f.contents.items["c1"] = &models.ContentItem{
		ID:          "c1",
		OwnerID:     "owner",
		Title:       "Notes",
		ReadAccess:  models.NewAccessList(models.UserToken("owner")),
		WriteAccess: models.NewAccessList(models.UserToken("owner")),
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	item, err := f.svc.SetAccess(context.Background(), "c1", dto.SetAccessRequest{ReadAccessID: "1"}, userClaims("owner"), models.SiteContext{})
	require.NoError(t, err)
	require.Contains(t, item.ReadAccess.Strings(), "logged_in")

	require.Empty(t, f.revisions.inserted)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionAccessChange, f.audit.logs[0].Action)

	// An invalid selector is rejected with the dedicated error code.
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SetAccess(context.Background(), "c1", dto.SetAccessRequest{ReadAccessID: "3"}, userClaims("owner"), models.SiteContext{})
	require.Equal(t, appErrors.ErrInvalidAccessLevel.Code, appErrors.FromError(err).Code)
}

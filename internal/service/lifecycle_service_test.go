package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

type lifecycleStoreStub struct {
	due   []models.ContentItem
	items map[string]*models.ContentItem
	// transitions still claimable per item, keyed "id/name"
	claimable map[string]bool
	claims    []string
}

func newLifecycleStoreStub() *lifecycleStoreStub {
	return &lifecycleStoreStub{
		items:     map[string]*models.ContentItem{},
		claimable: map[string]bool{},
	}
}

func (s *lifecycleStoreStub) ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	return s.due, nil
}

func (s *lifecycleStoreStub) GetByID(ctx context.Context, q sqlx.QueryerContext, id string, withDeleted bool) (*models.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *lifecycleStoreStub) claim(id, name string, now time.Time) (bool, error) {
	key := id + "/" + name
	if !s.claimable[key] {
		return false, nil
	}
	s.claimable[key] = false
	s.claims = append(s.claims, key)
	item := s.items[id]
	switch name {
	case "published":
		item.PublishedAt = &now
		item.SchedulePublishAt = nil
	case "archived":
		item.Archived = true
		item.ScheduleArchiveAt = nil
	case "deleted":
		item.DeletedAt = &now
		item.ScheduleDeleteAt = nil
	}
	return true, nil
}

func (s *lifecycleStoreStub) ClaimScheduledPublish(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	return s.claim(id, "published", now)
}

func (s *lifecycleStoreStub) ClaimScheduledArchive(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	return s.claim(id, "archived", now)
}

func (s *lifecycleStoreStub) ClaimScheduledDelete(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	return s.claim(id, "deleted", now)
}

type sweepObserverStub struct {
	transitions []string
	durations   []time.Duration
}

func (s *sweepObserverStub) ObserveSweepTransition(transition string) {
	s.transitions = append(s.transitions, transition)
}

func (s *sweepObserverStub) ObserveSweepDuration(duration time.Duration) {
	s.durations = append(s.durations, duration)
}

func newLifecycleFixture(t *testing.T) (*LifecycleService, *lifecycleStoreStub, *revisionStoreStub, *sweepObserverStub, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	contents := newLifecycleStoreStub()
	revisions := newRevisionStoreStub()
	observer := &sweepObserverStub{}
	svc := NewLifecycleService(db, contents, NewRevisionService(revisions, nil, nil), observer, nil, LifecycleServiceConfig{})
	return svc, contents, revisions, observer, mock
}

func TestSweepAppliesDueArchiveWithSystemRevision(t *testing.T) {
	svc, contents, revisions, observer, mock := newLifecycleFixture(t)

	published := time.Now().UTC().Add(-time.Hour)
	due := time.Now().UTC().Add(-time.Minute)
	item := &models.ContentItem{
		ID:                "c1",
		OwnerID:           "owner",
		Title:             "Expiring notice",
		Fields:            json.RawMessage(`{"body":"old"}`),
		PublishedAt:       &published,
		ScheduleArchiveAt: &due,
	}
	contents.items["c1"] = item
	contents.due = []models.ContentItem{*item}
	contents.claimable["c1/archived"] = true

	// One transaction per transition attempt: publish and delete roll
	// back after losing the claim, archive commits.
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, svc.RunLifecycleSweep(context.Background(), "default"))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{"c1/archived"}, contents.claims)
	require.Equal(t, []string{"archived"}, observer.transitions)

	require.Len(t, revisions.inserted, 1)
	rev := revisions.inserted[0]
	require.Equal(t, SystemActorID, rev.AuthorID)
	require.Equal(t, models.RevisionUpdate, rev.Kind)
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangeArchived, *rev.StatusPublishedChanged)
	require.Equal(t, []string{"archived"}, []string(rev.ChangedFields))
}

func TestSweepPublishOnArchivedItemKeepsLifecycle(t *testing.T) {
	svc, contents, revisions, observer, mock := newLifecycleFixture(t)

	// The item was archived while a publish was still scheduled. The claim
	// flips published_at, but the effective lifecycle stays ARCHIVED, so the
	// revision must not report a publish status change.
	due := time.Now().UTC().Add(-time.Minute)
	item := &models.ContentItem{
		ID:                "c1",
		OwnerID:           "owner",
		Title:             "Shelved announcement",
		Archived:          true,
		SchedulePublishAt: &due,
	}
	contents.items["c1"] = item
	contents.due = []models.ContentItem{*item}
	contents.claimable["c1/published"] = true

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, svc.RunLifecycleSweep(context.Background(), "default"))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{"c1/published"}, contents.claims)
	require.Equal(t, []string{"published"}, observer.transitions)
	require.Len(t, observer.durations, 1)

	require.Len(t, revisions.inserted, 1)
	rev := revisions.inserted[0]
	require.Equal(t, models.RevisionUpdate, rev.Kind)
	require.Nil(t, rev.StatusPublishedChanged)
	require.Equal(t, []string{"publishedAt"}, []string(rev.ChangedFields))
}

func TestSweepIsIdempotentAfterClaimConsumed(t *testing.T) {
	svc, contents, revisions, observer, mock := newLifecycleFixture(t)

	due := time.Now().UTC().Add(-time.Minute)
	item := &models.ContentItem{
		ID:                "c1",
		OwnerID:           "owner",
		Title:             "Once only",
		ScheduleArchiveAt: &due,
	}
	contents.items["c1"] = item
	contents.due = []models.ContentItem{*item}
	contents.claimable["c1/archived"] = true

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()
	require.NoError(t, svc.RunLifecycleSweep(context.Background(), "default"))
	require.Len(t, revisions.inserted, 1)

	// A second pass sees the item but loses every claim; nothing happens.
	contents.due = []models.ContentItem{*contents.items["c1"]}
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	require.NoError(t, svc.RunLifecycleSweep(context.Background(), "default"))
	require.Len(t, revisions.inserted, 1)
	require.Equal(t, []string{"archived"}, observer.transitions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepDeleteRecordsTerminalRevision(t *testing.T) {
	svc, contents, revisions, _, mock := newLifecycleFixture(t)

	due := time.Now().UTC().Add(-time.Minute)
	item := &models.ContentItem{
		ID:               "c1",
		OwnerID:          "owner",
		Title:            "Temporary",
		ScheduleDeleteAt: &due,
	}
	contents.items["c1"] = item
	contents.due = []models.ContentItem{*item}
	contents.claimable["c1/deleted"] = true

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.RunLifecycleSweep(context.Background(), "default"))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, revisions.inserted, 1)
	rev := revisions.inserted[0]
	require.Equal(t, models.RevisionDelete, rev.Kind)
	require.Empty(t, rev.Content)
	require.NotEmpty(t, rev.OriginalContent)
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangeDeleted, *rev.StatusPublishedChanged)
}

func TestSweepAbortsBetweenItemsOnCancel(t *testing.T) {
	svc, contents, _, _, _ := newLifecycleFixture(t)
	contents.due = []models.ContentItem{{ID: "c1"}, {ID: "c2"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.RunLifecycleSweep(ctx, "default")
	require.ErrorIs(t, err, context.Canceled)
}

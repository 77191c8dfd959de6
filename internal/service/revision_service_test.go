package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

type revisionStoreStub struct {
	inserted []*models.Revision
	byID     map[string][]models.Revision
}

func newRevisionStoreStub() *revisionStoreStub {
	return &revisionStoreStub{byID: map[string][]models.Revision{}}
}

func (s *revisionStoreStub) Insert(ctx context.Context, ext sqlx.ExtContext, revision *models.Revision) error {
	s.inserted = append(s.inserted, revision)
	s.byID[revision.ContainerID] = append([]models.Revision{*revision}, s.byID[revision.ContainerID]...)
	return nil
}

func (s *revisionStoreStub) ListByContainer(ctx context.Context, filter models.RevisionFilter) ([]models.Revision, error) {
	return s.byID[filter.ContainerID], nil
}

func (s *revisionStoreStub) LastByContainer(ctx context.Context, q sqlx.QueryerContext, containerID string) (*models.Revision, error) {
	revisions := s.byID[containerID]
	if len(revisions) == 0 {
		return nil, sql.ErrNoRows
	}
	latest := revisions[0]
	return &latest, nil
}

func (s *revisionStoreStub) DeleteByContainer(ctx context.Context, ext sqlx.ExtContext, containerID string) error {
	delete(s.byID, containerID)
	return nil
}

func snap(pairs map[string]string) models.ContentSnapshot {
	out := models.ContentSnapshot{}
	for k, v := range pairs {
		out[k] = json.RawMessage(v)
	}
	return out
}

func TestRecordMutationCreateKind(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	rev, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		After:       snap(map[string]string{"title": `"New page"`, "archived": "false"}),
		BeforeState: models.StateDraft,
		AfterState:  models.StateDraft,
	})
	require.NoError(t, err)
	require.Equal(t, models.RevisionCreate, rev.Kind)
	require.Equal(t, "u1", rev.AuthorID)
	require.Nil(t, rev.StatusPublishedChanged)
	require.Equal(t, []string{"archived", "title"}, []string(rev.ChangedFields))
	require.Empty(t, rev.OriginalContent)
}

func TestRecordMutationDiffIsMinimalAndByteExact(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	before := snap(map[string]string{
		"title":    `"Minutes"`,
		"body":     `"<p>old</p>"`,
		"location": `"Room 4"`,
	})
	after := snap(map[string]string{
		"title":    `"Minutes"`,
		"body":     `"<p>new</p>"`,
		"location": `"Room 4"`,
		"speaker":  `"Ada"`,
	})

	rev, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		Before:      before,
		After:       after,
		BeforeState: models.StatePublished,
		AfterState:  models.StatePublished,
	})
	require.NoError(t, err)
	require.Equal(t, models.RevisionUpdate, rev.Kind)
	// Unchanged fields never appear; added fields do. Sorted for a
	// stable wire form.
	require.Equal(t, []string{"body", "speaker"}, []string(rev.ChangedFields))
}

func TestRecordMutationTrackedFieldsFilterDiff(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	rev, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		Before:      snap(map[string]string{"title": `"a"`, "internal": `1`}),
		After:       snap(map[string]string{"title": `"b"`, "internal": `2`}),
		Tracked:     []string{"title"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"title"}, []string(rev.ChangedFields))
}

func TestRecordMutationStatusChange(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	rev, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		Before:      snap(map[string]string{"publishedAt": "null"}),
		After:       snap(map[string]string{"publishedAt": `"2026-03-01T12:00:00Z"`}),
		BeforeState: models.StateDraft,
		AfterState:  models.StatePublished,
	})
	require.NoError(t, err)
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangePublished, *rev.StatusPublishedChanged)

	// Unpublishing back to draft carries no status marker.
	rev, err = svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		Before:      snap(map[string]string{"publishedAt": `"2026-03-01T12:00:00Z"`}),
		After:       snap(map[string]string{"publishedAt": "null"}),
		BeforeState: models.StatePublished,
		AfterState:  models.StateDraft,
	})
	require.NoError(t, err)
	require.Nil(t, rev.StatusPublishedChanged)
}

func TestRecordMutationDeleteKindAndSystemAuthor(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	rev, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		ContainerID: "c1",
		Before:      snap(map[string]string{"title": `"Old"`}),
		BeforeState: models.StatePublished,
		AfterState:  models.StateDeleted,
	})
	require.NoError(t, err)
	require.Equal(t, models.RevisionDelete, rev.Kind)
	require.Equal(t, SystemActorID, rev.AuthorID)
	require.NotNil(t, rev.StatusPublishedChanged)
	require.Equal(t, models.StatusChangeDeleted, *rev.StatusPublishedChanged)
}

type revisionObserverStub struct {
	kinds []string
}

func (s *revisionObserverStub) ObserveRevision(kind string) {
	s.kinds = append(s.kinds, kind)
}

func TestRecordMutationObservesKind(t *testing.T) {
	store := newRevisionStoreStub()
	observer := &revisionObserverStub{}
	svc := NewRevisionService(store, observer, nil)

	_, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		After:       snap(map[string]string{"title": `"New"`}),
	})
	require.NoError(t, err)

	_, err = svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		Before:      snap(map[string]string{"title": `"New"`}),
		After:       snap(map[string]string{"title": `"Newer"`}),
	})
	require.NoError(t, err)

	_, err = svc.RecordMutation(context.Background(), nil, MutationRecord{
		ContainerID: "c1",
		Before:      snap(map[string]string{"title": `"Newer"`}),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"create", "update", "delete"}, observer.kinds)

	// A failed insert must not count.
	_, err = svc.RecordMutation(context.Background(), nil, MutationRecord{AuthorID: "u1"})
	require.Error(t, err)
	require.Len(t, observer.kinds, 3)
}

func TestRecordMutationRequiresContainer(t *testing.T) {
	svc := NewRevisionService(newRevisionStoreStub(), nil, nil)
	_, err := svc.RecordMutation(context.Background(), nil, MutationRecord{AuthorID: "u1"})
	require.Error(t, err)
}

func TestLastReturnsNilWithoutHistory(t *testing.T) {
	svc := NewRevisionService(newRevisionStoreStub(), nil, nil)
	rev, err := svc.Last(context.Background(), nil, "c1")
	require.NoError(t, err)
	require.Nil(t, rev)
}

func TestExportHistoryCSV(t *testing.T) {
	store := newRevisionStoreStub()
	svc := NewRevisionService(store, nil, nil)

	_, err := svc.RecordMutation(context.Background(), nil, MutationRecord{
		AuthorID:    "u1",
		ContainerID: "c1",
		After:       snap(map[string]string{"title": `"New"`}),
	})
	require.NoError(t, err)

	data, contentType, err := svc.ExportHistory(context.Background(), "c1", "csv", 100)
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)

	body := string(data)
	require.True(t, strings.HasPrefix(body, "created_at,author,type,status_changed,changed_fields"))
	require.Contains(t, body, "u1")
	require.Contains(t, body, "create")

	_, _, err = svc.ExportHistory(context.Background(), "c1", "xml", 100)
	require.Error(t, err)
}

package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/export"
)

// SystemActorID authors revisions produced by scheduled sweeps.
const SystemActorID = "system"

type revisionStore interface {
	Insert(ctx context.Context, ext sqlx.ExtContext, revision *models.Revision) error
	ListByContainer(ctx context.Context, filter models.RevisionFilter) ([]models.Revision, error)
	LastByContainer(ctx context.Context, q sqlx.QueryerContext, containerID string) (*models.Revision, error)
	DeleteByContainer(ctx context.Context, ext sqlx.ExtContext, containerID string) error
}

// MutationRecord captures one content mutation for the revision log.
// Snapshots are the serialized field maps before and after the change;
// lifecycle states are derived by the caller from the same item the
// snapshots were taken of.
type MutationRecord struct {
	AuthorID    string
	ContainerID string
	Before      models.ContentSnapshot
	After       models.ContentSnapshot
	BeforeState models.LifecycleState
	AfterState  models.LifecycleState
	// Tracked restricts diffing to the subtype's tracked field contract.
	// Empty means every snapshot key is tracked.
	Tracked []string
}

// RevisionService is the revision engine: it diffs snapshots, classifies
// the lifecycle transition, and appends the immutable revision record
// inside the caller's transaction.
type RevisionService struct {
	repo    revisionStore
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	metrics revisionObserver
	logger  *zap.Logger
}

type revisionObserver interface {
	ObserveRevision(kind string)
}

// NewRevisionService constructs the service. metrics may be nil.
func NewRevisionService(repo revisionStore, metrics revisionObserver, logger *zap.Logger) *RevisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevisionService{
		repo:    repo,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		metrics: metrics,
		logger:  logger,
	}
}

// RecordMutation computes and persists the revision for one mutation. It
// must be called with the transaction the mutation itself runs in; both
// are committed or rolled back together, so no revision ever exists
// without its mutation or vice versa.
func (s *RevisionService) RecordMutation(ctx context.Context, ext sqlx.ExtContext, record MutationRecord) (*models.Revision, error) {
	if record.ContainerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "container id is required")
	}
	author := record.AuthorID
	if author == "" {
		author = SystemActorID
	}

	kind := models.RevisionUpdate
	switch {
	case len(record.Before) == 0:
		kind = models.RevisionCreate
	case len(record.After) == 0:
		kind = models.RevisionDelete
	}

	revision := &models.Revision{
		ContainerID:            record.ContainerID,
		AuthorID:               author,
		Kind:                   kind,
		Content:                record.After.Clone(),
		OriginalContent:        record.Before.Clone(),
		ChangedFields:          changedFields(record.Before, record.After, record.Tracked),
		StatusPublishedChanged: models.ClassifyTransition(record.BeforeState, record.AfterState),
		CreatedAt:              time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, ext, revision); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist revision")
	}
	if s.metrics != nil {
		s.metrics.ObserveRevision(string(kind))
	}
	return revision, nil
}

// Last returns the most recent revision for a container, or nil when the
// container has no history yet.
func (s *RevisionService) Last(ctx context.Context, q sqlx.QueryerContext, containerID string) (*models.Revision, error) {
	revision, err := s.repo.LastByContainer(ctx, q, containerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last revision")
	}
	return revision, nil
}

// List returns a container's revision history, most recent first.
func (s *RevisionService) List(ctx context.Context, filter models.RevisionFilter) ([]models.Revision, error) {
	if filter.ContainerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "container id is required")
	}
	revisions, err := s.repo.ListByContainer(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}
	return revisions, nil
}

// PurgeHistory removes a purged container's revisions. Only the content
// purge path may call this; ordinary deletes keep the full history.
func (s *RevisionService) PurgeHistory(ctx context.Context, ext sqlx.ExtContext, containerID string) error {
	if err := s.repo.DeleteByContainer(ctx, ext, containerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge revision history")
	}
	return nil
}

// ExportHistory renders a container's history as CSV or PDF for audit
// compliance exports.
func (s *RevisionService) ExportHistory(ctx context.Context, containerID, format string, maxRows int) ([]byte, string, error) {
	revisions, err := s.List(ctx, models.RevisionFilter{ContainerID: containerID, Limit: maxRows})
	if err != nil {
		return nil, "", err
	}

	table := export.HistoryTable{
		Headers: []string{"created_at", "author", "type", "status_changed", "changed_fields"},
	}
	for _, rev := range revisions {
		status := ""
		if rev.StatusPublishedChanged != nil {
			status = string(*rev.StatusPublishedChanged)
		}
		table.Rows = append(table.Rows, map[string]string{
			"created_at":     rev.CreatedAt.Format(time.RFC3339),
			"author":         rev.AuthorID,
			"type":           string(rev.Kind),
			"status_changed": status,
			"changed_fields": strings.Join(rev.ChangedFields, ","),
		})
	}

	switch format {
	case "csv":
		data, err := s.csv.Render(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := s.pdf.Render(table, fmt.Sprintf("Revision history %s", containerID))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return data, "application/pdf", nil
	}
	return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}

// changedFields returns the sorted set of keys present in either snapshot
// whose serialized values differ. Comparison is exact byte equality on
// the raw JSON, never semantic, so e.g. an attachment rename inside a
// rich-text field always registers.
func changedFields(before, after models.ContentSnapshot, tracked []string) models.StringList {
	var trackedSet map[string]struct{}
	if len(tracked) > 0 {
		trackedSet = make(map[string]struct{}, len(tracked))
		for _, f := range tracked {
			trackedSet[f] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	changed := models.StringList{}
	consider := func(key string) {
		if _, done := seen[key]; done {
			return
		}
		seen[key] = struct{}{}
		if trackedSet != nil {
			if _, ok := trackedSet[key]; !ok {
				return
			}
		}
		beforeVal, inBefore := before[key]
		afterVal, inAfter := after[key]
		if inBefore != inAfter || !bytes.Equal(beforeVal, afterVal) {
			changed = append(changed, key)
		}
	}
	for key := range before {
		consider(key)
	}
	for key := range after {
		consider(key)
	}
	sort.Strings(changed)
	return changed
}

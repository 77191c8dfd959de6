package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

const revisionColumns = `id, container_id, author_id, kind, content, original_content,
       changed_fields, status_published_changed, created_at`

// RevisionRepository persists immutable revision records. Rows are only
// ever inserted; the sole delete path is container purge.
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository constructs the repository.
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// Insert writes a revision row. The caller passes the transaction the
// content mutation runs in so both commit or roll back together.
func (r *RevisionRepository) Insert(ctx context.Context, ext sqlx.ExtContext, revision *models.Revision) error {
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO revisions
	(id, container_id, author_id, kind, content, original_content, changed_fields, status_published_changed, created_at)
	VALUES (:id, :container_id, :author_id, :kind, :content, :original_content, :changed_fields, :status_published_changed, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, revision); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

// ListByContainer returns a container's revisions, most recent first.
func (r *RevisionRepository) ListByContainer(ctx context.Context, filter models.RevisionFilter) ([]models.Revision, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.ContainerID}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM revisions WHERE container_id = $1`, revisionColumns))

	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		builder.WriteString(fmt.Sprintf(" AND author_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		builder.WriteString(fmt.Sprintf(" AND kind = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var revisions []models.Revision
	if err := r.db.SelectContext(ctx, &revisions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// LastByContainer returns the most recent revision for a container.
func (r *RevisionRepository) LastByContainer(ctx context.Context, q sqlx.QueryerContext, containerID string) (*models.Revision, error) {
	query := fmt.Sprintf(`SELECT %s FROM revisions WHERE container_id = $1 ORDER BY created_at DESC LIMIT 1`, revisionColumns)
	var revision models.Revision
	if err := sqlx.GetContext(ctx, q, &revision, query, containerID); err != nil {
		return nil, err
	}
	return &revision, nil
}

// DeleteByContainer removes all revisions of a purged container.
func (r *RevisionRepository) DeleteByContainer(ctx context.Context, ext sqlx.ExtContext, containerID string) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM revisions WHERE container_id = $1`, containerID); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}

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

const contentColumns = `id, owner_id, group_id, title, read_access, write_access, tags, fields,
       published_at, archived, schedule_publish_at, schedule_archive_at, schedule_delete_at,
       deleted_at, created_at, updated_at`

// ContentRepository persists content items. Methods that participate in a
// mutation + revision transaction accept an sqlx.ExtContext so the caller
// controls transaction boundaries.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *ContentRepository) DB() *sqlx.DB { return r.db }

// Create inserts a new content item row.
func (r *ContentRepository) Create(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO content_items
	(id, owner_id, group_id, title, read_access, write_access, tags, fields,
	 published_at, archived, schedule_publish_at, schedule_archive_at, schedule_delete_at,
	 deleted_at, created_at, updated_at)
	VALUES (:id, :owner_id, :group_id, :title, :read_access, :write_access, :tags, :fields,
	 :published_at, :archived, :schedule_publish_at, :schedule_archive_at, :schedule_delete_at,
	 :deleted_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, item); err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	return nil
}

// GetByID fetches a content item by identifier, soft-deleted rows included
// only when withDeleted is set.
func (r *ContentRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string, withDeleted bool) (*models.ContentItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_items WHERE id = $1`, contentColumns)
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var item models.ContentItem
	if err := sqlx.GetContext(ctx, q, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetForUpdate locks and fetches a content item within a transaction.
func (r *ContentRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ContentItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_items WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, contentColumns)
	var item models.ContentItem
	if err := tx.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update writes all mutable columns of the item.
func (r *ContentRepository) Update(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE content_items SET
	 group_id = :group_id, title = :title, read_access = :read_access, write_access = :write_access,
	 tags = :tags, fields = :fields, published_at = :published_at, archived = :archived,
	 schedule_publish_at = :schedule_publish_at, schedule_archive_at = :schedule_archive_at,
	 schedule_delete_at = :schedule_delete_at, deleted_at = :deleted_at, updated_at = :updated_at
	WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, item); err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	return nil
}

// List returns items matching the filter, newest first.
func (r *ContentRepository) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM content_items WHERE deleted_at IS NULL`, contentColumns))

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		builder.WriteString(fmt.Sprintf(" AND owner_id = $%d", len(args)))
	}
	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		builder.WriteString(fmt.Sprintf(" AND group_id = $%d", len(args)))
	}
	switch filter.State {
	case models.StateDraft:
		builder.WriteString(" AND published_at IS NULL AND NOT archived")
	case models.StatePublished:
		builder.WriteString(" AND published_at IS NOT NULL AND NOT archived")
	case models.StateArchived:
		builder.WriteString(" AND archived")
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var items []models.ContentItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return items, nil
}

// ListScheduledDue returns items with any lifecycle schedule at or before
// the given instant.
func (r *ContentRepository) ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM content_items
	WHERE deleted_at IS NULL
	  AND (schedule_publish_at <= $1 OR schedule_archive_at <= $1 OR schedule_delete_at <= $1)
	ORDER BY created_at
	LIMIT %d`, contentColumns, limit)
	var items []models.ContentItem
	if err := r.db.SelectContext(ctx, &items, query, now); err != nil {
		return nil, fmt.Errorf("list scheduled content: %w", err)
	}
	return items, nil
}

// ClaimScheduledPublish atomically applies a due publish schedule. The
// schedule column is cleared in the same statement, so a second sweep pass
// can never claim the same transition again.
func (r *ContentRepository) ClaimScheduledPublish(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const query = `UPDATE content_items
	SET published_at = $2, schedule_publish_at = NULL, updated_at = $2
	WHERE id = $1 AND deleted_at IS NULL
	  AND schedule_publish_at IS NOT NULL AND schedule_publish_at <= $2`
	return r.claim(ctx, ext, query, id, now)
}

// ClaimScheduledArchive atomically applies a due archive schedule.
func (r *ContentRepository) ClaimScheduledArchive(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const query = `UPDATE content_items
	SET archived = TRUE, schedule_archive_at = NULL, updated_at = $2
	WHERE id = $1 AND deleted_at IS NULL
	  AND schedule_archive_at IS NOT NULL AND schedule_archive_at <= $2`
	return r.claim(ctx, ext, query, id, now)
}

// ClaimScheduledDelete atomically applies a due delete schedule.
func (r *ContentRepository) ClaimScheduledDelete(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const query = `UPDATE content_items
	SET deleted_at = $2, schedule_delete_at = NULL, updated_at = $2
	WHERE id = $1 AND deleted_at IS NULL
	  AND schedule_delete_at IS NOT NULL AND schedule_delete_at <= $2`
	return r.claim(ctx, ext, query, id, now)
}

func (r *ContentRepository) claim(ctx context.Context, ext sqlx.ExtContext, query, id string, now time.Time) (bool, error) {
	result, err := ext.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("claim scheduled transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check claim rows: %w", err)
	}
	return rows > 0, nil
}

// Purge permanently removes a soft-deleted item row. Revisions are removed
// by the caller in the same transaction.
func (r *ContentRepository) Purge(ctx context.Context, ext sqlx.ExtContext, id string) error {
	result, err := ext.ExecContext(ctx, `DELETE FROM content_items WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge content item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check purge rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("purge content item: not soft-deleted")
	}
	return nil
}

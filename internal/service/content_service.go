package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

type contentStore interface {
	Create(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string, withDeleted bool) (*models.ContentItem, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ContentItem, error)
	Update(ctx context.Context, ext sqlx.ExtContext, item *models.ContentItem) error
	List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error)
	Purge(ctx context.Context, ext sqlx.ExtContext, id string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ContentService is the CRUD vehicle around the permission resolver and
// revision engine. Every mutation runs as: open transaction, load a
// consistent actor snapshot, gate, mutate, record the revision, commit.
type ContentService struct {
	db        *sqlx.DB
	contents  contentStore
	perms     *PermissionService
	access    *AccessService
	revisions *RevisionService
	audit     auditLogger
	logger    *zap.Logger
}

// NewContentService constructs the service.
func NewContentService(db *sqlx.DB, contents contentStore, perms *PermissionService, access *AccessService, revisions *RevisionService, audit auditLogger, logger *zap.Logger) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{
		db:        db,
		contents:  contents,
		perms:     perms,
		access:    access,
		revisions: revisions,
		audit:     audit,
		logger:    logger,
	}
}

// Create inserts a new content item with its create revision.
func (s *ContentService) Create(ctx context.Context, req dto.CreateContentRequest, claims *models.JWTClaims, site models.SiteContext) (*models.ContentItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	item := &models.ContentItem{
		OwnerID: claims.UserID,
		GroupID: req.GroupID,
		Title:   req.Title,
		Fields:  normalizeJSON(req.Fields, "{}"),
		Tags:    normalizeJSON(req.Tags, "[]"),
	}
	if req.Publish {
		now := time.Now().UTC()
		item.PublishedAt = &now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	actor, err := s.perms.LoadActor(ctx, tx, claims)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if req.GroupID != nil && *req.GroupID != "" && !actor.SiteAdmin() {
		role, ok := actor.RoleIn(*req.GroupID)
		if !ok || !role.Active() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not an active member of the target group")
		}
	}

	readACL, err := s.resolveLevel(ctx, tx, item, req.ReadAccessID, site, models.AccessLevel{Kind: models.LevelPrivate})
	if err != nil {
		return nil, err
	}
	writeACL, err := s.resolveLevel(ctx, tx, item, req.WriteAccessID, site, models.AccessLevel{Kind: models.LevelPrivate})
	if err != nil {
		return nil, err
	}
	item.ReadAccess = readACL
	item.WriteAccess = writeACL

	if err := s.contents.Create(ctx, tx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create content")
	}

	after, err := item.Snapshot()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
	}
	if _, err := s.revisions.RecordMutation(ctx, tx, MutationRecord{
		AuthorID:    claims.UserID,
		ContainerID: item.ID,
		After:       after,
		BeforeState: models.StateDraft,
		AfterState:  item.Lifecycle(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit content create")
	}
	return item, nil
}

// Get returns an item the actor may read. Unreadable and absent items are
// indistinguishable.
func (s *ContentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ContentItem, error) {
	item, err := s.contents.GetByID(ctx, s.db, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	actor, err := s.perms.LoadActor(ctx, s.db, claims)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if !s.perms.CanRead(actor, item) {
		return nil, appErrors.ErrNotFound
	}
	return item, nil
}

// List returns the items matching the filter that the actor may read.
func (s *ContentService) List(ctx context.Context, query dto.ContentQuery, claims *models.JWTClaims) ([]models.ContentItem, error) {
	actor, err := s.perms.LoadActor(ctx, s.db, claims)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	items, err := s.contents.List(ctx, models.ContentFilter{
		OwnerID: query.OwnerID,
		GroupID: query.GroupID,
		State:   models.LifecycleState(query.State),
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list content")
	}
	visible := make([]models.ContentItem, 0, len(items))
	for i := range items {
		if s.perms.CanRead(actor, &items[i]) {
			visible = append(visible, items[i])
		}
	}
	return visible, nil
}

// Update applies proposed field changes and records the revision in the
// same transaction.
func (s *ContentService) Update(ctx context.Context, id string, req dto.UpdateContentRequest, claims *models.JWTClaims) (*models.ContentItem, *models.Revision, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	item, actor, err := s.lockForWrite(ctx, tx, id, claims)
	if err != nil {
		return nil, nil, err
	}

	before, err := item.Snapshot()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
	}
	beforeState := item.Lifecycle()

	applyUpdate(item, req)

	if err := s.contents.Update(ctx, tx, item); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update content")
	}

	after, err := item.Snapshot()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
	}
	revision, err := s.revisions.RecordMutation(ctx, tx, MutationRecord{
		AuthorID:    actor.UserID,
		ContainerID: item.ID,
		Before:      before,
		After:       after,
		BeforeState: beforeState,
		AfterState:  item.Lifecycle(),
	})
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit content update")
	}
	return item, revision, nil
}

// SetAccess expands the given selectors in the item's current context and
// stores the resulting access lists.
func (s *ContentService) SetAccess(ctx context.Context, id string, req dto.SetAccessRequest, claims *models.JWTClaims, site models.SiteContext) (*models.ContentItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	item, actor, err := s.lockForWrite(ctx, tx, id, claims)
	if err != nil {
		return nil, err
	}

	oldRead := item.ReadAccess.Strings()
	oldWrite := item.WriteAccess.Strings()

	readACL, err := s.resolveLevel(ctx, tx, item, req.ReadAccessID, site, models.AccessLevel{Kind: models.LevelPrivate})
	if err != nil {
		return nil, err
	}
	item.ReadAccess = readACL
	if req.WriteAccessID != "" {
		writeACL, err := s.resolveLevel(ctx, tx, item, req.WriteAccessID, site, models.AccessLevel{Kind: models.LevelPrivate})
		if err != nil {
			return nil, err
		}
		item.WriteAccess = writeACL
	}

	if err := s.contents.Update(ctx, tx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update access lists")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit access change")
	}

	oldValues, _ := json.Marshal(map[string]interface{}{"read_access": oldRead, "write_access": oldWrite})
	newValues, _ := json.Marshal(map[string]interface{}{"read_access": item.ReadAccess.Strings(), "write_access": item.WriteAccess.Strings()})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAccessChange,
		Resource:   "content",
		ResourceID: &item.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
	return item, nil
}

// Delete soft-deletes the item and records the terminal delete revision.
// History is kept until the container is purged.
func (s *ContentService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	item, actor, err := s.lockForWrite(ctx, tx, id, claims)
	if err != nil {
		return err
	}

	before, err := item.Snapshot()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
	}
	beforeState := item.Lifecycle()

	now := time.Now().UTC()
	item.DeletedAt = &now
	if err := s.contents.Update(ctx, tx, item); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content")
	}

	if _, err := s.revisions.RecordMutation(ctx, tx, MutationRecord{
		AuthorID:    actor.UserID,
		ContainerID: item.ID,
		Before:      before,
		BeforeState: beforeState,
		AfterState:  models.StateDeleted,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit content delete")
	}
	return nil
}

// Purge permanently removes a soft-deleted item together with its
// revision history. Site admins only.
func (s *ContentService) Purge(ctx context.Context, id string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	actor, err := s.perms.LoadActor(ctx, s.db, claims)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if !actor.SiteAdmin() {
		return appErrors.ErrForbidden
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := s.contents.GetByID(ctx, tx, id, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if err := s.revisions.PurgeHistory(ctx, tx, id); err != nil {
		return err
	}
	if err := s.contents.Purge(ctx, tx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge content")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit purge")
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionContentPurge,
		Resource:   "content",
		ResourceID: &id,
	})
	return nil
}

// AccessOptions enumerates the access levels selectable for the item.
func (s *ContentService) AccessOptions(ctx context.Context, id string, claims *models.JWTClaims, site models.SiteContext) ([]models.AccessOption, error) {
	item, err := s.Get(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	return s.access.GetAccessIDs(ctx, s.db, item, site)
}

// lockForWrite loads and locks the item and enforces the write gate. An
// unreadable item reports NotFound; a readable but unwritable item
// reports Forbidden.
func (s *ContentService) lockForWrite(ctx context.Context, tx *sqlx.Tx, id string, claims *models.JWTClaims) (*models.ContentItem, models.ActorSnapshot, error) {
	item, err := s.contents.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ActorSnapshot{}, appErrors.ErrNotFound
		}
		return nil, models.ActorSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	actor, err := s.perms.LoadActor(ctx, tx, claims)
	if err != nil {
		return nil, models.ActorSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if !s.perms.CanRead(actor, item) {
		return nil, models.ActorSnapshot{}, appErrors.ErrNotFound
	}
	if actor.Anonymous() {
		return nil, models.ActorSnapshot{}, appErrors.ErrUnauthorized
	}
	if !s.perms.CanWrite(actor, item) {
		return nil, models.ActorSnapshot{}, appErrors.ErrForbidden
	}
	return item, actor, nil
}

func (s *ContentService) resolveLevel(ctx context.Context, q sqlx.QueryerContext, item *models.ContentItem, raw string, site models.SiteContext, fallback models.AccessLevel) (models.AccessList, error) {
	level := fallback
	if raw != "" {
		parsed, err := models.ParseAccessLevel(raw)
		if err != nil {
			return models.AccessList{}, appErrors.Clone(appErrors.ErrInvalidAccessLevel, err.Error())
		}
		level = parsed
	}
	return s.access.AccessIDToACL(ctx, q, item, level, site)
}

func (s *ContentService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "content-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func applyUpdate(item *models.ContentItem, req dto.UpdateContentRequest) {
	if req.Title != nil {
		item.Title = *req.Title
	}
	if len(req.Fields) > 0 {
		item.Fields = append(json.RawMessage(nil), req.Fields...)
	}
	if len(req.Tags) > 0 {
		item.Tags = append(json.RawMessage(nil), req.Tags...)
	}
	if req.Publish != nil {
		if *req.Publish {
			if item.PublishedAt == nil {
				now := time.Now().UTC()
				item.PublishedAt = &now
			}
		} else {
			item.PublishedAt = nil
		}
	}
	if req.Archive != nil {
		item.Archived = *req.Archive
	}
	if req.SchedulePublishAt != nil {
		item.SchedulePublishAt = req.SchedulePublishAt
	}
	if req.ScheduleArchiveAt != nil {
		item.ScheduleArchiveAt = req.ScheduleArchiveAt
	}
	if req.ScheduleDeleteAt != nil {
		item.ScheduleDeleteAt = req.ScheduleDeleteAt
	}
}

func normalizeJSON(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}
	return append(json.RawMessage(nil), raw...)
}

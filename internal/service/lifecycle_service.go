package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/jobs"
)

type lifecycleContentStore interface {
	ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error)
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string, withDeleted bool) (*models.ContentItem, error)
	ClaimScheduledPublish(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error)
	ClaimScheduledArchive(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error)
	ClaimScheduledDelete(ctx context.Context, ext sqlx.ExtContext, id string, now time.Time) (bool, error)
}

type sweepObserver interface {
	ObserveSweepTransition(transition string)
	ObserveSweepDuration(duration time.Duration)
}

// LifecycleServiceConfig tunes the scheduled transition sweeper.
type LifecycleServiceConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	Workers       int
}

// LifecycleService applies scheduled publish/archive/delete transitions by
// re-entering the revision engine with a system actor. Each item's
// transition is claimed atomically (the schedule column is cleared in the
// same statement that flips the lifecycle field), so concurrent or
// repeated sweeps never double-apply.
type LifecycleService struct {
	db        *sqlx.DB
	contents  lifecycleContentStore
	revisions *RevisionService
	metrics   sweepObserver
	logger    *zap.Logger
	cfg       LifecycleServiceConfig
	queue     *jobs.Queue[time.Time]
}

// NewLifecycleService constructs the service.
func NewLifecycleService(db *sqlx.DB, contents lifecycleContentStore, revisions *RevisionService, metrics sweepObserver, logger *zap.Logger, cfg LifecycleServiceConfig) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	s := &LifecycleService{
		db:        db,
		contents:  contents,
		revisions: revisions,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
	s.queue = jobs.NewQueue("lifecycle", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BatchSize,
		Logger:     logger,
	})
	return s
}

// RunLifecycleSweep synchronously applies every due transition. It is the
// external cron entrypoint, invoked once per tenant per interval, and can
// be safely aborted between items.
func (s *LifecycleService) RunLifecycleSweep(ctx context.Context, tenant string) error {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSweepDuration(time.Since(start))
		}
	}()

	now := time.Now().UTC()
	items, err := s.contents.ListScheduledDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduled content")
	}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sweepItem(ctx, items[i].ID, now); err != nil {
			s.logger.Warn("lifecycle transition failed",
				zap.String("tenant", tenant),
				zap.String("content_id", items[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

// StartSweeper boots the worker queue plus a ticker that feeds it due
// items. Used when the sweeper runs inside the API process rather than
// under an external cron dispatcher.
func (s *LifecycleService) StartSweeper(ctx context.Context, tenant string) {
	s.queue.Start(ctx)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.queue.Stop()
				return
			case <-ticker.C:
				s.enqueueDue(ctx, tenant)
			}
		}
	}()
}

func (s *LifecycleService) enqueueDue(ctx context.Context, tenant string) {
	now := time.Now().UTC()
	items, err := s.contents.ListScheduledDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Warn("failed to list scheduled content", zap.String("tenant", tenant), zap.Error(err))
		return
	}
	for i := range items {
		job := jobs.Job[time.Time]{ID: items[i].ID, Payload: now}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue lifecycle job", zap.String("content_id", items[i].ID), zap.Error(err))
			return
		}
	}
}

func (s *LifecycleService) handleJob(ctx context.Context, job jobs.Job[time.Time]) error {
	return s.sweepItem(ctx, job.ID, job.Payload)
}

// sweepItem applies every due transition for one item, each in its own
// transaction. A lost claim race simply skips the transition.
func (s *LifecycleService) sweepItem(ctx context.Context, id string, now time.Time) error {
	type transition struct {
		name  string
		claim func(context.Context, sqlx.ExtContext, string, time.Time) (bool, error)
		apply func(*models.ContentItem)
		// terminal transitions record an empty after snapshot
		terminal bool
	}
	transitions := []transition{
		{
			name:  "published",
			claim: s.contents.ClaimScheduledPublish,
			apply: func(item *models.ContentItem) {
				item.PublishedAt = &now
				item.SchedulePublishAt = nil
			},
		},
		{
			name:  "archived",
			claim: s.contents.ClaimScheduledArchive,
			apply: func(item *models.ContentItem) {
				item.Archived = true
				item.ScheduleArchiveAt = nil
			},
		},
		{
			name:  "deleted",
			claim: s.contents.ClaimScheduledDelete,
			apply: func(item *models.ContentItem) {
				item.DeletedAt = &now
				item.ScheduleDeleteAt = nil
			},
			terminal: true,
		},
	}

	for _, tr := range transitions {
		if err := s.applyTransition(ctx, id, now, tr.name, tr.claim, tr.apply, tr.terminal); err != nil {
			return err
		}
	}
	return nil
}

func (s *LifecycleService) applyTransition(
	ctx context.Context,
	id string,
	now time.Time,
	name string,
	claim func(context.Context, sqlx.ExtContext, string, time.Time) (bool, error),
	apply func(*models.ContentItem),
	terminal bool,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	item, err := s.contents.GetByID(ctx, tx, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}

	before, err := item.Snapshot()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
	}
	beforeState := item.Lifecycle()

	claimed, err := claim(ctx, tx, id, now)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	apply(item)
	// The recorded status change reflects the item's real state pair, not
	// the claimed schedule: a due publish on an already-archived item flips
	// published_at without changing the effective lifecycle.
	record := MutationRecord{
		AuthorID:    SystemActorID,
		ContainerID: item.ID,
		Before:      before,
		BeforeState: beforeState,
		AfterState:  item.Lifecycle(),
	}
	if !terminal {
		after, err := item.Snapshot()
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot content")
		}
		record.After = after
	}
	if _, err := s.revisions.RecordMutation(ctx, tx, record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit lifecycle transition")
	}

	if s.metrics != nil {
		s.metrics.ObserveSweepTransition(name)
	}
	s.logger.Info("lifecycle transition applied",
		zap.String("content_id", id),
		zap.String("transition", name))
	return nil
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
)

type siteStore interface {
	GetByTenant(ctx context.Context, tenant string) (*models.SiteSettings, error)
	Upsert(ctx context.Context, settings *models.SiteSettings) error
}

type settingsCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type cacheObserver interface {
	ObserveCacheLatency(duration time.Duration)
}

// redisSettingsCache adapts a redis client to the settings cache. A miss
// surfaces as redis.Nil.
type redisSettingsCache struct {
	client *redis.Client
}

func (c *redisSettingsCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

func (c *redisSettingsCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisSettingsCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SiteService resolves per-tenant site settings. Settings sit on every
// request path (tenant resolution reads the closed flag), so reads go
// through a short Redis cache; writes invalidate it.
type SiteService struct {
	sites         siteStore
	cache         settingsCache
	metrics       cacheObserver
	audit         auditLogger
	logger        *zap.Logger
	cacheTTL      time.Duration
	defaultTenant string
}

// NewSiteService constructs the service. client and metrics may be nil;
// without a client every read hits the database.
func NewSiteService(sites siteStore, client *redis.Client, metrics cacheObserver, audit auditLogger, logger *zap.Logger, cacheTTL time.Duration, defaultTenant string) *SiteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	var cache settingsCache
	if client != nil {
		cache = &redisSettingsCache{client: client}
	}
	return &SiteService{
		sites:         sites,
		cache:         cache,
		metrics:       metrics,
		audit:         audit,
		logger:        logger,
		cacheTTL:      cacheTTL,
		defaultTenant: defaultTenant,
	}
}

// Resolve returns the site context for a tenant. An unknown tenant
// resolves to an open site rather than failing the request.
func (s *SiteService) Resolve(ctx context.Context, tenant string) (models.SiteContext, error) {
	if tenant == "" {
		tenant = s.defaultTenant
	}
	settings, err := s.Get(ctx, tenant)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return models.SiteContext{Tenant: tenant}, nil
		}
		return models.SiteContext{}, err
	}
	return models.SiteContext{Tenant: settings.Tenant, Closed: settings.Closed}, nil
}

// Get returns a tenant's site settings, cache first.
func (s *SiteService) Get(ctx context.Context, tenant string) (*models.SiteSettings, error) {
	if cached := s.fromCache(ctx, tenant); cached != nil {
		return cached, nil
	}

	settings, err := s.sites.GetByTenant(ctx, tenant)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load site settings")
	}
	s.toCache(ctx, settings)
	return settings, nil
}

// Update writes a tenant's settings. Restricted to site admins.
func (s *SiteService) Update(ctx context.Context, settings *models.SiteSettings, actor models.ActorSnapshot) (*models.SiteSettings, error) {
	if actor.Anonymous() {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.SiteAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if settings.Tenant == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tenant is required")
	}
	if err := s.sites.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update site settings")
	}
	s.invalidate(ctx, settings.Tenant)

	if s.audit != nil {
		newValues, _ := json.Marshal(settings)
		log := &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionSiteUpdate,
			Resource:   "site",
			ResourceID: &settings.Tenant,
			NewValues:  newValues,
			IPAddress:  "system",
			UserAgent:  "site-service",
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}
	return settings, nil
}

func (s *SiteService) fromCache(ctx context.Context, tenant string) *models.SiteSettings {
	if s.cache == nil {
		return nil
	}
	start := time.Now()
	raw, err := s.cache.Get(ctx, s.cacheKey(tenant))
	if s.metrics != nil {
		s.metrics.ObserveCacheLatency(time.Since(start))
	}
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("site settings cache read failed", zap.Error(err))
		}
		return nil
	}
	var settings models.SiteSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logger.Warn("site settings cache entry corrupt", zap.Error(err))
		return nil
	}
	return &settings
}

func (s *SiteService) toCache(ctx context.Context, settings *models.SiteSettings) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(settings.Tenant), raw, s.cacheTTL); err != nil {
		s.logger.Warn("site settings cache write failed", zap.Error(err))
	}
}

func (s *SiteService) invalidate(ctx context.Context, tenant string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cacheKey(tenant)); err != nil {
		s.logger.Warn("site settings cache invalidation failed", zap.Error(err))
	}
}

func (s *SiteService) cacheKey(tenant string) string {
	return fmt.Sprintf("site:settings:%s", tenant)
}

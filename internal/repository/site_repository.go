package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/intra-cms-api/internal/models"
)

// SiteRepository persists per-tenant site settings.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository constructs the repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetByTenant fetches a tenant's site settings row.
func (r *SiteRepository) GetByTenant(ctx context.Context, tenant string) (*models.SiteSettings, error) {
	const query = `SELECT tenant, name, closed, updated_at FROM site_settings WHERE tenant = $1`
	var settings models.SiteSettings
	if err := r.db.GetContext(ctx, &settings, query, tenant); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes a tenant's site settings.
func (r *SiteRepository) Upsert(ctx context.Context, settings *models.SiteSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO site_settings (tenant, name, closed, updated_at)
	VALUES (:tenant, :name, :closed, :updated_at)
	ON CONFLICT (tenant) DO UPDATE SET name = EXCLUDED.name, closed = EXCLUDED.closed, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert site settings: %w", err)
	}
	return nil
}

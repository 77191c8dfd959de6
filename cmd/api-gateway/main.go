package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/intra-cms-api/api/swagger"
	"github.com/noah-isme/intra-cms-api/internal/handler"
	"github.com/noah-isme/intra-cms-api/internal/middleware"
	"github.com/noah-isme/intra-cms-api/internal/models"
	"github.com/noah-isme/intra-cms-api/internal/repository"
	"github.com/noah-isme/intra-cms-api/internal/service"
	"github.com/noah-isme/intra-cms-api/pkg/cache"
	"github.com/noah-isme/intra-cms-api/pkg/config"
	"github.com/noah-isme/intra-cms-api/pkg/database"
	"github.com/noah-isme/intra-cms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/intra-cms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/intra-cms-api/pkg/middleware/requestid"
)

// @title Intra CMS API
// @version 0.1.0
// @description Access control and revision history engine for intranet content
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, site settings cache disabled", "error", err)
		redisClient = nil
	}

	contentRepo := repository.NewContentRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	userRepo := repository.NewUserRepository(db)
	siteRepo := repository.NewSiteRepository(db)

	metricsService := service.NewMetricsService()
	permissionService := service.NewPermissionService(groupRepo, metricsService, logr)
	accessService := service.NewAccessService(groupRepo, logr)
	revisionService := service.NewRevisionService(revisionRepo, metricsService, logr)
	contentService := service.NewContentService(db, contentRepo, permissionService, accessService, revisionService, userRepo, logr)
	groupService := service.NewGroupService(db, groupRepo, permissionService, userRepo, logr)
	siteService := service.NewSiteService(siteRepo, redisClient, metricsService, userRepo, logr, cfg.Site.SettingsCacheTTL, cfg.Site.DefaultTenant)
	authService := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	lifecycleService := service.NewLifecycleService(db, contentRepo, revisionService, metricsService, logr, service.LifecycleServiceConfig{
		SweepInterval: cfg.Lifecycle.SweepInterval,
		BatchSize:     cfg.Lifecycle.BatchSize,
		Workers:       cfg.Lifecycle.Workers,
	})

	authHandler := handler.NewAuthHandler(authService)
	contentHandler := handler.NewContentHandler(contentService)
	revisionHandler := handler.NewRevisionHandler(revisionService, contentService, handler.RevisionExportOptions{
		Enabled: cfg.Exports.Enabled,
		MaxRows: cfg.Exports.MaxRows,
	})
	groupHandler := handler.NewGroupHandler(groupService)
	siteHandler := handler.NewSiteHandler(siteService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Tenant(siteService, cfg.Site.TenantHeader))

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)

	contents := api.Group("/contents")
	contents.GET("", middleware.OptionalJWT(authService), contentHandler.List)
	contents.GET("/:id", middleware.OptionalJWT(authService), contentHandler.Get)
	contents.GET("/:id/revisions", middleware.OptionalJWT(authService), revisionHandler.List)
	contents.GET("/:id/revisions/export", middleware.OptionalJWT(authService), revisionHandler.Export)
	contents.POST("", middleware.JWT(authService), contentHandler.Create)
	contents.PUT("/:id", middleware.JWT(authService), contentHandler.Update)
	contents.PUT("/:id/access", middleware.JWT(authService), contentHandler.SetAccess)
	contents.GET("/:id/access-ids", middleware.JWT(authService), contentHandler.AccessOptions)
	contents.DELETE("/:id", middleware.JWT(authService), contentHandler.Delete)
	contents.DELETE("/:id/purge",
		middleware.JWT(authService),
		middleware.RequireSiteRoles(models.SiteRoleAdmin, models.SiteRoleSuperAdmin),
		contentHandler.Purge)

	groups := api.Group("/groups", middleware.JWT(authService))
	groups.GET("/:id", groupHandler.Get)
	groups.PUT("/:id/members", groupHandler.SetMembership)
	groups.GET("/:id/subgroups", groupHandler.ListSubgroups)
	groups.POST("/:id/subgroups", groupHandler.CreateSubgroup)

	subgroups := api.Group("/subgroups", middleware.JWT(authService))
	subgroups.DELETE("/:id", groupHandler.DeleteSubgroup)
	subgroups.POST("/:id/members", groupHandler.AddSubgroupMember)
	subgroups.DELETE("/:id/members", groupHandler.RemoveSubgroupMember)

	site := api.Group("/site")
	site.GET("", siteHandler.Get)
	site.PUT("", middleware.JWT(authService), siteHandler.Update)

	if cfg.Lifecycle.Enabled {
		lifecycleService.StartSweeper(context.Background(), cfg.Site.DefaultTenant)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/models"
	"github.com/noah-isme/intra-cms-api/internal/service"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/response"
)

// SiteHandler exposes site settings endpoints.
type SiteHandler struct {
	service *service.SiteService
}

// NewSiteHandler constructs the handler.
func NewSiteHandler(svc *service.SiteService) *SiteHandler {
	return &SiteHandler{service: svc}
}

// Get godoc
// @Summary Get the current tenant's site settings
// @Tags Site
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /site [get]
func (h *SiteHandler) Get(c *gin.Context) {
	site := siteFromContext(c)
	settings, err := h.service.Get(c.Request.Context(), site.Tenant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Update godoc
// @Summary Update the current tenant's site settings
// @Tags Site
// @Accept json
// @Produce json
// @Param payload body models.SiteSettings true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /site [put]
func (h *SiteHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var settings models.SiteSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid settings payload"))
		return
	}
	settings.Tenant = siteFromContext(c).Tenant
	actor := models.ActorSnapshot{UserID: claims.UserID, SiteRole: claims.SiteRole}
	updated, err := h.service.Update(c.Request.Context(), &settings, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/response"
)

type contentService interface {
	Create(ctx context.Context, req dto.CreateContentRequest, claims *models.JWTClaims, site models.SiteContext) (*models.ContentItem, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ContentItem, error)
	List(ctx context.Context, query dto.ContentQuery, claims *models.JWTClaims) ([]models.ContentItem, error)
	Update(ctx context.Context, id string, req dto.UpdateContentRequest, claims *models.JWTClaims) (*models.ContentItem, *models.Revision, error)
	SetAccess(ctx context.Context, id string, req dto.SetAccessRequest, claims *models.JWTClaims, site models.SiteContext) (*models.ContentItem, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) error
	Purge(ctx context.Context, id string, claims *models.JWTClaims) error
	AccessOptions(ctx context.Context, id string, claims *models.JWTClaims, site models.SiteContext) ([]models.AccessOption, error)
}

// ContentHandler exposes REST endpoints for content items.
type ContentHandler struct {
	service contentService
}

// NewContentHandler constructs the handler.
func NewContentHandler(service contentService) *ContentHandler {
	return &ContentHandler{service: service}
}

// Create godoc
// @Summary Create a content item
// @Tags Content
// @Accept json
// @Produce json
// @Param payload body dto.CreateContentRequest true "Content payload"
// @Success 201 {object} response.Envelope
// @Router /contents [post]
func (h *ContentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid content payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, claims, siteFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, item, nil)
}

// List godoc
// @Summary List readable content items
// @Tags Content
// @Produce json
// @Param groupId query string false "Group filter"
// @Param state query string false "Lifecycle state filter"
// @Success 200 {object} response.Envelope
// @Router /contents [get]
func (h *ContentHandler) List(c *gin.Context) {
	var query dto.ContentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid content query"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a content item
// @Tags Content
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Router /contents/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update a content item
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content ID"
// @Param payload body dto.UpdateContentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /contents/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid content payload"))
		return
	}
	item, revision, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{}
	if revision != nil {
		meta["revision"] = dto.NewRevisionResponse(*revision)
	}
	response.JSON(c, http.StatusOK, item, nil, meta)
}

// SetAccess godoc
// @Summary Apply access-level selectors to a content item
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content ID"
// @Param payload body dto.SetAccessRequest true "Access selectors"
// @Success 200 {object} response.Envelope
// @Router /contents/{id}/access [put]
func (h *ContentHandler) SetAccess(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SetAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid access payload"))
		return
	}
	item, err := h.service.SetAccess(c.Request.Context(), c.Param("id"), req, claims, siteFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// AccessOptions godoc
// @Summary List selectable access levels for a content item
// @Tags Content
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Router /contents/{id}/access-ids [get]
func (h *ContentHandler) AccessOptions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	options, err := h.service.AccessOptions(c.Request.Context(), c.Param("id"), claims, siteFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// Delete godoc
// @Summary Soft-delete a content item
// @Tags Content
// @Param id path string true "Content ID"
// @Success 204
// @Router /contents/{id} [delete]
func (h *ContentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Purge godoc
// @Summary Permanently remove a deleted content item and its history
// @Tags Content
// @Param id path string true "Content ID"
// @Success 204
// @Router /contents/{id}/purge [delete]
func (h *ContentHandler) Purge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Purge(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

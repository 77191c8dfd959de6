package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/dto"
	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/response"
)

type revisionService interface {
	List(ctx context.Context, filter models.RevisionFilter) ([]models.Revision, error)
	ExportHistory(ctx context.Context, containerID, format string, maxRows int) ([]byte, string, error)
}

type revisionContentGate interface {
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ContentItem, error)
}

// RevisionExportOptions governs the history export endpoint.
type RevisionExportOptions struct {
	Enabled bool
	MaxRows int
}

// RevisionHandler exposes the revision history read API. History
// visibility follows content readability: a caller who cannot read the
// item gets not-found, never an empty history.
type RevisionHandler struct {
	service revisionService
	gate    revisionContentGate
	exports RevisionExportOptions
}

// NewRevisionHandler constructs the handler.
func NewRevisionHandler(service revisionService, gate revisionContentGate, exports RevisionExportOptions) *RevisionHandler {
	return &RevisionHandler{service: service, gate: gate, exports: exports}
}

// List godoc
// @Summary List revisions for a content item
// @Tags Revisions
// @Produce json
// @Param id path string true "Content ID"
// @Param author query string false "Author filter"
// @Param type query string false "Revision kind filter"
// @Success 200 {object} response.Envelope
// @Router /contents/{id}/revisions [get]
func (h *RevisionHandler) List(c *gin.Context) {
	containerID := c.Param("id")
	if _, err := h.gate.Get(c.Request.Context(), containerID, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	var query dto.RevisionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid revision query"))
		return
	}

	revisions, err := h.service.List(c.Request.Context(), models.RevisionFilter{
		ContainerID: containerID,
		AuthorID:    strings.TrimSpace(query.Author),
		Kind:        models.RevisionKind(strings.ToLower(strings.TrimSpace(query.Kind))),
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.RevisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		out = append(out, dto.NewRevisionResponse(rev))
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Export godoc
// @Summary Export revision history as CSV or PDF
// @Tags Revisions
// @Produce octet-stream
// @Param id path string true "Content ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /contents/{id}/revisions/export [get]
func (h *RevisionHandler) Export(c *gin.Context) {
	if !h.exports.Enabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "history exports are disabled"))
		return
	}
	containerID := c.Param("id")
	if _, err := h.gate.Get(c.Request.Context(), containerID, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.service.ExportHistory(c.Request.Context(), containerID, format, h.exports.MaxRows)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("revisions-%s.%s", containerID, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

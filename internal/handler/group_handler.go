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

type groupService interface {
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Group, error)
	SetMembership(ctx context.Context, groupID string, req dto.SetMembershipRequest, claims *models.JWTClaims) (*models.GroupMembership, error)
	CreateSubgroup(ctx context.Context, groupID string, req dto.CreateSubgroupRequest, claims *models.JWTClaims) (*models.Subgroup, error)
	ListSubgroups(ctx context.Context, groupID string, claims *models.JWTClaims) ([]models.Subgroup, error)
	DeleteSubgroup(ctx context.Context, subgroupID string, claims *models.JWTClaims) error
	SetSubgroupMember(ctx context.Context, subgroupID string, req dto.SubgroupMemberRequest, add bool, claims *models.JWTClaims) error
}

// GroupHandler exposes group administration endpoints.
type GroupHandler struct {
	service groupService
}

// NewGroupHandler constructs the handler.
func NewGroupHandler(service groupService) *GroupHandler {
	return &GroupHandler{service: service}
}

// Get godoc
// @Summary Get a group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// SetMembership godoc
// @Summary Set a user's role within a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.SetMembershipRequest true "Membership payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members [put]
func (h *GroupHandler) SetMembership(c *gin.Context) {
	var req dto.SetMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid membership payload"))
		return
	}
	membership, err := h.service.SetMembership(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, membership, nil)
}

// CreateSubgroup godoc
// @Summary Create a subgroup
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.CreateSubgroupRequest true "Subgroup payload"
// @Success 201 {object} response.Envelope
// @Router /groups/{id}/subgroups [post]
func (h *GroupHandler) CreateSubgroup(c *gin.Context) {
	var req dto.CreateSubgroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid subgroup payload"))
		return
	}
	subgroup, err := h.service.CreateSubgroup(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, subgroup, nil)
}

// ListSubgroups godoc
// @Summary List a group's subgroups
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/subgroups [get]
func (h *GroupHandler) ListSubgroups(c *gin.Context) {
	subgroups, err := h.service.ListSubgroups(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subgroups, nil)
}

// DeleteSubgroup godoc
// @Summary Delete a subgroup
// @Tags Groups
// @Param id path string true "Subgroup ID"
// @Success 204
// @Router /subgroups/{id} [delete]
func (h *GroupHandler) DeleteSubgroup(c *gin.Context) {
	if err := h.service.DeleteSubgroup(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddSubgroupMember godoc
// @Summary Add a member to a subgroup
// @Tags Groups
// @Accept json
// @Param id path string true "Subgroup ID"
// @Param payload body dto.SubgroupMemberRequest true "Member payload"
// @Success 204
// @Router /subgroups/{id}/members [post]
func (h *GroupHandler) AddSubgroupMember(c *gin.Context) {
	h.setSubgroupMember(c, true)
}

// RemoveSubgroupMember godoc
// @Summary Remove a member from a subgroup
// @Tags Groups
// @Accept json
// @Param id path string true "Subgroup ID"
// @Param payload body dto.SubgroupMemberRequest true "Member payload"
// @Success 204
// @Router /subgroups/{id}/members [delete]
func (h *GroupHandler) RemoveSubgroupMember(c *gin.Context) {
	h.setSubgroupMember(c, false)
}

func (h *GroupHandler) setSubgroupMember(c *gin.Context, add bool) {
	var req dto.SubgroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid member payload"))
		return
	}
	if err := h.service.SetSubgroupMember(c.Request.Context(), c.Param("id"), req, add, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

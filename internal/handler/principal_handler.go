package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agora-api/internal/models"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
	"github.com/noah-isme/agora-api/pkg/response"
)

type principalService interface {
	List(ctx context.Context, filter models.PrincipalFilter) ([]models.Principal, *models.Pagination, error)
	Deactivate(ctx context.Context, id string, actor *models.JWTClaims) error
}

// PrincipalHandler exposes administrative principal management.
type PrincipalHandler struct {
	service principalService
}

// NewPrincipalHandler creates a new handler.
func NewPrincipalHandler(svc principalService) *PrincipalHandler {
	return &PrincipalHandler{service: svc}
}

// List godoc
// @Summary List principals
// @Description List principals with optional filters
// @Tags Principals
// @Produce json
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by status"
// @Param search query string false "Search display names"
// @Param page query integer false "Page"
// @Param page_size query integer false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /principals [get]
func (h *PrincipalHandler) List(c *gin.Context) {
	filter := models.PrincipalFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page"),
		PageSize:  intQuery(c, "page_size"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}

	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown role"))
			return
		}
		filter.Role = &role
	}
	if raw := c.Query("status"); raw != "" {
		status := raw
		filter.Status = &status
	}

	principals, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, principals, pagination)
}

// Deactivate godoc
// @Summary Deactivate a principal
// @Description Soft-delete a principal, free its email and revoke its sessions
// @Tags Principals
// @Produce json
// @Param id path string true "Principal id"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /principals/{id} [delete]
func (h *PrincipalHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

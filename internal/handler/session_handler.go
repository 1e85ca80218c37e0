package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agora-api/internal/models"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
	"github.com/noah-isme/agora-api/pkg/response"
)

type sessionService interface {
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error)
	RevokeSession(ctx context.Context, id string, actor *models.JWTClaims) error
	ExportSessions(ctx context.Context, filter models.SessionFilter, format string) ([]byte, string, error)
	ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error)
}

// SessionHandler exposes the session ledger to administrators.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List sessions
// @Description List session ledger entries with optional filters
// @Tags Sessions
// @Produce json
// @Param owner_id query string false "Filter by owner"
// @Param role query string false "Filter by role"
// @Param active query boolean false "Only non-revoked, non-expired sessions"
// @Param page query integer false "Page"
// @Param page_size query integer false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter, err := sessionFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	sessions, pagination, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Revoke godoc
// @Summary Revoke a session
// @Description Revoke one session by id; revoking an already-revoked session is a no-op
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/revoke [post]
func (h *SessionHandler) Revoke(c *gin.Context) {
	if err := h.service.RevokeSession(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Export godoc
// @Summary Export sessions
// @Description Render the filtered session ledger as CSV or PDF
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "csv | pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /sessions/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	filter, err := sessionFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.Query("format")
	body, contentType, err := h.service.ExportSessions(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=sessions.%s", format))
	c.Data(http.StatusOK, contentType, body)
}

// AuditLogs godoc
// @Summary List audit logs
// @Description List audit trail entries with optional filters
// @Tags Sessions
// @Produce json
// @Param principal_id query string false "Filter by principal"
// @Param action query string false "Filter by action"
// @Param page query integer false "Page"
// @Param page_size query integer false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /audit-logs [get]
func (h *SessionHandler) AuditLogs(c *gin.Context) {
	filter := models.AuditLogFilter{
		PrincipalID: c.Query("principal_id"),
		Action:      c.Query("action"),
		Page:        intQuery(c, "page"),
		PageSize:    intQuery(c, "page_size"),
	}

	logs, pagination, err := h.service.ListAuditLogs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, pagination)
}

func sessionFilterFromQuery(c *gin.Context) (models.SessionFilter, error) {
	filter := models.SessionFilter{
		OwnerID:  c.Query("owner_id"),
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}

	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			return filter, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown role")
		}
		filter.Role = &role
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean")
		}
		filter.ActiveOnly = active
	}

	return filter, nil
}

func intQuery(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/service"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
	"github.com/noah-isme/agora-api/pkg/response"
)

type authService interface {
	Join(ctx context.Context, role models.Role, req models.JoinRequest) (*models.AuthorizedPrincipal, error)
	Login(ctx context.Context, role models.Role, req models.LoginRequest) (*models.AuthorizedPrincipal, error)
	Refresh(ctx context.Context, req models.RefreshRequest) (*models.AuthorizedPrincipal, error)
	Logout(ctx context.Context, refreshToken, principalID, ip, userAgent string) error
}

// AuthHandler wires the lifecycle endpoints to the auth service. One handler
// serves all four roles through the :role route parameter.
type AuthHandler struct {
	service authService
	metrics *service.MetricsService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, metrics *service.MetricsService) *AuthHandler {
	return &AuthHandler{service: svc, metrics: metrics}
}

// Join godoc
// @Summary Register a principal
// @Description Create a principal of the given role and issue tokens. Guests join with an empty body.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "guest | member | admin | adminUser"
// @Param payload body models.JoinRequest false "Join payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/{role}/join [post]
func (h *AuthHandler) Join(c *gin.Context) {
	role, ok := h.roleParam(c)
	if !ok {
		return
	}

	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Join(c.Request.Context(), role, req)
	h.metrics.ObserveAuthOperation("join", string(role), err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Login godoc
// @Summary Authenticate a principal
// @Description Authenticate by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "member | admin | adminUser"
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/{role}/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	role, ok := h.roleParam(c)
	if !ok {
		return
	}

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), role, req)
	h.metrics.ObserveAuthOperation("login", string(role), err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh tokens
// @Description Exchange a refresh token for a rotated token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param role path string true "guest | member | admin | adminUser"
// @Param payload body models.RefreshRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/{role}/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	role, ok := h.roleParam(c)
	if !ok {
		return
	}

	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Refresh(c.Request.Context(), req)
	h.metrics.ObserveAuthOperation("refresh", string(role), err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the session behind the presented refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest true "Refresh token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	err := h.service.Logout(c.Request.Context(), payload.RefreshToken, claims.PrincipalID, c.ClientIP(), c.GetHeader("User-Agent"))
	h.metrics.ObserveAuthOperation("logout", string(claims.Role), err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me godoc
// @Summary Get current principal
// @Description Returns the authenticated principal's identity from its token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"id":   claims.PrincipalID,
		"role": claims.Role,
	}, nil)
}

func (h *AuthHandler) roleParam(c *gin.Context) (models.Role, bool) {
	role, err := models.ParseRole(c.Param("role"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown role"))
		return "", false
	}
	return role, true
}

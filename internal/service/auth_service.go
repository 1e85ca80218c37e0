package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/repository"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
)

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Credential, error)
}

type principalStore interface {
	Create(ctx context.Context, principal *models.Principal, credential *models.Credential) error
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	FindByCredential(ctx context.Context, credentialID string, role models.Role) (*models.Principal, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type sessionLedger interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.Session) error
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	RevokeAllForOwner(ctx context.Context, ownerID string, revokedAt time.Time) error
}

type auditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuthService is the session lifecycle manager. One instance serves all four
// roles; the role is a parameter of each operation and a claim in the issued
// tokens, not a separate code path.
type AuthService struct {
	credentials   credentialStore
	principals    principalStore
	sessions      sessionLedger
	audits        auditRecorder
	issuer        *TokenIssuer
	validator     *validator.Validate
	logger        *zap.Logger
	singleSession bool
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(credentials credentialStore, principals principalStore, sessions sessionLedger, audits auditRecorder, issuer *TokenIssuer, validate *validator.Validate, logger *zap.Logger, singleSession bool) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		credentials:   credentials,
		principals:    principals,
		sessions:      sessions,
		audits:        audits,
		issuer:        issuer,
		validator:     validate,
		logger:        logger,
		singleSession: singleSession,
	}
}

// Join registers a new principal of the given role and returns it with an
// issued token pair. Guests join without credentials; every other role
// requires a unique email and a password.
func (s *AuthService) Join(ctx context.Context, role models.Role, req models.JoinRequest) (*models.AuthorizedPrincipal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	principal := &models.Principal{
		Role:   role,
		Status: models.StatusActive,
	}
	if req.DisplayName != "" {
		name := req.DisplayName
		principal.DisplayName = &name
	}

	var credential *models.Credential
	if role.RequiresCredential() {
		if req.Email == "" || req.Password == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "email and password are required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		credential = &models.Credential{
			Email:        req.Email,
			PasswordHash: string(hash),
		}
	}

	if err := s.principals.Create(ctx, principal, credential); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEmail, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create principal")
	}

	authorized, err := s.openSession(ctx, principal, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionJoin, req.IP, req.UserAgent, map[string]interface{}{"role": role})
	return authorized, nil
}

// Login authenticates a principal by email and password. Every failure path
// returns the same invalid-credentials error so callers cannot discover which
// accounts exist.
func (s *AuthService) Login(ctx context.Context, role models.Role, req models.LoginRequest) (*models.AuthorizedPrincipal, error) {
	if !role.RequiresCredential() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "guests do not login")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	credential, err := s.credentials.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch credential")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	principal, err := s.principals.FindByCredential(ctx, credential.ID, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch principal")
	}

	if !principal.Authenticatable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if s.singleSession {
		if err := s.sessions.RevokeAllForOwner(ctx, principal.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to revoke previous sessions", zap.Error(err))
		}
	}

	if role == models.RoleMember {
		if err := s.principals.UpdateLastLogin(ctx, principal.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to update last login", zap.Error(err))
		}
	}

	authorized, err := s.openSession(ctx, principal, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionLogin, req.IP, req.UserAgent, map[string]interface{}{"status": "success"})
	return authorized, nil
}

// Refresh exchanges a refresh token for a new token pair, rotating the
// underlying session: the old ledger row is revoked and a new one inserted
// atomically, so the presented token can never be refreshed twice.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.AuthorizedPrincipal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSessionInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if session.RevokedAt != nil || session.OwnerID != claims.PrincipalID {
		return nil, appErrors.Clone(appErrors.ErrSessionInvalid, "")
	}

	now := time.Now().UTC()
	if !session.ExpiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "")
	}

	principal, err := s.principals.FindByID(ctx, session.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAccountInactive, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch principal")
	}
	if !principal.Authenticatable() {
		return nil, appErrors.Clone(appErrors.ErrAccountInactive, "")
	}

	tokens, err := s.issuer.Issue(principal.ID, principal.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue tokens")
	}

	next := &models.Session{
		OwnerID:    principal.ID,
		Role:       principal.Role,
		Token:      tokens.Refresh,
		IssuedAt:   now,
		ExpiresAt:  tokens.RefreshableUntil,
		DeviceInfo: req.UserAgent,
		IPAddress:  req.IP,
	}
	if err := s.sessions.Rotate(ctx, session.ID, now, next); err != nil {
		if errors.Is(err, repository.ErrSessionRevoked) {
			return nil, appErrors.Clone(appErrors.ErrSessionInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionRefresh, req.IP, req.UserAgent, map[string]interface{}{"rotated_from": session.ID})
	return s.authorized(principal, tokens), nil
}

// Logout revokes the session behind the provided refresh token. Revoking an
// already-revoked session succeeds as a no-op; an unknown token is NotFound.
func (s *AuthService) Logout(ctx context.Context, refreshToken, principalID, ip, userAgent string) error {
	session, err := s.sessions.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if session.OwnerID != principalID {
		return appErrors.Clone(appErrors.ErrForbidden, "session does not belong to principal")
	}

	if session.RevokedAt == nil {
		if err := s.sessions.Revoke(ctx, session.ID, time.Now().UTC()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
		}
	}

	s.recordAudit(ctx, principalID, models.AuditActionLogout, ip, userAgent, map[string]interface{}{"session_id": session.ID})
	return nil
}

func (s *AuthService) openSession(ctx context.Context, principal *models.Principal, ip, userAgent string) (*models.AuthorizedPrincipal, error) {
	tokens, err := s.issuer.Issue(principal.ID, principal.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue tokens")
	}

	now := time.Now().UTC()
	session := &models.Session{
		OwnerID:    principal.ID,
		Role:       principal.Role,
		Token:      tokens.Refresh,
		IssuedAt:   now,
		ExpiresAt:  tokens.RefreshableUntil,
		DeviceInfo: userAgent,
		IPAddress:  ip,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	return s.authorized(principal, tokens), nil
}

func (s *AuthService) authorized(principal *models.Principal, tokens *models.AuthorizedToken) *models.AuthorizedPrincipal {
	return &models.AuthorizedPrincipal{
		ID:          principal.ID,
		Role:        principal.Role,
		DisplayName: principal.DisplayName,
		Status:      principal.Status,
		CreatedAt:   principal.CreatedAt,
		UpdatedAt:   principal.UpdatedAt,
		DeletedAt:   principal.DeletedAt,
		Token:       *tokens,
	}
}

func (s *AuthService) recordAudit(ctx context.Context, principalID, action, ip, userAgent string, values map[string]interface{}) {
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	if err := s.audits.Create(ctx, &models.AuditLog{
		PrincipalID: &principalID,
		Action:      action,
		Resource:    "auth",
		ResourceID:  &principalID,
		NewValues:   payload,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agora-api/internal/models"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
)

type principalAdminStore interface {
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	List(ctx context.Context, filter models.PrincipalFilter) ([]models.Principal, int, error)
	Deactivate(ctx context.Context, id string, ts time.Time) error
}

type credentialRemover interface {
	SoftDelete(ctx context.Context, id string, ts time.Time) error
}

type sessionRevoker interface {
	RevokeAllForOwner(ctx context.Context, ownerID string, revokedAt time.Time) error
}

// PrincipalService exposes administrative management of principals.
type PrincipalService struct {
	principals  principalAdminStore
	credentials credentialRemover
	sessions    sessionRevoker
	audits      auditRecorder
	logger      *zap.Logger
}

// NewPrincipalService constructs a PrincipalService instance.
func NewPrincipalService(principals principalAdminStore, credentials credentialRemover, sessions sessionRevoker, audits auditRecorder, logger *zap.Logger) *PrincipalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrincipalService{
		principals:  principals,
		credentials: credentials,
		sessions:    sessions,
		audits:      audits,
		logger:      logger,
	}
}

// List returns principals with pagination metadata.
func (s *PrincipalService) List(ctx context.Context, filter models.PrincipalFilter) ([]models.Principal, *models.Pagination, error) {
	principals, total, err := s.principals.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list principals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return principals, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Deactivate soft-deletes a principal, frees its credential email and
// revokes every live session it owns.
func (s *PrincipalService) Deactivate(ctx context.Context, id string, actor *models.JWTClaims) error {
	principal, err := s.principals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "principal not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch principal")
	}

	now := time.Now().UTC()
	if err := s.principals.Deactivate(ctx, principal.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "principal already deactivated")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate principal")
	}

	if principal.CredentialID != nil {
		if err := s.credentials.SoftDelete(ctx, *principal.CredentialID, now); err != nil {
			s.logger.Warn("failed to soft delete credential", zap.Error(err))
		}
	}

	if err := s.sessions.RevokeAllForOwner(ctx, principal.ID, now); err != nil {
		s.logger.Warn("failed to revoke sessions for deactivated principal", zap.Error(err))
	}

	payload, _ := json.Marshal(map[string]string{"role": string(principal.Role)})
	var actorID *string
	if actor != nil {
		actorID = &actor.PrincipalID
	}
	if err := s.audits.Create(ctx, &models.AuditLog{
		PrincipalID: actorID,
		Action:      models.AuditActionPrincipalDeactivate,
		Resource:    "principal",
		ResourceID:  &principal.ID,
		NewValues:   payload,
	}); err != nil {
		s.logger.Warn("failed to record deactivation audit log", zap.Error(err))
	}
	return nil
}

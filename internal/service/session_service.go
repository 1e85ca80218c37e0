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
	"github.com/noah-isme/agora-api/pkg/export"
)

type sessionAdminLedger interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
}

type auditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

// Export formats accepted by ExportSessions.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// SessionService exposes the session ledger to administrators: listing,
// manual revocation and export. It never issues tokens.
type SessionService struct {
	sessions sessionAdminLedger
	audits   auditLogStore
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(sessions sessionAdminLedger, audits auditLogStore, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		audits:   audits,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ListSessions returns ledger entries with pagination metadata.
func (s *SessionService) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// RevokeSession revokes one ledger entry. Revoking an already-revoked
// session is a no-op; an unknown id is NotFound.
func (s *SessionService) RevokeSession(ctx context.Context, id string, actor *models.JWTClaims) error {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if session.RevokedAt == nil {
		if err := s.sessions.Revoke(ctx, session.ID, time.Now().UTC()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
		}
	}

	payload, _ := json.Marshal(map[string]string{"session_id": session.ID, "owner_id": session.OwnerID})
	var actorID *string
	if actor != nil {
		actorID = &actor.PrincipalID
	}
	if err := s.audits.Create(ctx, &models.AuditLog{
		PrincipalID: actorID,
		Action:      models.AuditActionSessionRevoke,
		Resource:    "session",
		ResourceID:  &session.ID,
		NewValues:   payload,
	}); err != nil {
		s.logger.Warn("failed to record session revoke audit log", zap.Error(err))
	}
	return nil
}

// ExportSessions renders the filtered ledger as CSV or PDF bytes.
func (s *SessionService) ExportSessions(ctx context.Context, filter models.SessionFilter, format string) ([]byte, string, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	// Exports are bounded by the repository page-size cap; callers page
	// through large ledgers.
	sessions, _, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	dataset := export.Dataset{
		Headers: []string{"id", "owner_id", "role", "issued_at", "expires_at", "revoked_at", "ip_address"},
	}
	for _, session := range sessions {
		revoked := ""
		if session.RevokedAt != nil {
			revoked = session.RevokedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":         session.ID,
			"owner_id":   session.OwnerID,
			"role":       string(session.Role),
			"issued_at":  session.IssuedAt.UTC().Format(time.RFC3339),
			"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
			"revoked_at": revoked,
			"ip_address": session.IPAddress,
		})
	}

	if format == ExportFormatPDF {
		body, err := s.pdf.Render(dataset, "session ledger")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return body, "application/pdf", nil
	}

	body, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return body, "text/csv", nil
}

// ListAuditLogs returns audit trail entries with pagination metadata.
func (s *SessionService) ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

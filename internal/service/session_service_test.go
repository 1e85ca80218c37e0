package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/agora-api/internal/models"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
)

type mockAdminLedger struct {
	sessions  []models.Session
	listErr   error
	revokedID string
	auditLogs []*models.AuditLog
	logs      []models.AuditLog
}

func (m *mockAdminLedger) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.sessions, len(m.sessions), nil
}

func (m *mockAdminLedger) FindByID(ctx context.Context, id string) (*models.Session, error) {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return &m.sessions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdminLedger) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedID = id
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			at := revokedAt
			m.sessions[i].RevokedAt = &at
		}
	}
	return nil
}

func (m *mockAdminLedger) Create(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockAdminLedger) ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	return m.logs, len(m.logs), nil
}

type mockAuditStore struct{ *mockAdminLedger }

func (m mockAuditStore) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	return m.ListAuditLogs(ctx, filter)
}

func sampleSessions() []models.Session {
	now := time.Now().UTC()
	revoked := now.Add(-time.Hour)
	return []models.Session{
		{ID: "s1", OwnerID: "p1", Role: models.RoleMember, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(24 * time.Hour), IPAddress: "10.0.0.1"},
		{ID: "s2", OwnerID: "p2", Role: models.RoleGuest, IssuedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(24 * time.Hour), RevokedAt: &revoked},
	}
}

func TestSessionServiceListSessions(t *testing.T) {
	ledger := &mockAdminLedger{sessions: sampleSessions()}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	sessions, page, err := svc.ListSessions(context.Background(), models.SessionFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 2, page.TotalCount)
}

func TestSessionServiceRevokeSession(t *testing.T) {
	ledger := &mockAdminLedger{sessions: sampleSessions()}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	actor := &models.JWTClaims{PrincipalID: "admin-1", Role: models.RoleAdmin}
	require.NoError(t, svc.RevokeSession(context.Background(), "s1", actor))
	assert.Equal(t, "s1", ledger.revokedID)
	require.Len(t, ledger.auditLogs, 1)
	assert.Equal(t, models.AuditActionSessionRevoke, ledger.auditLogs[0].Action)
	require.NotNil(t, ledger.auditLogs[0].PrincipalID)
	assert.Equal(t, "admin-1", *ledger.auditLogs[0].PrincipalID)
}

func TestSessionServiceRevokeAlreadyRevoked(t *testing.T) {
	ledger := &mockAdminLedger{sessions: sampleSessions()}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	// s2 is already revoked; the call succeeds without touching the ledger.
	require.NoError(t, svc.RevokeSession(context.Background(), "s2", nil))
	assert.Empty(t, ledger.revokedID)
}

func TestSessionServiceRevokeUnknown(t *testing.T) {
	ledger := &mockAdminLedger{}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	err := svc.RevokeSession(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceExportCSV(t *testing.T) {
	ledger := &mockAdminLedger{sessions: sampleSessions()}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	body, contentType, err := svc.ExportSessions(context.Background(), models.SessionFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	out := string(body)
	assert.True(t, strings.HasPrefix(out, "id,owner_id,role"))
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "member")
}

func TestSessionServiceExportPDF(t *testing.T) {
	ledger := &mockAdminLedger{sessions: sampleSessions()}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	body, contentType, err := svc.ExportSessions(context.Background(), models.SessionFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))
}

func TestSessionServiceExportBadFormat(t *testing.T) {
	ledger := &mockAdminLedger{}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	_, _, err := svc.ExportSessions(context.Background(), models.SessionFilter{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceListAuditLogs(t *testing.T) {
	ledger := &mockAdminLedger{logs: []models.AuditLog{{ID: "a1", Action: models.AuditActionLogin}}}
	svc := NewSessionService(ledger, mockAuditStore{ledger}, zap.NewNop())

	logs, page, err := svc.ListAuditLogs(context.Background(), models.AuditLogFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PageSize)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agora-api/internal/models"
)

// SessionRepository provides database access to the session ledger.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, owner_id, role, token, issued_at, expires_at, revoked_at, device_info, ip_address, created_at`

// Create persists a session ledger entry.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, owner_id, role, token, issued_at, expires_at, revoked_at, device_info, ip_address, created_at) VALUES (:id, :owner_id, :role, :token, :issued_at, :expires_at, :revoked_at, :device_info, :ip_address, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByToken returns a session by its refresh token value.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE token = $1 LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by token: %w", err)
	}
	return &session, nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1 LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// Rotate revokes the old session and inserts its replacement in one
// transaction, so a crash between the two steps cannot leave either zero or
// two live sessions for the presented token. Returns ErrSessionRevoked when
// the old session was already revoked, which rejects concurrent reuse of the
// same refresh token.
func (r *SessionRepository) Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.Session) error {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = revokedAt
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const revokeQuery = `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	res, err := tx.ExecContext(ctx, revokeQuery, oldID, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrSessionRevoked
	}

	const insertQuery = `INSERT INTO sessions (id, owner_id, role, token, issued_at, expires_at, revoked_at, device_info, ip_address, created_at) VALUES (:id, :owner_id, :role, :token, :issued_at, :expires_at, :revoked_at, :device_info, :ip_address, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, next); err != nil {
		return fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate session: %w", err)
	}
	return nil
}

// Revoke marks a session as revoked. Revoking an already-revoked session is
// a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForOwner revokes every live session belonging to a principal.
func (r *SessionRepository) RevokeAllForOwner(ctx context.Context, ownerID string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $2 WHERE owner_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, ownerID, revokedAt); err != nil {
		return fmt.Errorf("revoke sessions for owner: %w", err)
	}
	return nil
}

// List returns ledger entries based on filters with total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	baseQuery := `FROM sessions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "revoked_at IS NULL AND expires_at > NOW()")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY issued_at DESC LIMIT %d OFFSET %d", sessionColumns, baseQuery, pageSize, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

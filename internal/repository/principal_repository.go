package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/agora-api/internal/models"
)

const pqUniqueViolation = "23505"

// PrincipalRepository provides database access for principal management.
type PrincipalRepository struct {
	db *sqlx.DB
}

// NewPrincipalRepository creates a new instance of PrincipalRepository.
func NewPrincipalRepository(db *sqlx.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

const principalColumns = `id, role, credential_id, display_name, status, last_login_at, created_at, updated_at, deleted_at`

// Create inserts a principal together with its backing credential in one
// transaction. The credential is nil for guests. A collision with the
// partial unique index on credentials(email) surfaces as ErrDuplicateEmail,
// so two concurrent joins with the same email cannot both succeed.
func (r *PrincipalRepository) Create(ctx context.Context, principal *models.Principal, credential *models.Credential) error {
	now := time.Now().UTC()
	if principal.ID == "" {
		principal.ID = uuid.NewString()
	}
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = now
	}
	principal.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create principal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if credential != nil {
		if credential.ID == "" {
			credential.ID = uuid.NewString()
		}
		if credential.CreatedAt.IsZero() {
			credential.CreatedAt = now
		}
		credential.UpdatedAt = now

		const credQuery = `INSERT INTO credentials (id, email, password_hash, created_at, updated_at) VALUES (:id, :email, :password_hash, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, credQuery, credential); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("create credential: %w", err)
		}
		principal.CredentialID = &credential.ID
	}

	const query = `INSERT INTO principals (id, role, credential_id, display_name, status, created_at, updated_at) VALUES (:id, :role, :credential_id, :display_name, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, principal); err != nil {
		return fmt.Errorf("create principal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create principal: %w", err)
	}
	return nil
}

// FindByID returns a principal by identifier.
func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE id = $1 LIMIT 1`, principalColumns)
	var principal models.Principal
	if err := r.db.GetContext(ctx, &principal, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find principal by id: %w", err)
	}
	return &principal, nil
}

// FindByCredential returns the principal of the given role backed by a
// credential.
func (r *PrincipalRepository) FindByCredential(ctx context.Context, credentialID string, role models.Role) (*models.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE credential_id = $1 AND role = $2 LIMIT 1`, principalColumns)
	var principal models.Principal
	if err := r.db.GetContext(ctx, &principal, query, credentialID, role); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find principal by credential: %w", err)
	}
	return &principal, nil
}

// UpdateLastLogin updates the last_login_at timestamp for a principal.
func (r *PrincipalRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE principals SET last_login_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a principal and suspends it.
func (r *PrincipalRepository) Deactivate(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE principals SET status = $2, deleted_at = $3, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusSuspended, ts)
	if err != nil {
		return fmt.Errorf("deactivate principal: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns principals based on filters with total count.
func (r *PrincipalRepository) List(ctx context.Context, filter models.PrincipalFilter) ([]models.Principal, int, error) {
	baseQuery := `FROM principals WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(display_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":    true,
		"updated_at":    true,
		"display_name":  true,
		"last_login_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", principalColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var principals []models.Principal
	if err := r.db.SelectContext(ctx, &principals, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list principals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count principals: %w", err)
	}

	return principals, total, nil
}

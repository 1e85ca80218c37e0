package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agora-api/internal/models"
)

// CredentialRepository provides database access for credential records.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new instance of CredentialRepository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByEmail returns a non-deleted credential by email address.
func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	const query = `SELECT id, email, password_hash, created_at, updated_at, deleted_at FROM credentials WHERE email = $1 AND deleted_at IS NULL LIMIT 1`
	var cred models.Credential
	if err := r.db.GetContext(ctx, &cred, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find credential by email: %w", err)
	}
	return &cred, nil
}

// SoftDelete marks a credential as deleted, freeing its email for reuse.
func (r *CredentialRepository) SoftDelete(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE credentials SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("soft delete credential: %w", err)
	}
	return nil
}

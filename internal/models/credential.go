package models

import "time"

// Credential is the email/password-hash pair backing non-guest principals.
// Email uniqueness holds among non-deleted rows only; deletion is a soft
// delete via deleted_at.
type Credential struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

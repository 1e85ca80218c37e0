// Package repository provides sqlx-backed persistence for principals,
// credentials, the session ledger and audit logs. Sentinel errors let the
// service layer map storage outcomes onto the domain error taxonomy without
// inspecting driver errors itself.
package repository

import "errors"

// ErrDuplicateEmail is returned when inserting a credential collides with
// the partial unique index on non-deleted emails.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrSessionRevoked is returned by Rotate when the session being rotated was
// already revoked by a concurrent refresh, preserving single-use semantics
// for refresh tokens.
var ErrSessionRevoked = errors.New("session already revoked")

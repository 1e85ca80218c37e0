package models

import (
	"fmt"
	"time"
)

// Role identifies the four actor types supported by the platform.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
	RoleAdminUser Role = "adminUser"
)

// ParseRole validates a role string coming from a route parameter.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleGuest, RoleMember, RoleAdmin, RoleAdminUser:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// RequiresCredential reports whether principals of this role are backed by an
// email/password credential. Guests are not.
func (r Role) RequiresCredential() bool {
	return r != RoleGuest
}

// Principal status values.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Principal represents an actor row in the principals table. Non-guest
// principals reference exactly one credential.
type Principal struct {
	ID           string     `db:"id" json:"id"`
	Role         Role       `db:"role" json:"role"`
	CredentialID *string    `db:"credential_id" json:"credential_id,omitempty"`
	DisplayName  *string    `db:"display_name" json:"display_name,omitempty"`
	Status       string     `db:"status" json:"status"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Authenticatable reports whether the principal may receive new tokens.
func (p *Principal) Authenticatable() bool {
	return p != nil && p.Status == StatusActive && p.DeletedAt == nil
}

// PrincipalFilter captures filtering criteria for listing principals.
type PrincipalFilter struct {
	Role      *Role
	Status    *string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

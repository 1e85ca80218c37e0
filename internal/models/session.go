package models

import "time"

// Session is one row of the session ledger: the validity window of one
// issued refresh token. A session is usable iff RevokedAt is nil and
// ExpiresAt is in the future; refresh replaces the row (revoke + insert)
// rather than mutating it in place.
type Session struct {
	ID         string     `db:"id" json:"id"`
	OwnerID    string     `db:"owner_id" json:"owner_id"`
	Role       Role       `db:"role" json:"role"`
	Token      string     `db:"token" json:"-"`
	IssuedAt   time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	DeviceInfo string     `db:"device_info" json:"device_info,omitempty"`
	IPAddress  string     `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the session can still be refreshed at the given
// instant.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// SessionFilter captures filtering criteria for listing ledger entries.
type SessionFilter struct {
	OwnerID    string
	Role       *Role
	ActiveOnly bool
	Page       int
	PageSize   int
}

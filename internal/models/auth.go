package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JoinRequest registers a new principal. Email and password are required for
// every role except guest, which joins with an empty body.
type JoinRequest struct {
	Email       string `json:"email" validate:"omitempty,email"`
	// bcrypt only reads the first 72 bytes, so anything longer is rejected
	// up front instead of surfacing a hashing error.
	Password    string `json:"password" validate:"omitempty,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"omitempty,max=64"`
	IP          string `json:"-"`
	UserAgent   string `json:"-"`
}

// LoginRequest holds credentials for authenticating a principal.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// AuthorizedToken is the issued token pair returned to clients. Expiry
// fields serialise as ISO-8601 via time.Time.
type AuthorizedToken struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	ExpiredAt        time.Time `json:"expired_at"`
	RefreshableUntil time.Time `json:"refreshable_until"`
}

// AuthorizedPrincipal is the response body of join/login/refresh.
type AuthorizedPrincipal struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	DisplayName *string         `json:"display_name,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	Token       AuthorizedToken `json:"token"`
}

// Token type marker carried by refresh tokens.
const TokenTypeRefresh = "refresh"

// JWTClaims is the payload of both issued token kinds. Access tokens leave
// TokenType empty; refresh tokens set it to TokenTypeRefresh.
type JWTClaims struct {
	PrincipalID string `json:"id"`
	Role        Role   `json:"type"`
	TokenType   string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

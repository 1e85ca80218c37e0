package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/pkg/config"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
)

// TokenIssuer produces and verifies signed token pairs. It is stateless:
// the session ledger, not the issuer, decides whether a refresh token is
// still usable.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer from JWT configuration.
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	accessTTL := cfg.Expiration
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	refreshTTL := cfg.RefreshExpiration
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// RefreshTTL exposes the refresh window so callers can align ledger expiry
// with the token's own expiry.
func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// Issue signs an access/refresh pair for the principal. Both tokens carry
// the principal id and role; the refresh token additionally carries the
// refresh marker claim.
func (t *TokenIssuer) Issue(principalID string, role models.Role) (*models.AuthorizedToken, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(t.accessTTL)
	refreshExpiry := now.Add(t.refreshTTL)

	access, err := t.sign(principalID, role, "", now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.sign(principalID, role, models.TokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &models.AuthorizedToken{
		Access:           access,
		Refresh:          refresh,
		ExpiredAt:        accessExpiry,
		RefreshableUntil: refreshExpiry,
	}, nil
}

// VerifyAccess parses and validates an access token returning the claims.
func (t *TokenIssuer) VerifyAccess(tokenString string) (*models.JWTClaims, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token presented as access token")
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token returning the claims.
// The ledger lookup happens after this check, so signature failures never
// touch the database. A token that is well-formed but past its expiry maps
// to the session-expired error, since the ledger row shares the token's
// expiry and would report the same.
func (t *TokenIssuer) VerifyRefresh(tokenString string) (*models.JWTClaims, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrSessionExpired, "")
		}
		return nil, err
	}
	if claims.TokenType != models.TokenTypeRefresh {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token is not a refresh token")
	}
	return claims, nil
}

func (t *TokenIssuer) sign(principalID string, role models.Role, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		PrincipalID: principalID,
		Role:        role,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   principalID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) parse(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}

	return claims, nil
}

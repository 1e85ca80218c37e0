package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/repository"
	"github.com/noah-isme/agora-api/pkg/config"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
)

type mockAuthStore struct {
	credentialByEmail  *models.Credential
	findCredentialErr  error
	createPrincipalErr error

	principals      map[string]*models.Principal
	principalByCred *models.Principal

	sessionsByToken map[string]*models.Session
	rotateErr       error

	lastLoginUpdated bool
	revokedOwners    []string
	auditLogs        []*models.AuditLog
	seq              int
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{
		principals:      make(map[string]*models.Principal),
		sessionsByToken: make(map[string]*models.Session),
	}
}

func (m *mockAuthStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockAuthStore) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	if m.findCredentialErr != nil {
		return nil, m.findCredentialErr
	}
	if m.credentialByEmail == nil || m.credentialByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.credentialByEmail, nil
}

func (m *mockAuthStore) Create(ctx context.Context, principal *models.Principal, credential *models.Credential) error {
	if m.createPrincipalErr != nil {
		return m.createPrincipalErr
	}
	principal.ID = m.nextID("p")
	if credential != nil {
		credential.ID = m.nextID("c")
		id := credential.ID
		principal.CredentialID = &id
	}
	m.principals[principal.ID] = principal
	return nil
}

func (m *mockAuthStore) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	p, ok := m.principals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockAuthStore) FindByCredential(ctx context.Context, credentialID string, role models.Role) (*models.Principal, error) {
	if m.principalByCred == nil || m.principalByCred.Role != role {
		return nil, sql.ErrNoRows
	}
	return m.principalByCred, nil
}

func (m *mockAuthStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthStore) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = m.nextID("s")
	m.sessionsByToken[session.Token] = session
	return nil
}

func (m *mockAuthStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	s, ok := m.sessionsByToken[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (m *mockAuthStore) Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.Session) error {
	if m.rotateErr != nil {
		return m.rotateErr
	}
	for _, s := range m.sessionsByToken {
		if s.ID == oldID {
			if s.RevokedAt != nil {
				return repository.ErrSessionRevoked
			}
			at := revokedAt
			s.RevokedAt = &at
			next.ID = m.nextID("s")
			m.sessionsByToken[next.Token] = next
			return nil
		}
	}
	return repository.ErrSessionRevoked
}

func (m *mockAuthStore) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	for _, s := range m.sessionsByToken {
		if s.ID == id && s.RevokedAt == nil {
			at := revokedAt
			s.RevokedAt = &at
		}
	}
	return nil
}

func (m *mockAuthStore) RevokeAllForOwner(ctx context.Context, ownerID string, revokedAt time.Time) error {
	m.revokedOwners = append(m.revokedOwners, ownerID)
	for _, s := range m.sessionsByToken {
		if s.OwnerID == ownerID && s.RevokedAt == nil {
			at := revokedAt
			s.RevokedAt = &at
		}
	}
	return nil
}

func (m *mockAuthStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockSessionLedger struct{ *mockAuthStore }

func (m mockSessionLedger) Create(ctx context.Context, session *models.Session) error {
	return m.CreateSession(ctx, session)
}

type mockAuditRecorder struct{ *mockAuthStore }

func (m mockAuditRecorder) Create(ctx context.Context, log *models.AuditLog) error {
	return m.CreateAuditLog(ctx, log)
}

func newTestAuthService(store *mockAuthStore, singleSession bool) *AuthService {
	return NewAuthService(store, store, mockSessionLedger{store}, mockAuditRecorder{store}, newTestIssuer(), validator.New(), zap.NewNop(), singleSession)
}

func seedMember(store *mockAuthStore, password string) *models.Principal {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	credID := "c-seed"
	store.credentialByEmail = &models.Credential{ID: credID, Email: "user@example.com", PasswordHash: string(hash)}
	principal := &models.Principal{ID: "p-seed", Role: models.RoleMember, CredentialID: &credID, Status: models.StatusActive}
	store.principalByCred = principal
	store.principals[principal.ID] = principal
	return principal
}

func TestAuthServiceJoinGuest(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	res, err := svc.Join(context.Background(), models.RoleGuest, models.JoinRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.RoleGuest, res.Role)
	assert.NotEmpty(t, res.Token.Access)
	assert.NotEmpty(t, res.Token.Refresh)
	assert.Nil(t, store.principals[res.ID].CredentialID)
	assert.Len(t, store.sessionsByToken, 1)
	assert.NotEmpty(t, store.auditLogs)
}

func TestAuthServiceJoinMember(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	res, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{
		Email:       "new@example.com",
		Password:    "password123",
		DisplayName: "newcomer",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, res.Role)
	require.NotNil(t, res.DisplayName)
	assert.Equal(t, "newcomer", *res.DisplayName)
	assert.NotNil(t, store.principals[res.ID].CredentialID)
}

func TestAuthServiceJoinMemberWithoutCredentials(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	_, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceJoinPasswordTooLong(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	// bcrypt caps input at 72 bytes; a longer password must fail validation
	// rather than error during hashing.
	_, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{
		Email:    "new@example.com",
		Password: strings.Repeat("a", 73),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceJoinDuplicateEmail(t *testing.T) {
	store := newMockAuthStore()
	store.createPrincipalErr = repository.ErrDuplicateEmail
	svc := newTestAuthService(store, false)

	_, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{
		Email:    "taken@example.com",
		Password: "password123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEmail.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	store := newMockAuthStore()
	seedMember(store, "password123")
	svc := newTestAuthService(store, false)

	res, err := svc.Login(context.Background(), models.RoleMember, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "p-seed", res.ID)
	assert.NotEmpty(t, res.Token.Access)
	assert.True(t, store.lastLoginUpdated)
	assert.Len(t, store.sessionsByToken, 1)
}

func TestAuthServiceLoginAdminSkipsLastLogin(t *testing.T) {
	store := newMockAuthStore()
	principal := seedMember(store, "password123")
	principal.Role = models.RoleAdmin
	svc := newTestAuthService(store, false)

	_, err := svc.Login(context.Background(), models.RoleAdmin, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.False(t, store.lastLoginUpdated)
}

func TestAuthServiceLoginFailuresAreUniform(t *testing.T) {
	store := newMockAuthStore()
	principal := seedMember(store, "password123")

	svc := newTestAuthService(store, false)

	cases := []struct {
		name  string
		setup func()
		req   models.LoginRequest
	}{
		{
			name:  "unknown email",
			setup: func() {},
			req:   models.LoginRequest{Email: "nobody@example.com", Password: "password123"},
		},
		{
			name:  "wrong password",
			setup: func() {},
			req:   models.LoginRequest{Email: "user@example.com", Password: "wrong-password"},
		},
		{
			name:  "suspended account",
			setup: func() { principal.Status = models.StatusSuspended },
			req:   models.LoginRequest{Email: "user@example.com", Password: "password123"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup()
			_, err := svc.Login(context.Background(), models.RoleMember, tc.req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
			assert.Equal(t, appErrors.ErrInvalidCredentials.Message, appErr.Message)
		})
	}
}

func TestAuthServiceLoginRoleMismatch(t *testing.T) {
	store := newMockAuthStore()
	seedMember(store, "password123")
	svc := newTestAuthService(store, false)

	_, err := svc.Login(context.Background(), models.RoleAdmin, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginGuestRejected(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	_, err := svc.Login(context.Background(), models.RoleGuest, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSingleSessionRevokesOthers(t *testing.T) {
	store := newMockAuthStore()
	seedMember(store, "password123")
	svc := newTestAuthService(store, true)

	_, err := svc.Login(context.Background(), models.RoleMember, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Contains(t, store.revokedOwners, "p-seed")
}

func TestAuthServiceRefreshRotatesSession(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	joined, err := svc.Join(context.Background(), models.RoleGuest, models.JoinRequest{})
	require.NoError(t, err)

	// Tokens embed issue time at second precision, so a rotation within the
	// same second would produce an identical refresh token.
	time.Sleep(1100 * time.Millisecond)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: joined.Token.Refresh})
	require.NoError(t, err)
	assert.Equal(t, joined.ID, refreshed.ID)
	assert.Equal(t, models.RoleGuest, refreshed.Role)
	assert.NotEqual(t, joined.Token.Refresh, refreshed.Token.Refresh)

	old := store.sessionsByToken[joined.Token.Refresh]
	require.NotNil(t, old)
	assert.NotNil(t, old.RevokedAt)
	assert.NotNil(t, store.sessionsByToken[refreshed.Token.Refresh])
}

func TestAuthServiceRefreshReuseRejected(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	joined, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: joined.Token.Refresh})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: joined.Token.Refresh})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionInvalid.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshUnknownSession(t *testing.T) {
	store := newMockAuthStore()
	store.principals["p1"] = &models.Principal{ID: "p1", Role: models.RoleMember, Status: models.StatusActive}
	svc := newTestAuthService(store, false)

	tokens, err := newTestIssuer().Issue("p1", models.RoleMember)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: tokens.Refresh})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionInvalid.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	store := newMockAuthStore()
	issuer := NewTokenIssuer(config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "agora-test",
		Expiration:        time.Hour,
		RefreshExpiration: time.Millisecond,
	})
	svc := NewAuthService(store, store, mockSessionLedger{store}, mockAuditRecorder{store}, issuer, validator.New(), zap.NewNop(), false)

	joined, err := svc.Join(context.Background(), models.RoleGuest, models.JoinRequest{})
	require.NoError(t, err)

	// Token expiry claims have second precision; wait until the refresh
	// token is unambiguously past its own exp.
	time.Sleep(1100 * time.Millisecond)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: joined.Token.Refresh})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiredSession(t *testing.T) {
	store := newMockAuthStore()
	store.principals["p1"] = &models.Principal{ID: "p1", Role: models.RoleMember, Status: models.StatusActive}
	svc := newTestAuthService(store, false)

	tokens, err := newTestIssuer().Issue("p1", models.RoleMember)
	require.NoError(t, err)
	store.sessionsByToken[tokens.Refresh] = &models.Session{
		ID:        "s1",
		OwnerID:   "p1",
		Role:      models.RoleMember,
		Token:     tokens.Refresh,
		IssuedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: tokens.Refresh})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshWithAccessToken(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	tokens, err := newTestIssuer().Issue("p1", models.RoleMember)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: tokens.Access})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshDeactivatedPrincipal(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	joined, err := svc.Join(context.Background(), models.RoleMember, models.JoinRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	store.principals[joined.ID].Status = models.StatusSuspended

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: joined.Token.Refresh})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountInactive.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	joined, err := svc.Join(context.Background(), models.RoleGuest, models.JoinRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), joined.Token.Refresh, joined.ID, "", ""))
	session := store.sessionsByToken[joined.Token.Refresh]
	require.NotNil(t, session)
	assert.NotNil(t, session.RevokedAt)

	// Logging out an already revoked session is a no-op.
	require.NoError(t, svc.Logout(context.Background(), joined.Token.Refresh, joined.ID, "", ""))
}

func TestAuthServiceLogoutUnknownToken(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	err := svc.Logout(context.Background(), "missing", "p1", "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogoutForeignSession(t *testing.T) {
	store := newMockAuthStore()
	svc := newTestAuthService(store, false)

	joined, err := svc.Join(context.Background(), models.RoleGuest, models.JoinRequest{})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), joined.Token.Refresh, "someone-else", "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"guest", "member", "admin", "adminUser"} {
		role, err := ParseRole(raw)
		require.NoError(t, err)
		assert.Equal(t, Role(raw), role)
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)

	// Role names are case sensitive.
	_, err = ParseRole("adminuser")
	require.Error(t, err)
}

func TestRoleRequiresCredential(t *testing.T) {
	assert.False(t, RoleGuest.RequiresCredential())
	assert.True(t, RoleMember.RequiresCredential())
	assert.True(t, RoleAdmin.RequiresCredential())
	assert.True(t, RoleAdminUser.RequiresCredential())
}

func TestPrincipalAuthenticatable(t *testing.T) {
	now := time.Now()

	assert.True(t, (&Principal{Status: StatusActive}).Authenticatable())
	assert.False(t, (&Principal{Status: StatusSuspended}).Authenticatable())
	assert.False(t, (&Principal{Status: StatusActive, DeletedAt: &now}).Authenticatable())

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Authenticatable())
}

func TestSessionActive(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	live := Session{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, live.Active(now))

	expired := Session{ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, expired.Active(now))

	gone := Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}
	assert.False(t, gone.Active(now))
}

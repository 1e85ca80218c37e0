package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agora-api/internal/models"
)

func TestPrincipalCreateWithCredential(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credentials").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO principals").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	principal := &models.Principal{Role: models.RoleMember, Status: models.StatusActive}
	credential := &models.Credential{Email: "user@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), principal, credential))
	assert.NotEmpty(t, principal.ID)
	require.NotNil(t, principal.CredentialID)
	assert.Equal(t, credential.ID, *principal.CredentialID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalCreateGuest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO principals").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	principal := &models.Principal{Role: models.RoleGuest, Status: models.StatusActive}
	require.NoError(t, repo.Create(context.Background(), principal, nil))
	assert.Nil(t, principal.CredentialID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalCreateDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credentials").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	principal := &models.Principal{Role: models.RoleMember, Status: models.StatusActive}
	credential := &models.Credential{Email: "taken@example.com", PasswordHash: "hash"}
	err := repo.Create(context.Background(), principal, credential)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateEmail))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "role", "credential_id", "display_name", "status", "last_login_at", "created_at", "updated_at", "deleted_at"}).
		AddRow("p1", string(models.RoleAdmin), "c1", "boss", models.StatusActive, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, credential_id, display_name, status, last_login_at, created_at, updated_at, deleted_at FROM principals WHERE id = $1 LIMIT 1")).
		WithArgs("p1").
		WillReturnRows(rows)

	principal, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, principal.Role)
	assert.True(t, principal.Authenticatable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalFindByCredential(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "role", "credential_id", "display_name", "status", "last_login_at", "created_at", "updated_at", "deleted_at"}).
		AddRow("p1", string(models.RoleMember), "c1", nil, models.StatusActive, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, credential_id, display_name, status, last_login_at, created_at, updated_at, deleted_at FROM principals WHERE credential_id = $1 AND role = $2 LIMIT 1")).
		WithArgs("c1", models.RoleMember).
		WillReturnRows(rows)

	principal, err := repo.FindByCredential(context.Background(), "c1", models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "p1", principal.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalUpdateLastLogin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE principals SET last_login_at = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), "p1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalDeactivate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE principals SET status = $2, deleted_at = $3, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("p1", models.StatusSuspended, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "p1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalDeactivateAlreadyDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	mock.ExpectExec("UPDATE principals SET status").
		WithArgs("p1", models.StatusSuspended, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "p1", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestPrincipalList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPrincipalRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "role", "credential_id", "display_name", "status", "last_login_at", "created_at", "updated_at", "deleted_at"}).
		AddRow("p1", string(models.RoleMember), nil, "alice", models.StatusActive, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, credential_id, display_name, status, last_login_at, created_at, updated_at, deleted_at FROM principals WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM principals WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	principals, total, err := repo.List(context.Background(), models.PrincipalFilter{})
	require.NoError(t, err)
	assert.Len(t, principals, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

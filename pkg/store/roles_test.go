package store_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRepository_PermissionsForRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresRoleRepository(db)

	mock.ExpectQuery(`SELECT p.resource \|\| ':' \|\| p.action`).
		WithArgs("ADMIN").
		WillReturnRows(sqlmock.NewRows([]string{"resource_action"}).
			AddRow("EXPENSE:APPROVE").
			AddRow("USER:ADMIN"))

	perms, err := repo.PermissionsForRole("ADMIN")

	require.NoError(t, err)
	assert.Equal(t, []string{"EXPENSE:APPROVE", "USER:ADMIN"}, perms)
}

func TestRoleRepository_EnsureRolesAndPermissions_CommitsSeed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresRoleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO roles`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO permissions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO role_permissions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.EnsureRolesAndPermissions(context.Background(), map[string][]string{
		"ADMIN": {"EXPENSE:APPROVE"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_EnsureRolesAndPermissions_SkipsMalformedEntry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresRoleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO roles`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.EnsureRolesAndPermissions(context.Background(), map[string][]string{
		"ADMIN": {"not-a-valid-permission"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

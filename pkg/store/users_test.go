package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userColumns() []string {
	return []string{
		"id", "username", "email", "first_name", "last_name", "company", "password_hash",
		"role_name", "enabled", "locked", "failed_login_count", "password_last_changed",
		"password_expires_at", "force_password_change", "tokens_invalid_before",
		"created_at", "updated_at",
	}
}

func TestUserRepository_FindByUsername_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectQuery(`SELECT .* FROM users u JOIN roles r`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	_, err := repo.FindByUsername(context.Background(), "ghost")

	require.Error(t, err)
}

func TestUserRepository_FindByUsername_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM users u JOIN roles r`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			int64(1), "alice", "alice@example.com", "Alice", "Smith", nil, "hash",
			"USER", true, false, 0, now, now.Add(90*24*time.Hour), false, now, now, now,
		))

	u, err := repo.FindByUsername(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "USER", u.Role)
}

func TestUserRepository_IncrementFailedLogin_LocksAtThreshold(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs("alice", 5).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))

	locked, err := repo.IncrementFailedLogin(context.Background(), "alice", 5)

	require.NoError(t, err)
	assert.True(t, locked)
}

func TestUserRepository_Unlock_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectExec(`UPDATE users SET locked = false`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Unlock(context.Background(), "ghost")

	require.Error(t, err)
}

func TestUserRepository_ChangePassword_CommitsHistoryAndPrune(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO password_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM password_history`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.ChangePassword(context.Background(), "alice", "new-hash", time.Now().Add(90*24*time.Hour), 5)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ChangePassword_RollsBackOnUpdateError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET`).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	err := repo.ChangePassword(context.Background(), "ghost", "new-hash", time.Now(), 5)

	require.Error(t, err)
}

func TestUserRepository_SetTokensInvalidBefore_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectExec(`UPDATE users SET tokens_invalid_before`).
		WithArgs("ghost", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetTokensInvalidBefore(context.Background(), "ghost", time.Now())

	require.Error(t, err)
}

func TestUserRepository_SetTokensInvalidBefore_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	mock.ExpectExec(`UPDATE users SET tokens_invalid_before`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetTokensInvalidBefore(context.Background(), "alice", time.Now())

	require.NoError(t, err)
}

func TestUserRepository_ExpiringWithin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM users u JOIN roles r`).
		WithArgs("GUEST", 7).
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			int64(2), "bob", "bob@example.com", "Bob", "Jones", nil, "hash",
			"USER", true, false, 0, now, now.Add(3*24*time.Hour), false, now, now, now,
		))

	users, err := repo.ExpiringWithin(context.Background(), 7, "GUEST")

	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
}

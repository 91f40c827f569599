package bootstrap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/bootstrap"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoleRepo struct {
	manifest map[string][]string
	err      error
}

func (f *fakeRoleRepo) EnsureRolesAndPermissions(ctx context.Context, manifest map[string][]string) error {
	f.manifest = manifest
	return f.err
}

type fakeUserRepo struct {
	existing *store.User
	saved    *store.User
}

func (f *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	if f.existing != nil && f.existing.Username == username {
		return f.existing, nil
	}
	return nil, store.ErrUserNotFoundErr()
}

func (f *fakeUserRepo) Save(ctx context.Context, u store.User) (int64, error) {
	f.saved = &u
	return 1, nil
}

const testSigningSecret = "this-is-a-32-byte-test-signing-secret!!"

func baseOptions() bootstrap.Options {
	return bootstrap.Options{
		SigningSecret:      testSigningSecret,
		AdminUsername:      "admin",
		AdminPassword:      "Str0ng!AdminPass",
		AdminEmail:         "admin@example.com",
		PasswordExpiration: 90 * 24 * time.Hour,
	}
}

func TestRun_CreatesAdminWhenMissing(t *testing.T) {
	roles := &fakeRoleRepo{}
	users := &fakeUserRepo{}
	hasher := password.NewHasher(4)

	err := bootstrap.Run(context.Background(), baseOptions(), roles, users, hasher)

	require.NoError(t, err)
	require.NotNil(t, users.saved)
	assert.Equal(t, "admin", users.saved.Username)
	assert.True(t, users.saved.ForcePasswordChange)
	assert.NotNil(t, roles.manifest)
}

func TestRun_SkipsAdminCreationWhenAlreadyExists(t *testing.T) {
	roles := &fakeRoleRepo{}
	users := &fakeUserRepo{existing: &store.User{Username: "admin"}}
	hasher := password.NewHasher(4)

	err := bootstrap.Run(context.Background(), baseOptions(), roles, users, hasher)

	require.NoError(t, err)
	assert.Nil(t, users.saved)
}

func TestRun_PropagatesRoleSeedError(t *testing.T) {
	roles := &fakeRoleRepo{err: errors.New("seed failed")}
	users := &fakeUserRepo{}
	hasher := password.NewHasher(4)

	err := bootstrap.Run(context.Background(), baseOptions(), roles, users, hasher)

	require.Error(t, err)
}

func TestRun_RejectsShortSigningSecret(t *testing.T) {
	opts := baseOptions()
	opts.SigningSecret = "too-short"
	roles := &fakeRoleRepo{}
	users := &fakeUserRepo{}
	hasher := password.NewHasher(4)

	err := bootstrap.Run(context.Background(), opts, roles, users, hasher)

	require.Error(t, err)
	assert.Nil(t, roles.manifest)
}

func TestRun_RejectsMissingAdminPassword(t *testing.T) {
	opts := baseOptions()
	opts.AdminPassword = ""
	roles := &fakeRoleRepo{}
	users := &fakeUserRepo{}
	hasher := password.NewHasher(4)

	err := bootstrap.Run(context.Background(), opts, roles, users, hasher)

	require.Error(t, err)
	assert.Nil(t, roles.manifest)
}

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/auth"
	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/security/token"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	byUsername map[string]*store.User
	incremented map[string]int
	unlocked    map[string]bool
	changed     map[string]string
}

func newFakeUsers(users ...*store.User) *fakeUsers {
	f := &fakeUsers{
		byUsername:  make(map[string]*store.User),
		incremented: make(map[string]int),
		unlocked:    make(map[string]bool),
		changed:     make(map[string]string),
	}
	for _, u := range users {
		f.byUsername[u.Username] = u
	}
	return f
}

var errNoSuchUser = security.ErrUnauthenticated()

func (f *fakeUsers) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, errNoSuchUser
	}
	return u, nil
}

func (f *fakeUsers) IncrementFailedLogin(ctx context.Context, username string, threshold int) (bool, error) {
	f.incremented[username]++
	locked := f.incremented[username] >= threshold
	if locked {
		f.byUsername[username].Locked = true
	}
	return locked, nil
}

func (f *fakeUsers) ResetFailedLogin(ctx context.Context, username string) error {
	f.incremented[username] = 0
	return nil
}

func (f *fakeUsers) Unlock(ctx context.Context, username string) error {
	f.unlocked[username] = true
	f.byUsername[username].Locked = false
	return nil
}

func (f *fakeUsers) ChangePassword(ctx context.Context, username, newHash string, expiresAt time.Time, historyLimit int) error {
	f.changed[username] = newHash
	f.byUsername[username].PasswordHash = newHash
	return nil
}

func (f *fakeUsers) SetTokensInvalidBefore(ctx context.Context, username string, cutoff time.Time) error {
	f.byUsername[username].TokensInvalidBefore = cutoff
	return nil
}

type fakeRevocations struct {
	revoked map[string]bool
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: make(map[string]bool)}
}

func (f *fakeRevocations) Revoke(ctx context.Context, jti, username string, expiresAt time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

type fakeHistory struct{}

func (fakeHistory) History(ctx context.Context, username string, limit int) ([]password.HistoryEntry, error) {
	return nil, nil
}

type fakeRoles struct{}

func (fakeRoles) PermissionsForRole(role string) ([]string, error) {
	return rbac.SeedRoles[role], nil
}

const testSigningSecret = "this-is-a-32-byte-test-signing-secret!!"

func newTestService(t *testing.T, users *fakeUsers, revocations *fakeRevocations) *auth.Service {
	t.Helper()
	codec, err := token.NewCodec(testSigningSecret, "activitytracking", time.Minute, time.Hour, time.Hour)
	require.NoError(t, err)
	hasher := password.NewHasher(4)
	policy := password.NewPolicy(8, 3)
	evaluator := rbac.NewEvaluator(fakeRoles{})
	return auth.NewService(users, revocations, fakeHistory{}, codec, hasher, policy, evaluator, 90*24*time.Hour)
}

func mustHash(t *testing.T, h *password.Hasher, plaintext string) string {
	t.Helper()
	digest, err := h.Hash(plaintext)
	require.NoError(t, err)
	return digest
}

func TestLogin_Success(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{Username: "alice", PasswordHash: hash, Role: rbac.RoleUser, Enabled: true, PasswordExpiresAt: time.Now().Add(time.Hour)}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeRevocations())

	pair, err := svc.Login(context.Background(), "alice", "Str0ng!Pass")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLogin_WrongPasswordLocksAfterThreshold(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{Username: "alice", PasswordHash: hash, Role: rbac.RoleUser, Enabled: true, PasswordExpiresAt: time.Now().Add(time.Hour)}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeRevocations())

	for i := 0; i < 5; i++ {
		_, err := svc.Login(context.Background(), "alice", "wrong-password")
		require.Error(t, err)
	}

	assert.True(t, u.Locked)
}

func TestLogin_DisabledAccountRejected(t *testing.T) {
	u := &store.User{Username: "alice", Enabled: false}
	svc := newTestService(t, newFakeUsers(u), newFakeRevocations())

	_, err := svc.Login(context.Background(), "alice", "whatever")

	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, security.CodeUnauthenticated.Code, xerr.Code)
}

func TestLogin_ExpiredGuestGetsDistinctMessage(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{
		Username: "guest1", PasswordHash: hash, Role: rbac.RoleGuest,
		Enabled: true, PasswordExpiresAt: time.Now().Add(-time.Hour),
	}
	svc := newTestService(t, newFakeUsers(u), newFakeRevocations())

	_, err := svc.Login(context.Background(), "guest1", "Str0ng!Pass")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestRefresh_RotatesAndRevokesOldToken(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{Username: "alice", PasswordHash: hash, Role: rbac.RoleUser, Enabled: true, PasswordExpiresAt: time.Now().Add(time.Hour)}
	users := newFakeUsers(u)
	revocations := newFakeRevocations()
	svc := newTestService(t, users, revocations)

	pair, err := svc.Login(context.Background(), "alice", "Str0ng!Pass")
	require.NoError(t, err)

	newPair, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Error(t, err)
}

func TestChangePassword_RejectsPolicyViolation(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{Username: "alice", PasswordHash: hash, Role: rbac.RoleUser, Enabled: true}
	svc := newTestService(t, newFakeUsers(u), newFakeRevocations())

	err := svc.ChangePassword(context.Background(), "alice", "Str0ng!Pass", "weak")

	require.Error(t, err)
}

func TestChangePassword_Success(t *testing.T) {
	hasher := password.NewHasher(4)
	hash := mustHash(t, hasher, "Str0ng!Pass")
	u := &store.User{Username: "alice", PasswordHash: hash, Role: rbac.RoleUser, Enabled: true}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeRevocations())

	err := svc.ChangePassword(context.Background(), "alice", "Str0ng!Pass", "An0ther!Secret")

	require.NoError(t, err)
	assert.NotEqual(t, hash, users.byUsername["alice"].PasswordHash)
}

func TestUnlock_ClearsLockedFlag(t *testing.T) {
	u := &store.User{Username: "alice", Locked: true}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeRevocations())

	err := svc.Unlock(context.Background(), "alice")

	require.NoError(t, err)
	assert.False(t, u.Locked)
}

func TestRevokeTokens_AdvancesWatermark(t *testing.T) {
	u := &store.User{Username: "alice", TokensInvalidBefore: time.Now().Add(-time.Hour)}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeRevocations())

	before := time.Now()
	err := svc.RevokeTokens(context.Background(), "alice")

	require.NoError(t, err)
	assert.False(t, u.TokensInvalidBefore.Before(before))
}

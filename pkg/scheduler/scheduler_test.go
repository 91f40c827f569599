package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users []store.User
	err   error
}

func (f *fakeUserRepo) ExpiringWithin(ctx context.Context, days int, excludeRole string) ([]store.User, error) {
	return f.users, f.err
}

type fakeRevocationRepo struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeRevocationRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeNotifier struct {
	expiring map[string]int
	expired  []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{expiring: make(map[string]int)}
}

func (f *fakeNotifier) NotifyPasswordExpiring(ctx context.Context, username string, daysLeft int) error {
	f.expiring[username] = daysLeft
	return nil
}

func (f *fakeNotifier) NotifyPasswordExpired(ctx context.Context, username string) error {
	f.expired = append(f.expired, username)
	return nil
}

type denyingLease struct{}

func (denyingLease) TryAcquire(ctx context.Context, jobName string) (bool, error) { return false, nil }

func TestRunPasswordExpirationScan_NotifiesExpiringAndExpiredUsers(t *testing.T) {
	users := &fakeUserRepo{users: []store.User{
		{Username: "soon-to-expire", PasswordExpiresAt: time.Now().UTC().Add(3 * 24 * time.Hour)},
		{Username: "already-expired", PasswordExpiresAt: time.Now().UTC().Add(-24 * time.Hour)},
	}}
	notifier := newFakeNotifier()
	s := New(users, &fakeRevocationRepo{}, notifier, nil)

	s.runPasswordExpirationScan()

	assert.Contains(t, notifier.expiring, "soon-to-expire")
	assert.Contains(t, notifier.expired, "already-expired")
}

func TestRunPasswordExpirationScan_SkipsWhenLeaseDenied(t *testing.T) {
	users := &fakeUserRepo{users: []store.User{{Username: "alice", PasswordExpiresAt: time.Now()}}}
	notifier := newFakeNotifier()
	s := New(users, &fakeRevocationRepo{}, notifier, denyingLease{})

	s.runPasswordExpirationScan()

	assert.Empty(t, notifier.expiring)
	assert.Empty(t, notifier.expired)
}

func TestRunPasswordExpirationScan_StopsOnRepositoryError(t *testing.T) {
	users := &fakeUserRepo{err: errors.New("db down")}
	notifier := newFakeNotifier()
	s := New(users, &fakeRevocationRepo{}, notifier, nil)

	s.runPasswordExpirationScan()

	assert.Empty(t, notifier.expiring)
}

func TestRunRevocationGC_DeletesExpiredEntries(t *testing.T) {
	revoked := &fakeRevocationRepo{deleted: 3}
	s := New(&fakeUserRepo{}, revoked, newFakeNotifier(), nil)

	require.NotPanics(t, func() { s.runRevocationGC() })
	assert.Equal(t, 1, revoked.calls)
}

func TestRunRevocationGC_SkipsWhenLeaseDenied(t *testing.T) {
	revoked := &fakeRevocationRepo{deleted: 3}
	s := New(&fakeUserRepo{}, revoked, newFakeNotifier(), denyingLease{})

	require.NotPanics(t, func() { s.runRevocationGC() })
	assert.Equal(t, 0, revoked.calls)
}

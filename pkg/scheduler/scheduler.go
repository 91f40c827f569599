// Package scheduler runs the daily password-expiration scan and the
// periodic revocation-ledger GC, both idempotent and safe against missed
// fires. jobx is a delay queue, not a wall-clock cadence scheduler, so
// this adopts robfig/cron/v3 for cron-style cadences instead.
package scheduler

import (
	"context"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/robfig/cron/v3"
)

// UserRepository is the subset needed by the expiration scan.
type UserRepository interface {
	ExpiringWithin(ctx context.Context, days int, excludeRole string) ([]store.User, error)
}

// RevocationRepository is the subset needed by the GC job.
type RevocationRepository interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier is the narrow slice of the Notification Dispatcher the
// Scheduler drives.
type Notifier interface {
	NotifyPasswordExpiring(ctx context.Context, username string, daysLeft int) error
	NotifyPasswordExpired(ctx context.Context, username string) error
}

// LeaseAcquirer decides whether this process replica may run a given job
// this tick. The default NoopLeaseAcquirer always says yes, correct for a
// single-replica deployment; a Postgres "SELECT ... FOR UPDATE SKIP
// LOCKED" implementation can be swapped in without restructuring the
// Scheduler.
type LeaseAcquirer interface {
	TryAcquire(ctx context.Context, jobName string) (bool, error)
}

// NoopLeaseAcquirer always grants the lease. Correct for single-replica
// deployments; every replica in an N>1 deployment would otherwise run
// every job, which is merely wasteful (both jobs are idempotent) rather
// than unsafe.
type NoopLeaseAcquirer struct{}

func (NoopLeaseAcquirer) TryAcquire(ctx context.Context, jobName string) (bool, error) {
	return true, nil
}

const expirationWarningWindow = 7 // days before expiry that the warning notice fires

type Scheduler struct {
	cron     *cron.Cron
	users    UserRepository
	revoked  RevocationRepository
	notifier Notifier
	lease    LeaseAcquirer
}

func New(users UserRepository, revoked RevocationRepository, notifier Notifier, lease LeaseAcquirer) *Scheduler {
	if lease == nil {
		lease = NoopLeaseAcquirer{}
	}
	return &Scheduler{
		cron:     cron.New(),
		users:    users,
		revoked:  revoked,
		notifier: notifier,
		lease:    lease,
	}
}

// Start registers both jobs and begins the cron runner. passwordScanCron
// is a standard 5-field expression (e.g. "0 7 * * *"); gcInterval is run
// via cron's @every syntax.
func (s *Scheduler) Start(passwordScanCron string, gcInterval time.Duration) error {
	if _, err := s.cron.AddFunc(passwordScanCron, s.runPasswordExpirationScan); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every "+gcInterval.String(), s.runRevocationGC); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// runPasswordExpirationScan is safe to run multiple times per day (manual
// admin trigger): it does not mutate any row, only emits messages, so
// re-running merely emits duplicate messages rather than duplicating
// state.
func (s *Scheduler) runPasswordExpirationScan() {
	ctx := context.Background()
	ok, err := s.lease.TryAcquire(ctx, "password_expiration_scan")
	if err != nil || !ok {
		return
	}

	users, err := s.users.ExpiringWithin(ctx, expirationWarningWindow, rbac.RoleGuest)
	if err != nil {
		logx.WithError(err).Error("scheduler: failed to load expiring users")
		return
	}

	now := time.Now().UTC()
	for _, u := range users {
		daysUntil := int(u.PasswordExpiresAt.Sub(now).Hours() / 24)

		var notifyErr error
		if daysUntil < 0 {
			// Expired-yesterday branch: notify once the password has gone
			// stale rather than only while it is still valid.
			notifyErr = s.notifier.NotifyPasswordExpired(ctx, u.Username)
		} else {
			notifyErr = s.notifier.NotifyPasswordExpiring(ctx, u.Username, daysUntil)
		}
		if notifyErr != nil {
			logx.WithError(notifyErr).WithField("username", u.Username).Warn("scheduler: failed to dispatch password expiration notice")
		}
	}
}

func (s *Scheduler) runRevocationGC() {
	ctx := context.Background()
	ok, err := s.lease.TryAcquire(ctx, "revocation_gc")
	if err != nil || !ok {
		return
	}

	deleted, err := s.revoked.DeleteExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		logx.WithError(err).Error("scheduler: revocation ledger GC failed")
		return
	}
	if deleted > 0 {
		logx.WithField("rows", deleted).Info("scheduler: revocation ledger GC removed expired entries")
	}
}

// Package bootstrap starts the process in a valid state, aborting before
// the Scheduler or HTTP server start if a fatal invariant is violated:
// validate config, seed reference data, then ensure an admin user exists.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/security/token"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

// ExitCode mirrors the CLI surface's exit-code contract:
// 0 normal, 1 startup invariant failed, 2 configuration parse error.
type ExitCode int

const (
	ExitOK                  ExitCode = 0
	ExitInvariantFailed     ExitCode = 1
	ExitConfigParseError    ExitCode = 2
)

// RoleRepository is the reference-data surface Bootstrap seeds.
type RoleRepository interface {
	EnsureRolesAndPermissions(ctx context.Context, manifest map[string][]string) error
}

// UserRepository is the subset Bootstrap needs to provision the admin.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*store.User, error)
	Save(ctx context.Context, u store.User) (int64, error)
}

// Options groups the Bootstrap inputs that come from config.
type Options struct {
	SigningSecret       string
	AdminUsername       string
	AdminPassword       string
	AdminEmail          string
	PasswordExpiration  time.Duration
}

// Run executes the startup sequence in order: validate the signing
// secret, validate the admin bootstrap password, seed reference data,
// then provision the admin user. Starting the Scheduler and accepting
// requests is the composition root's job once Run returns successfully —
// Run only establishes the invariants a running process depends on.
func Run(ctx context.Context, opts Options, roles RoleRepository, users UserRepository, hasher *password.Hasher) error {
	if err := token.ValidateSigningSecret(opts.SigningSecret); err != nil {
		return fmt.Errorf("%w: signing secret missing, too short, or a known default: %v", errInvariant, err)
	}

	if opts.AdminPassword == "" {
		return fmt.Errorf("%w: admin bootstrap password is not configured", errInvariant)
	}

	if err := roles.EnsureRolesAndPermissions(ctx, rbac.SeedRoles); err != nil {
		return fmt.Errorf("bootstrap: failed to seed reference data: %w", err)
	}

	if _, err := users.FindByUsername(ctx, opts.AdminUsername); err != nil {
		hash, err := hasher.Hash(opts.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap: failed to hash admin password: %w", err)
		}

		now := time.Now().UTC()
		admin := store.User{
			Username:            opts.AdminUsername,
			Email:               opts.AdminEmail,
			Role:                rbac.RoleAdmin,
			Enabled:             true,
			PasswordHash:        hash,
			PasswordLastChanged: now,
			PasswordExpiresAt:   now.Add(opts.PasswordExpiration),
			ForcePasswordChange: true,
			TokensInvalidBefore: now,
		}
		if _, err := users.Save(ctx, admin); err != nil {
			return fmt.Errorf("bootstrap: failed to create admin user: %w", err)
		}
		logx.WithField("username", opts.AdminUsername).Info("bootstrap: created initial administrator")
	}

	return nil
}

var errInvariant = fmt.Errorf("bootstrap: startup invariant failed")

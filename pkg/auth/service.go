// Package auth implements login, refresh, logout, and change-password,
// composing the Password Policy Engine, Credential Store, Token Codec, and
// Revocation Ledger.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/security/token"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

const lockoutThreshold = 5

// UserRepository is the subset of store.UserRepository this service needs,
// named locally so the service can be unit-tested against a fake.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*store.User, error)
	IncrementFailedLogin(ctx context.Context, username string, threshold int) (bool, error)
	ResetFailedLogin(ctx context.Context, username string) error
	Unlock(ctx context.Context, username string) error
	ChangePassword(ctx context.Context, username, newHash string, expiresAt time.Time, historyLimit int) error
	SetTokensInvalidBefore(ctx context.Context, username string, cutoff time.Time) error
}

type RevocationRepository interface {
	Revoke(ctx context.Context, jti, username string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type PasswordHistoryRepository interface {
	History(ctx context.Context, username string, limit int) ([]password.HistoryEntry, error)
}

// TokenPair is what login and refresh hand back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token TTL, seconds
}

type Service struct {
	users       UserRepository
	revocations RevocationRepository
	history     PasswordHistoryRepository
	codec       *token.Codec
	hasher      *password.Hasher
	policy      password.Policy
	evaluator   *rbac.Evaluator
	expiration  time.Duration
}

func NewService(
	users UserRepository,
	revocations RevocationRepository,
	history PasswordHistoryRepository,
	codec *token.Codec,
	hasher *password.Hasher,
	policy password.Policy,
	evaluator *rbac.Evaluator,
	expirationPeriod time.Duration,
) *Service {
	return &Service{
		users:       users,
		revocations: revocations,
		history:     history,
		codec:       codec,
		hasher:      hasher,
		policy:      policy,
		evaluator:   evaluator,
		expiration:  expirationPeriod,
	}
}

// Login authenticates a username/password pair and mints a fresh token
// pair. Every failure path (no such user, wrong password, disabled,
// locked) returns the same generic UNAUTHENTICATED error to the caller;
// the specific cause is only ever logged. The expired-GUEST case is the
// sole exception: it gets a distinct public message and skips the
// lockout counter entirely.
func (s *Service) Login(ctx context.Context, username, plaintext string) (TokenPair, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		logx.WithFields(map[string]interface{}{"username": username}).Info("login failed: no such user")
		return TokenPair{}, security.ErrUnauthenticated()
	}

	if !u.Enabled {
		logx.WithFields(map[string]interface{}{"username": username}).Info("login failed: account disabled")
		return TokenPair{}, security.ErrUnauthenticated()
	}
	if u.Locked {
		logx.WithFields(map[string]interface{}{"username": username}).Info("login failed: account locked")
		return TokenPair{}, security.ErrUnauthenticated()
	}

	if u.Role == rbac.RoleGuest && !u.PasswordExpiresAt.After(time.Now().UTC()) {
		logx.WithFields(map[string]interface{}{"username": username}).Info("login failed: expired guest account")
		return TokenPair{}, security.ErrUnauthenticatedMsg(
			"your account has expired; contact an administrator")
	}

	if !s.hasher.Verify(u.PasswordHash, plaintext) {
		locked, lockErr := s.users.IncrementFailedLogin(ctx, username, lockoutThreshold)
		if lockErr != nil {
			logx.WithError(lockErr).Error("failed to record failed login")
		} else if locked {
			logx.WithFields(map[string]interface{}{"username": username}).Warn("account locked after repeated failed logins")
		}
		return TokenPair{}, security.ErrUnauthenticated()
	}

	if err := s.users.ResetFailedLogin(ctx, username); err != nil {
		logx.WithError(err).Error("failed to reset failed login count")
	}

	return s.mintPair(u.Username, u.Role)
}

// Refresh validates an incoming refresh token, mints a new pair, and
// revokes the old refresh token's jti.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, security.ErrUnauthenticated()
	}
	if err := token.RequireType(claims, token.Refresh); err != nil {
		return TokenPair{}, security.ErrUnauthenticated()
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if revoked {
		return TokenPair{}, security.ErrUnauthenticated()
	}

	u, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil || !u.Enabled || u.Locked {
		return TokenPair{}, security.ErrUnauthenticated()
	}

	pair, err := s.mintPair(u.Username, u.Role)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		logx.WithError(err).Error("failed to revoke rotated refresh token")
	}
	return pair, nil
}

// Logout is idempotent: inserting an already-present jti is a no-op at
// the repository layer, so calling this twice with the same token leaves
// exactly one ledger row.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.codec.Verify(rawToken)
	if err != nil {
		// An already-expired or malformed token needs no revocation entry;
		// it can never authenticate again regardless.
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time)
}

// ChangePassword validates the candidate against the Password Policy
// Engine, then atomically updates the hash, expiration, and revocation
// watermark so every token issued before this moment stops working.
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return security.ErrUnauthenticated()
	}
	if !s.hasher.Verify(u.PasswordHash, currentPassword) {
		return security.ErrUnauthenticated()
	}

	history, err := s.history.History(ctx, username, s.policy.HistoryLimit)
	if err != nil {
		return err
	}
	if violations := s.policy.Validate(newPassword, username, history, s.hasher); len(violations) > 0 {
		return security.ErrInvalidInput(formatViolations(violations)).WithDetail("violations", violations)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(s.expiration)
	return s.users.ChangePassword(ctx, username, newHash, expiresAt, s.policy.HistoryLimit)
}

// Unlock is the administrator-only remediation for a locked account: no
// time-based self-unlock exists.
func (s *Service) Unlock(ctx context.Context, username string) error {
	return s.users.Unlock(ctx, username)
}

// RevokeTokens is the administrator-initiated counterpart to logout and
// password-change: it moves username's revocation watermark to now, so
// every access and refresh token issued before this call is treated as
// revoked by the gate's watermark check, without requiring a password
// change.
func (s *Service) RevokeTokens(ctx context.Context, username string) error {
	return s.users.SetTokensInvalidBefore(ctx, username, time.Now().UTC())
}

func formatViolations(violations []password.Violation) string {
	strs := make([]string, len(violations))
	for i, v := range violations {
		strs[i] = string(v)
	}
	return "password does not meet policy: " + strings.Join(strs, ", ")
}

func (s *Service) mintPair(username, role string) (TokenPair, error) {
	access, err := s.codec.Mint(username, role, token.Access)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Mint(username, role, token.Refresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access.Raw,
		RefreshToken: refresh.Raw,
		ExpiresIn:    int64(time.Until(access.ExpiresAt).Seconds()),
	}, nil
}

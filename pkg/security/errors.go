// Package security holds the authentication and authorization core:
// password policy, token issuance/verification, and permission
// resolution. This package owns the shared SECURITY error registry; the
// sibling packages (password, token, rbac) register no codes in it.
package security

import (
	"net/http"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("SECURITY")

var (
	CodeUnauthenticated = ErrRegistry.Register("UNAUTHENTICATED", errx.TypeUnauthenticated, http.StatusUnauthorized, "authentication required")
	CodeForbidden       = ErrRegistry.Register("FORBIDDEN", errx.TypeForbidden, http.StatusForbidden, "permission denied")
	CodeRateLimited     = ErrRegistry.Register("RATE_LIMITED", errx.TypeRateLimited, http.StatusTooManyRequests, "too many requests")
)

// ErrUnauthenticated is returned for every authentication failure. The
// public message never distinguishes no-such-user, wrong-password,
// disabled, locked, expired-token, or revoked-token — callers that need
// the specific cause for logging should wrap this with errx.Wrap and log
// the wrapped error, not surface it.
func ErrUnauthenticated() *errx.Error {
	return ErrRegistry.New(CodeUnauthenticated)
}

// ErrUnauthenticatedMsg is like ErrUnauthenticated but with a caller-chosen
// public message — used for the expired-GUEST-account case, the one
// authentication failure that does get a specific message.
func ErrUnauthenticatedMsg(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeUnauthenticated, message)
}

func ErrForbidden() *errx.Error {
	return ErrRegistry.New(CodeForbidden)
}

func ErrRateLimited() *errx.Error {
	return ErrRegistry.New(CodeRateLimited)
}

var CodeInvalidInput = ErrRegistry.Register("INVALID_INPUT", errx.TypeValidation, http.StatusBadRequest, "invalid input")

// ErrInvalidInput reports a validation failure, including password-policy
// violations — distinct from ErrUnauthenticated because it occurs on an
// authenticated channel where the specific cause is safe to report.
func ErrInvalidInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeInvalidInput, message)
}

// Package gate implements the per-request middleware chain that extracts
// the bearer token, verifies it against the Token Codec and Revocation
// Ledger, loads the authenticated principal, and enforces per-route
// permissions and auth-family rate limits. Built on gofiber/fiber/v2
// middleware.
package gate

import (
	"context"
	"strings"

	"github.com/ammonsd/activitytracking-core/pkg/kernel"
	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/security/token"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/gofiber/fiber/v2"
)

const PrincipalLocalsKey = "principal"

// UserRepository is the subset the gate needs to load a principal after
// verifying a token.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*store.User, error)
}

type RevocationRepository interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Gate struct {
	codec       *token.Codec
	users       UserRepository
	revocations RevocationRepository
	evaluator   *rbac.Evaluator
	limiter     *RateLimiter
}

func NewGate(codec *token.Codec, users UserRepository, revocations RevocationRepository, evaluator *rbac.Evaluator, limiter *RateLimiter) *Gate {
	return &Gate{codec: codec, users: users, revocations: revocations, evaluator: evaluator, limiter: limiter}
}

// Authenticate extracts the bearer token, verifies it, consults the
// revocation ledger and the password-change watermark, and loads the
// principal.
func (g *Gate) Authenticate(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		return security.ErrUnauthenticated()
	}

	claims, err := g.codec.Verify(raw)
	if err != nil {
		return security.ErrUnauthenticated()
	}
	if err := token.RequireType(claims, token.Access); err != nil {
		// SERVICE_ACCOUNT tokens behave like access tokens for the narrow
		// routes they're scoped to; application routes accept either.
		if err := token.RequireType(claims, token.ServiceAccount); err != nil {
			return security.ErrUnauthenticated()
		}
	}

	revoked, err := g.revocations.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		logx.WithError(err).Error("gate: failed to check revocation ledger")
		return security.ErrUnauthenticated()
	}
	if revoked {
		return security.ErrUnauthenticated()
	}

	u, err := g.users.FindByUsername(c.UserContext(), claims.Subject)
	if err != nil {
		return security.ErrUnauthenticated()
	}
	if !u.Enabled || u.Locked {
		return security.ErrUnauthenticated()
	}
	// Password-change watermark: any token issued before the user's last
	// password change is treated as revoked, checked here alongside the
	// per-jti ledger check.
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(u.TokensInvalidBefore) {
		return security.ErrUnauthenticated()
	}

	principal, err := g.evaluator.Principal(u.Username, u.Role, claims.ID)
	if err != nil {
		logx.WithError(err).Error("gate: failed to resolve principal permissions")
		return security.ErrUnauthenticated()
	}

	c.Locals(PrincipalLocalsKey, principal)
	return c.Next()
}

// RequirePermission returns middleware enforcing that the authenticated
// principal holds permission.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		if !principal.HasPermission(permission) {
			return security.ErrForbidden()
		}
		return c.Next()
	}
}

// RateLimitAuthRoutes returns middleware implementing a per-remote-address
// token bucket over the login/refresh/password-reset family.
func (g *Gate) RateLimitAuthRoutes(c *fiber.Ctx) error {
	if g.limiter == nil {
		return c.Next()
	}
	if !g.limiter.Allow(c.IP()) {
		return security.ErrRateLimited()
	}
	return c.Next()
}

// PrincipalFromContext retrieves the principal attached by Authenticate.
func PrincipalFromContext(c *fiber.Ctx) (kernel.Principal, bool) {
	v := c.Locals(PrincipalLocalsKey)
	if v == nil {
		return kernel.Principal{}, false
	}
	p, ok := v.(kernel.Principal)
	return p, ok
}

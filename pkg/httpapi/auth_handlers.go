// Package httpapi registers the Fiber routes over the Authentication
// Service, Expense Service, and administrative operations, and enforces
// the Request Gate's permission checks per route.
package httpapi

import (
	"strconv"

	"github.com/ammonsd/activitytracking-core/pkg/auth"
	"github.com/ammonsd/activitytracking-core/pkg/gate"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func tokenPairResponse(pair auth.TokenPair) fiber.Map {
	return fiber.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"token_type":    "Bearer",
	}
}

// RegisterAuthRoutes wires /api/auth/* against svc. The per-IP rate
// limiter is scoped to the login/refresh family only — the two routes a
// credential-stuffing or refresh-token-guessing attacker would hit
// unauthenticated. Logout and change-password sit outside the limiter;
// change-password requires a valid bearer token via g.Authenticate, while
// logout takes the token to revoke in its request body and is not behind
// g.Authenticate.
func RegisterAuthRoutes(app fiber.Router, svc *auth.Service, g *gate.Gate) {
	authGroup := app.Group("/api/auth")
	limited := authGroup.Group("", g.RateLimitAuthRoutes)

	limited.Post("/login", func(c *fiber.Ctx) error {
		var req loginRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		pair, err := svc.Login(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(tokenPairResponse(pair))
	})

	limited.Post("/refresh", func(c *fiber.Ctx) error {
		var req refreshRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		pair, err := svc.Refresh(c.UserContext(), req.RefreshToken)
		if err != nil {
			return err
		}
		return c.JSON(tokenPairResponse(pair))
	})

	authGroup.Post("/logout", func(c *fiber.Ctx) error {
		var req logoutRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		if err := svc.Logout(c.UserContext(), req.Token); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	authGroup.Post("/change-password", g.Authenticate, func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		var req changePasswordRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		if err := svc.ChangePassword(c.UserContext(), principal.Username, req.CurrentPassword, req.NewPassword); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// RegisterAdminRoutes wires the administrator-only account remediation
// endpoints: unlocking a locked account and forcing a user's tokens to be
// treated as revoked.
func RegisterAdminRoutes(app fiber.Router, svc *auth.Service, g *gate.Gate) {
	admin := app.Group("/api/admin/users", g.Authenticate, gate.RequirePermission(rbac.PermUserAdmin))

	admin.Post("/:username/unlock", func(c *fiber.Ctx) error {
		username := c.Params("username")
		if err := svc.Unlock(c.UserContext(), username); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Post("/:username/revoke-tokens", func(c *fiber.Ctx) error {
		username := c.Params("username")
		if err := svc.RevokeTokens(c.UserContext(), username); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func parseExpenseStatus(raw string) store.ExpenseStatus {
	return store.ExpenseStatus(raw)
}

// parsePagination reads 1-based page/page_size query params, the shape
// kernel.NewPaginated expects, defaulting and clamping both.
func parsePagination(c *fiber.Ctx) (page, pageSize int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.Query("page_size", "50"))
	if err != nil || pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}

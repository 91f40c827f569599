package httpapi

import (
	"github.com/ammonsd/activitytracking-core/pkg/gate"
	"github.com/ammonsd/activitytracking-core/pkg/notify"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/gofiber/fiber/v2"
)

type jenkinsEventRequest struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// RegisterJenkinsRoutes wires the one endpoint a JENKINS_SERVICE-token
// caller can hit: reporting a build or deploy event for fan-out to the
// configured admin recipient list. Authorization is JENKINS:NOTIFY, the
// permission rbac.SeedRoles grants only to RoleJenkinsService.
func RegisterJenkinsRoutes(app fiber.Router, dispatcher *notify.Dispatcher, g *gate.Gate) {
	jenkins := app.Group("/api/jenkins", g.Authenticate, gate.RequirePermission(rbac.PermJenkinsNotify))

	jenkins.Post("/events", func(c *fiber.Ctx) error {
		var req jenkinsEventRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		if req.Kind == "" || req.Subject == "" {
			return security.ErrInvalidInput("kind and subject are required")
		}
		if err := dispatcher.NotifyJenkinsEvent(c.UserContext(), req.Kind, req.Subject, req.Detail); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	})
}

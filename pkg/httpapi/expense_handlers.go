package httpapi

import (
	"strconv"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/expense"
	"github.com/ammonsd/activitytracking-core/pkg/gate"
	"github.com/ammonsd/activitytracking-core/pkg/security"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/gofiber/fiber/v2"
)

type expenseDraftRequest struct {
	ExpenseDate   string  `json:"expense_date"`
	Amount        float64 `json:"amount"`
	Client        string  `json:"client"`
	Project       string  `json:"project"`
	ExpenseType   string  `json:"expense_type"`
	PaymentMethod string  `json:"payment_method"`
	Vendor        string  `json:"vendor"`
	Description   string  `json:"description"`
	ReceiptRef    string  `json:"receipt_ref"`
}

func (r expenseDraftRequest) toDraft() (expense.Draft, error) {
	d := expense.Draft{
		Amount:        r.Amount,
		Client:        r.Client,
		Project:       r.Project,
		ExpenseType:   r.ExpenseType,
		PaymentMethod: r.PaymentMethod,
		Vendor:        r.Vendor,
		Description:   r.Description,
		ReceiptRef:    r.ReceiptRef,
	}
	if r.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", r.ExpenseDate)
		if err != nil {
			return expense.Draft{}, security.ErrInvalidInput("expense_date must be YYYY-MM-DD")
		}
		d.ExpenseDate = parsed
	}
	return d, nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func expenseResponse(e store.Expense) fiber.Map {
	resp := fiber.Map{
		"id":                e.ID,
		"owner_username":    e.OwnerUsername,
		"expense_date":      e.ExpenseDate.Format("2006-01-02"),
		"amount":            e.Amount,
		"client":            e.Client,
		"project":           e.Project,
		"expense_type":      e.ExpenseType,
		"payment_method":    e.PaymentMethod,
		"vendor":            e.Vendor,
		"description":       e.Description,
		"receipt_ref":       e.ReceiptRef,
		"status":            string(e.Status),
		"rejection_reason":  e.RejectionReason,
		"resubmitted_count": e.ResubmittedCount,
		"created_at":        e.CreatedAt,
		"updated_at":        e.UpdatedAt,
	}
	if e.SubmittedAt != nil {
		resp["submitted_at"] = *e.SubmittedAt
	}
	if e.ApprovedAt != nil {
		resp["approved_at"] = *e.ApprovedAt
	}
	if e.ApprovedBy != nil {
		resp["approved_by"] = *e.ApprovedBy
	}
	if e.ReimbursedAt != nil {
		resp["reimbursed_at"] = *e.ReimbursedAt
	}
	return resp
}

// RegisterExpenseRoutes wires /api/expenses/* behind g.Authenticate; the
// transition routes dispatch through svc.Transition so every status
// change runs through the same locked read-check-write.
func RegisterExpenseRoutes(app fiber.Router, svc *expense.Service, g *gate.Gate) {
	expenses := app.Group("/api/expenses", g.Authenticate)

	expenses.Post("/", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		var req expenseDraftRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		draft, err := req.toDraft()
		if err != nil {
			return err
		}
		e, err := svc.Create(c.UserContext(), principal, draft)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(expenseResponse(e))
	})

	expenses.Get("/", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		if !principal.HasPermission(rbac.PermExpenseRead) {
			return security.ErrForbidden()
		}
		status := parseExpenseStatus(c.Query("status"))
		page, pageSize := parsePagination(c)
		result, err := svc.List(c.UserContext(), principal, status, page, pageSize)
		if err != nil {
			return err
		}
		resp := make([]fiber.Map, len(result.Items))
		for i, e := range result.Items {
			resp[i] = expenseResponse(e)
		}
		return c.JSON(fiber.Map{"items": resp, "pagination": result.Page, "empty": result.Empty})
	})

	expenses.Get("/:id", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return security.ErrInvalidInput("id must be an integer")
		}
		e, err := svc.Get(c.UserContext(), principal, id)
		if err != nil {
			return err
		}
		return c.JSON(expenseResponse(e))
	})

	expenses.Patch("/:id", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return security.ErrInvalidInput("id must be an integer")
		}
		var req expenseDraftRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		draft, err := req.toDraft()
		if err != nil {
			return err
		}
		e, err := svc.Edit(c.UserContext(), principal, id, draft)
		if err != nil {
			return err
		}
		return c.JSON(expenseResponse(e))
	})

	expenses.Delete("/:id", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return security.ErrInvalidInput("id must be an integer")
		}
		if err := svc.Delete(c.UserContext(), principal, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	expenses.Post("/:id/submit", transitionHandler(svc, expense.EventSubmit))
	expenses.Post("/:id/resubmit", transitionHandler(svc, expense.EventResubmit))
	expenses.Post("/:id/approve", transitionHandler(svc, expense.EventApprove))
	expenses.Post("/:id/reimburse", transitionHandler(svc, expense.EventMarkReimbursed))

	expenses.Post("/:id/reject", func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return security.ErrInvalidInput("id must be an integer")
		}
		var req rejectRequest
		if err := c.BodyParser(&req); err != nil {
			return security.ErrInvalidInput("malformed request body")
		}
		e, err := svc.Transition(c.UserContext(), principal, id, expense.EventReject, expense.TransitionInput{RejectionReason: req.Reason})
		if err != nil {
			return err
		}
		return c.JSON(expenseResponse(e))
	})
}

func transitionHandler(svc *expense.Service, event expense.Event) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := gate.PrincipalFromContext(c)
		if !ok {
			return security.ErrUnauthenticated()
		}
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return security.ErrInvalidInput("id must be an integer")
		}
		e, err := svc.Transition(c.UserContext(), principal, id, event, expense.TransitionInput{})
		if err != nil {
			return err
		}
		return c.JSON(expenseResponse(e))
	}
}

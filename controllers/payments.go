package controllers

import (
	"context"

	"educenter_go/services"
	"educenter_go/services/access"

	"github.com/gofiber/fiber/v2"
)

// PaymentController covers student, teacher and staff payments and teacher
// wallets.
type PaymentController struct {
	finance *services.FinanceService
}

func NewPaymentController(finance *services.FinanceService) *PaymentController {
	return &PaymentController{finance: finance}
}

type transition func(ctx context.Context, scope access.Scope, actorID, id uint) (interface{}, error)

// move runs a status transition on the payment named by :id.
func move(c *fiber.Ctx, fn transition) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment ID")
	}
	scope, actorID := caller(c)
	out, err := fn(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

// rejectReason reads an optional {"reason": "..."} body.
func rejectReason(c *fiber.Ctx) (string, error) {
	var req rejectRequest
	if len(c.Body()) == 0 {
		return "", nil
	}
	if err := bind(c, &req); err != nil {
		return "", err
	}
	return req.Reason, nil
}

// CreateStudentPayment handles POST /payments/students.
func (pc *PaymentController) CreateStudentPayment(c *fiber.Ctx) error {
	var in services.StudentPaymentInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	p, err := pc.finance.CreateStudentPayment(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": p})
}

func (pc *PaymentController) ApproveStudentPayment(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.ApproveStudentPayment(ctx, s, actor, id)
	})
}

func (pc *PaymentController) RejectStudentPayment(c *fiber.Ctx) error {
	reason, err := rejectReason(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.RejectStudentPayment(ctx, s, actor, id, reason)
	})
}

// CreateTeacherPayment handles POST /payments/teachers.
func (pc *PaymentController) CreateTeacherPayment(c *fiber.Ctx) error {
	var in services.TeacherPaymentInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	p, err := pc.finance.CreateTeacherPayment(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": p})
}

func (pc *PaymentController) ApproveTeacherPayment(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.ApproveTeacherPayment(ctx, s, actor, id)
	})
}

func (pc *PaymentController) RejectTeacherPayment(c *fiber.Ctx) error {
	reason, err := rejectReason(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.RejectTeacherPayment(ctx, s, actor, id, reason)
	})
}

func (pc *PaymentController) MarkTeacherPaymentPaid(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.MarkTeacherPaymentPaid(ctx, s, actor, id)
	})
}

// CreateStaffPayment handles POST /payments/staff.
func (pc *PaymentController) CreateStaffPayment(c *fiber.Ctx) error {
	var in services.StaffPaymentInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	p, err := pc.finance.CreateStaffPayment(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": p})
}

func (pc *PaymentController) ApproveStaffPayment(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.ApproveStaffPayment(ctx, s, actor, id)
	})
}

func (pc *PaymentController) RejectStaffPayment(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.RejectStaffPayment(ctx, s, actor, id)
	})
}

func (pc *PaymentController) MarkStaffPaymentPaid(c *fiber.Ctx) error {
	return move(c, func(ctx context.Context, s access.Scope, actor, id uint) (interface{}, error) {
		return pc.finance.MarkStaffPaymentPaid(ctx, s, actor, id)
	})
}

// RecomputeWallet handles POST /wallets/teachers/:teacher_id/recompute.
func (pc *PaymentController) RecomputeWallet(c *fiber.Ctx) error {
	teacherID, ok := paramID(c, "teacher_id")
	if !ok {
		return badRequest(c, "Invalid teacher ID")
	}
	scope, _ := caller(c)
	w, err := pc.finance.RecomputeWallet(c.UserContext(), scope, teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": w})
}

// ApplyDiscount handles POST /payments/discounts.
func (pc *PaymentController) ApplyDiscount(c *fiber.Ctx) error {
	var in services.DiscountInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	d, err := pc.finance.ApplyDiscount(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Discount applied", "data": d})
}

// GenerateReport handles POST /finance-reports.
func (pc *PaymentController) GenerateReport(c *fiber.Ctx) error {
	var in services.FinanceReportInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	r, err := pc.finance.GenerateFinanceReport(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Report generated", "data": r})
}

package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type LoyaltyController struct {
	loyalty *services.LoyaltyService
}

func NewLoyaltyController(loyalty *services.LoyaltyService) *LoyaltyController {
	return &LoyaltyController{loyalty: loyalty}
}

type enrollRequest struct {
	LoyaltyBranchID uint `json:"loyalty_branch_id" validate:"required"`
	UserID          uint `json:"user_id" validate:"required"`
}

type pointsRequest struct {
	Points float64 `json:"points" validate:"required,gt=0"`
}

// CreateBranch handles POST /loyalty/branches.
func (lc *LoyaltyController) CreateBranch(c *fiber.Ctx) error {
	var in services.LoyaltyBranchInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	lb, err := lc.loyalty.CreateLoyaltyBranch(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": lb})
}

// Enroll handles POST /loyalty/points.
func (lc *LoyaltyController) Enroll(c *fiber.Ctx) error {
	var req enrollRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	lp, err := lc.loyalty.Enroll(c.UserContext(), scope, actorID, req.LoyaltyBranchID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": lp})
}

func (lc *LoyaltyController) points(c *fiber.Ctx, redeem bool) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid loyalty points ID")
	}
	var req pointsRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	op := lc.loyalty.AddPoints
	if redeem {
		op = lc.loyalty.RedeemPoints
	}
	lp, err := op(c.UserContext(), scope, actorID, id, req.Points)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": lp})
}

// AddPoints handles POST /loyalty/points/:id/add.
func (lc *LoyaltyController) AddPoints(c *fiber.Ctx) error { return lc.points(c, false) }

// RedeemPoints handles POST /loyalty/points/:id/redeem.
func (lc *LoyaltyController) RedeemPoints(c *fiber.Ctx) error { return lc.points(c, true) }

// ToggleStatus handles POST /loyalty/branches/:id/toggle.
func (lc *LoyaltyController) ToggleStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid loyalty program ID")
	}
	scope, actorID := caller(c)
	lb, err := lc.loyalty.ToggleStatus(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": lb})
}

// Statistics handles GET /loyalty/branches/:id/statistics.
func (lc *LoyaltyController) Statistics(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid loyalty program ID")
	}
	scope, _ := caller(c)
	stats, err := lc.loyalty.Statistics(c.UserContext(), scope, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": stats})
}

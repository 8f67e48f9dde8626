package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

// AdminController covers account blocking, organization freezing and the
// debtors report.
type AdminController struct {
	admin   *services.AdminService
	finance *services.FinanceService
	reports *services.ReportService
}

func NewAdminController(admin *services.AdminService, finance *services.FinanceService, reports *services.ReportService) *AdminController {
	return &AdminController{admin: admin, finance: finance, reports: reports}
}

func (ac *AdminController) setBlocked(c *fiber.Ctx, blocked bool) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	scope, actorID := caller(c)
	user, err := ac.admin.SetStudentBlocked(c.UserContext(), scope, actorID, id, blocked)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user_id": user.ID, "is_blocked": user.IsBlocked}})
}

// BlockStudent handles POST /students/:id/block.
func (ac *AdminController) BlockStudent(c *fiber.Ctx) error { return ac.setBlocked(c, true) }

// UnblockStudent handles POST /students/:id/unblock.
func (ac *AdminController) UnblockStudent(c *fiber.Ctx) error { return ac.setBlocked(c, false) }

// FreezeOrganization handles POST /superadmin/organizations/:id/freeze.
func (ac *AdminController) FreezeOrganization(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid organization ID")
	}
	scope, actorID := caller(c)
	org, err := ac.admin.FreezeOrganization(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": org})
}

// UnfreezeOrganization handles POST /superadmin/organizations/:id/unfreeze.
func (ac *AdminController) UnfreezeOrganization(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid organization ID")
	}
	scope, actorID := caller(c)
	org, err := ac.admin.UnfreezeOrganization(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": org})
}

// Debtors handles GET /reports/debtors, as JSON or ?format=xlsx.
func (ac *AdminController) Debtors(c *fiber.Ctx) error {
	scope, _ := caller(c)
	if c.Query("format") == "xlsx" {
		buf, err := ac.reports.DebtorsXLSX(c.UserContext(), scope)
		if err != nil {
			return respondError(c, err)
		}
		return sendXLSX(c, "debtors.xlsx", buf.Bytes())
	}

	students, err := ac.finance.Debtors(c.UserContext(), scope)
	if err != nil {
		return respondError(c, err)
	}
	var total float64
	for _, s := range students {
		total += s.TotalDebt
	}
	return c.JSON(fiber.Map{"data": students, "count": len(students), "total_debt": total})
}

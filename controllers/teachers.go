package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type TeacherController struct {
	directory *services.DirectoryService
	stats     *services.StatisticsService
}

func NewTeacherController(directory *services.DirectoryService, stats *services.StatisticsService) *TeacherController {
	return &TeacherController{directory: directory, stats: stats}
}

// CreateTeacher handles POST /teachers.
func (tc *TeacherController) CreateTeacher(c *fiber.Ctx) error {
	var in services.TeacherInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	teacher, err := tc.directory.CreateTeacher(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Teacher created successfully",
		"data":    teacher,
	})
}

// UpdateTeacher handles PUT /teachers/:id.
func (tc *TeacherController) UpdateTeacher(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid teacher ID")
	}
	var in services.TeacherUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	teacher, err := tc.directory.UpdateTeacher(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Teacher updated successfully", "data": teacher})
}

// Portfolio handles GET /teachers/:id/portfolio.
func (tc *TeacherController) Portfolio(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid teacher ID")
	}
	scope, _ := caller(c)

	p, err := tc.stats.TeacherPortfolio(c.UserContext(), scope, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": p})
}

// UpdatePortfolio handles PUT /teachers/:id/portfolio.
func (tc *TeacherController) UpdatePortfolio(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid teacher ID")
	}
	var in services.PortfolioInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	p, err := tc.stats.UpdatePortfolio(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Portfolio updated", "data": p})
}

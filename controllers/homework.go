package controllers

import (
	"time"

	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type HomeworkController struct {
	schedule *services.ScheduleService
	stats    *services.StatisticsService
}

func NewHomeworkController(schedule *services.ScheduleService, stats *services.StatisticsService) *HomeworkController {
	return &HomeworkController{schedule: schedule, stats: stats}
}

// CreateHomework handles POST /homework.
func (hc *HomeworkController) CreateHomework(c *fiber.Ctx) error {
	var in services.HomeworkInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	hw, err := hc.schedule.CreateHomework(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Homework assigned", "data": hw})
}

// UpdateHomework handles PUT /homework/:id.
func (hc *HomeworkController) UpdateHomework(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid homework ID")
	}
	var in services.HomeworkUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	hw, err := hc.schedule.UpdateHomework(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Homework updated", "data": hw})
}

// Summary handles GET /homework/summary: per-homework completion counts
// taken from the group's attendance homework marks.
func (hc *HomeworkController) Summary(c *fiber.Ctx) error {
	scope, _ := caller(c)
	rows, err := hc.stats.HomeworkSummary(c.UserContext(), scope, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": rows, "total": len(rows)})
}

package controllers

import (
	"strconv"
	"time"

	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type StatisticsController struct {
	stats *services.StatisticsService
}

func NewStatisticsController(stats *services.StatisticsService) *StatisticsController {
	return &StatisticsController{stats: stats}
}

// positiveQuery reads an integer query parameter, falling back to def.
func positiveQuery(c *fiber.Ctx, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (sc *StatisticsController) Students(c *fiber.Ctx) error {
	scope, _ := caller(c)
	out, err := sc.stats.StudentStats(c.UserContext(), scope)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

func (sc *StatisticsController) Teachers(c *fiber.Ctx) error {
	scope, _ := caller(c)
	out, err := sc.stats.TeacherStats(c.UserContext(), scope)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

// Attendance handles GET /statistics/attendance?days=30.
func (sc *StatisticsController) Attendance(c *fiber.Ctx) error {
	days, ok := positiveQuery(c, "days", 30)
	if !ok {
		return badRequest(c, "days must be a positive integer")
	}
	scope, _ := caller(c)
	out, err := sc.stats.AttendanceStats(c.UserContext(), scope, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

// Finance handles GET /statistics/finance?days=30.
func (sc *StatisticsController) Finance(c *fiber.Ctx) error {
	days, ok := positiveQuery(c, "days", 30)
	if !ok {
		return badRequest(c, "days must be a positive integer")
	}
	scope, _ := caller(c)
	now := time.Now()
	out, err := sc.stats.FinancialStats(c.UserContext(), scope, now.AddDate(0, 0, -days), now)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

func (sc *StatisticsController) Exams(c *fiber.Ctx) error {
	scope, _ := caller(c)
	out, err := sc.stats.ExamStats(c.UserContext(), scope)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

func (sc *StatisticsController) Groups(c *fiber.Ctx) error {
	scope, _ := caller(c)
	out, err := sc.stats.GroupStats(c.UserContext(), scope)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out, "total": len(out)})
}

// Dashboard handles GET /dashboard?days=30&months=6.
func (sc *StatisticsController) Dashboard(c *fiber.Ctx) error {
	days, ok := positiveQuery(c, "days", 30)
	if !ok {
		return badRequest(c, "days must be a positive integer")
	}
	months, ok := positiveQuery(c, "months", 6)
	if !ok || months > 24 {
		return badRequest(c, "months must be between 1 and 24")
	}
	scope, _ := caller(c)
	out, err := sc.stats.Dashboard(c.UserContext(), scope, days, months, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": out})
}

package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

// LessonController schedules, reschedules and cancels lessons.
type LessonController struct {
	schedule *services.ScheduleService
}

func NewLessonController(schedule *services.ScheduleService) *LessonController {
	return &LessonController{schedule: schedule}
}

type cancelLessonRequest struct {
	Reason string `json:"reason" validate:"notblank"`
}

type teacherLateRequest struct {
	Minutes int `json:"minutes" validate:"required,gt=0"`
}

// CreateLesson handles POST /lessons.
func (lc *LessonController) CreateLesson(c *fiber.Ctx) error {
	var in services.LessonInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	lesson, err := lc.schedule.CreateLesson(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Lesson created", "data": lesson})
}

// UpdateLesson handles PUT /lessons/:id.
func (lc *LessonController) UpdateLesson(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson ID")
	}
	var in services.LessonUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	lesson, err := lc.schedule.UpdateLesson(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lesson updated", "data": lesson})
}

// Cancel handles POST /lessons/:id/cancel.
func (lc *LessonController) Cancel(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson ID")
	}
	var req cancelLessonRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	lesson, alert, err := lc.schedule.CancelLesson(c.UserContext(), scope, actorID, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lesson cancelled", "data": lesson, "alert": alert})
}

// TeacherLate handles POST /lessons/:id/teacher-late.
func (lc *LessonController) TeacherLate(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson ID")
	}
	var req teacherLateRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	alert, err := lc.schedule.ReportTeacherLate(c.UserContext(), scope, actorID, id, req.Minutes)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Late arrival reported", "alert": alert})
}

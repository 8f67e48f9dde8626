package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

// GroupController handles groups, their membership and teacher changes.
type GroupController struct {
	enrollment *services.EnrollmentService
	schedule   *services.ScheduleService
}

func NewGroupController(enrollment *services.EnrollmentService, schedule *services.ScheduleService) *GroupController {
	return &GroupController{enrollment: enrollment, schedule: schedule}
}

type addStudentRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
}

type reassignTeacherRequest struct {
	TeacherID uint `json:"teacher_id" validate:"required"`
}

// CreateGroup handles POST /groups.
func (gc *GroupController) CreateGroup(c *fiber.Ctx) error {
	var in services.GroupInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	group, err := gc.schedule.CreateGroup(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Group created", "data": group})
}

// UpdateGroup handles PUT /groups/:id.
func (gc *GroupController) UpdateGroup(c *fiber.Ctx) error {
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid group ID")
	}
	var in services.GroupUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	group, err := gc.schedule.UpdateGroup(c.UserContext(), scope, actorID, groupID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Group updated", "data": group})
}

// AddStudent handles POST /groups/:id/students.
func (gc *GroupController) AddStudent(c *fiber.Ctx) error {
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid group ID")
	}
	var req addStudentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	count, err := gc.enrollment.AddStudent(c.UserContext(), scope, actorID, groupID, req.StudentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Student added to group",
		"student_count": count,
	})
}

// RemoveStudent handles DELETE /groups/:id/students/:student_id.
func (gc *GroupController) RemoveStudent(c *fiber.Ctx) error {
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid group ID")
	}
	studentID, ok := paramID(c, "student_id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	scope, actorID := caller(c)

	if err := gc.enrollment.RemoveStudent(c.UserContext(), scope, actorID, groupID, studentID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Student removed from group"})
}

// Transfer handles POST /groups/transfer.
func (gc *GroupController) Transfer(c *fiber.Ctx) error {
	var in services.TransferInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	alert, err := gc.enrollment.TransferStudent(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Student transferred", "alert": alert})
}

// ReassignTeacher handles PUT /groups/:id/teacher.
func (gc *GroupController) ReassignTeacher(c *fiber.Ctx) error {
	groupID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid group ID")
	}
	var req reassignTeacherRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	group, alert, err := gc.enrollment.ReassignTeacher(c.UserContext(), scope, actorID, groupID, req.TeacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": group, "alert": alert})
}

package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct {
	directory *services.DirectoryService
}

func NewStudentController(directory *services.DirectoryService) *StudentController {
	return &StudentController{directory: directory}
}

// CreateStudent handles POST /students. The account and the profile are
// created together.
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var in services.StudentInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	student, err := sc.directory.CreateStudent(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student created successfully",
		"data":    student,
	})
}

// UpdateStudent handles PUT /students/:id.
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid student ID")
	}
	var in services.StudentUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	student, err := sc.directory.UpdateStudent(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Student updated successfully", "data": student})
}

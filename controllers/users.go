package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

// UserController creates and edits staff accounts.
type UserController struct {
	directory *services.DirectoryService
}

func NewUserController(directory *services.DirectoryService) *UserController {
	return &UserController{directory: directory}
}

// CreateUser handles POST /users.
func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var in services.UserInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	user, err := uc.directory.CreateUser(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"data":    user,
	})
}

// UpdateUser handles PUT /users/:id.
func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	var in services.UserUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	user, err := uc.directory.UpdateUser(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "User updated successfully", "data": user})
}

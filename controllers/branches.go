package controllers

import (
	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type BranchController struct {
	directory *services.DirectoryService
}

func NewBranchController(directory *services.DirectoryService) *BranchController {
	return &BranchController{directory: directory}
}

// CreateBranch handles POST /branches.
func (bc *BranchController) CreateBranch(c *fiber.Ctx) error {
	var in services.BranchInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	branch, err := bc.directory.CreateBranch(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Branch created successfully",
		"data":    branch,
	})
}

// UpdateBranch handles PUT /branches/:id.
func (bc *BranchController) UpdateBranch(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid branch ID")
	}
	var in services.BranchUpdate
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	branch, err := bc.directory.UpdateBranch(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Branch updated successfully", "data": branch})
}

// CloseBranch handles POST /branches/:id/close.
func (bc *BranchController) CloseBranch(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid branch ID")
	}
	scope, actorID := caller(c)

	branch, err := bc.directory.CloseBranch(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Branch closed", "data": branch})
}

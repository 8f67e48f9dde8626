package controllers

import (
	"strconv"

	"educenter_go/middleware"
	"educenter_go/services"
	"educenter_go/services/access"
	"educenter_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

var kindStatus = map[services.ErrorKind]int{
	services.KindMalformed:    fiber.StatusBadRequest,
	services.KindInvalidState: fiber.StatusBadRequest,
	services.KindNotFound:     fiber.StatusNotFound,
	services.KindScopeDenied:  fiber.StatusForbidden,
	services.KindConflict:     fiber.StatusConflict,
}

// reportServerError forwards unclassified failures to the error tracker.
var reportServerError = func(c *fiber.Ctx, err error) {
	rollbar.Error(err, map[string]interface{}{"path": c.Path(), "method": c.Method()})
}

// respondError writes a workflow error as {"error": message}. Anything that
// is not a classified workflow error is logged and hidden behind a 500.
func respondError(c *fiber.Ctx, err error) error {
	if status, ok := kindStatus[services.KindOf(err)]; ok {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("request failed")
	reportServerError(c, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// bind parses the body into v and validates it.
func bind(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return utils.ValidateStruct(v)
}

// paramID reads a positive integer route parameter.
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// caller returns the request's scope and the acting user id.
func caller(c *fiber.Ctx) (access.Scope, uint) {
	var id uint
	if u, err := middleware.GetCurrentUser(c); err == nil {
		id = u.ID
	}
	return middleware.CurrentScope(c), id
}

func pagination(c *fiber.Ctx) (page, perPage int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	perPage, _ = strconv.Atoi(c.Query("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage
}

func pageMeta(page, perPage int, total int64) fiber.Map {
	pages := (total + int64(perPage) - 1) / int64(perPage)
	return fiber.Map{
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": pages,
	}
}

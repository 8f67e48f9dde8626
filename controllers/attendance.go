package controllers

import (
	"fmt"
	"regexp"
	"time"

	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// AttendanceController exposes attendance submission, correction and
// export.
type AttendanceController struct {
	attendance *services.AttendanceService
	reports    *services.ReportService
}

func NewAttendanceController(attendance *services.AttendanceService, reports *services.ReportService) *AttendanceController {
	return &AttendanceController{attendance: attendance, reports: reports}
}

// Submit handles POST /attendance/submit.
func (ac *AttendanceController) Submit(c *fiber.Ctx) error {
	var in services.SubmitAttendanceInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	res, err := ac.attendance.Submit(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Attendance submitted",
		"created": res.Created,
		"total":   res.Total,
	})
}

// SelectAllPresent handles POST /lessons/:id/select-all-present.
func (ac *AttendanceController) SelectAllPresent(c *fiber.Ctx) error {
	lessonID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson ID")
	}
	scope, actorID := caller(c)

	n, err := ac.attendance.SelectAllPresent(c.UserContext(), scope, actorID, lessonID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "All students marked present", "marked": n})
}

// Pending handles GET /attendance/pending: today's started lessons whose
// attendance is incomplete.
func (ac *AttendanceController) Pending(c *fiber.Ctx) error {
	scope, _ := caller(c)
	lessons, err := ac.attendance.PendingSubmissions(c.UserContext(), scope, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": lessons, "total": len(lessons)})
}

// Correct handles POST /attendance/:id/correct.
func (ac *AttendanceController) Correct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid attendance ID")
	}
	var in services.CorrectionInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	correction, err := ac.attendance.Correct(c.UserContext(), scope, actorID, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": correction})
}

// Export handles GET /lessons/:id/attendance/export.
func (ac *AttendanceController) Export(c *fiber.Ctx) error {
	lessonID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson ID")
	}
	scope, _ := caller(c)

	buf, name, err := ac.reports.LessonAttendanceXLSX(c.UserContext(), scope, lessonID)
	if err != nil {
		return respondError(c, err)
	}
	return sendXLSX(c, name, buf.Bytes())
}

func sendXLSX(c *fiber.Ctx, name string, body []byte) error {
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, unsafeFilename.ReplaceAllString(name, "_")))
	return c.Send(body)
}

package controllers

import (
	"strings"

	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
)

type ExamController struct {
	exams *services.ExamService
}

func NewExamController(exams *services.ExamService) *ExamController {
	return &ExamController{exams: exams}
}

type importRequest struct {
	Results []services.ResultRow `json:"results" validate:"required,min=1"`
}

// Create handles POST /exams.
func (ec *ExamController) Create(c *fiber.Ctx) error {
	var in services.ExamInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)
	exam, err := ec.exams.CreateExam(c.UserContext(), scope, actorID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": exam})
}

// ImportResults handles POST /exams/:id/results/import. The body is either
// {"results": [...]} or a multipart "file" in csv or xlsx format.
func (ec *ExamController) ImportResults(c *fiber.Ctx) error {
	examID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid exam ID")
	}

	var rows []services.ResultRow
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "File is required")
		}
		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "Failed to open file")
		}
		defer f.Close()
		if rows, err = services.ParseResultsFile(fh.Filename, f); err != nil {
			return respondError(c, err)
		}
	} else {
		var req importRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
		rows = req.Results
	}

	scope, actorID := caller(c)
	summary, err := ec.exams.ImportResults(c.UserContext(), scope, actorID, examID, rows)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": summary})
}

// ResultsTemplate handles GET /exams/results-template.
func (ec *ExamController) ResultsTemplate(c *fiber.Ctx) error {
	buf, err := services.ResultsTemplate()
	if err != nil {
		return respondError(c, err)
	}
	return sendXLSX(c, "exam_results_template.xlsx", buf.Bytes())
}

// Statistics handles GET /exams/:id/statistics.
func (ec *ExamController) Statistics(c *fiber.Ctx) error {
	examID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid exam ID")
	}
	scope, _ := caller(c)
	stats, err := ec.exams.Statistics(c.UserContext(), scope, examID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": stats})
}

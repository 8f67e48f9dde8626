package controllers

import (
	"mime/multipart"
	"strings"

	"educenter_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Uploader stores an uploaded file and returns its URL.
type Uploader interface {
	UploadFile(file *multipart.FileHeader, folder string, userID uint) (string, error)
	DeleteFile(fileURL string) error
}

type DocumentController struct {
	approvals *services.ApprovalService
	uploader  Uploader
}

// NewDocumentController builds the controller. uploader may be nil, in which
// case only JSON submissions with a file_url are accepted.
func NewDocumentController(approvals *services.ApprovalService, uploader Uploader) *DocumentController {
	return &DocumentController{approvals: approvals, uploader: uploader}
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// Submit handles POST /documents as JSON or multipart with a "file" part.
func (dc *DocumentController) Submit(c *fiber.Ctx) error {
	var in services.DocumentInput
	if err := bind(c, &in); err != nil {
		return badRequest(c, err.Error())
	}
	scope, actorID := caller(c)

	uploaded := ""
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err == nil {
			if dc.uploader == nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "File storage is not configured",
				})
			}
			url, err := dc.uploader.UploadFile(file, "documents", actorID)
			if err != nil {
				return badRequest(c, err.Error())
			}
			in.FileURL, uploaded = url, url
		}
	}

	doc, err := dc.approvals.SubmitDocument(c.UserContext(), scope, actorID, in)
	if err != nil {
		if uploaded != "" {
			if derr := dc.uploader.DeleteFile(uploaded); derr != nil {
				logrus.WithError(derr).WithField("url", uploaded).Warn("Failed to remove orphaned upload")
			}
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

// Approve handles POST /documents/:id/approve.
func (dc *DocumentController) Approve(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid document ID")
	}
	scope, actorID := caller(c)
	doc, err := dc.approvals.ApproveDocument(c.UserContext(), scope, actorID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": doc})
}

// Reject handles POST /documents/:id/reject.
func (dc *DocumentController) Reject(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid document ID")
	}
	var req rejectRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	scope, actorID := caller(c)
	doc, err := dc.approvals.RejectDocument(c.UserContext(), scope, actorID, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": doc})
}

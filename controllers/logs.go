package controllers

import (
	"time"

	"educenter_go/models"
	"educenter_go/services"
	"educenter_go/services/access"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LogController struct {
	db       *gorm.DB
	archives *services.LogArchiveService
}

func NewLogController(db *gorm.DB, archives *services.LogArchiveService) *LogController {
	return &LogController{db: db, archives: archives}
}

// GetLogs returns paged activity logs of the users the caller can see.
// Filters: user_id, action, resource, start_date, end_date (YYYY-MM-DD).
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	scope, _ := caller(c)
	page, perPage := pagination(c)

	query := lc.db.WithContext(c.UserContext()).Model(&models.ActivityLog{})
	if !scope.IsGlobal() {
		visible := lc.db.Model(&models.User{}).Select("users.id").Scopes(access.Apply(access.EntityUser, scope))
		query = query.Where("activity_logs.user_id IN (?)", visible)
	}

	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("activity_logs.user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("activity_logs.action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("activity_logs.resource = ?", resource)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if d, err := time.Parse("2006-01-02", startDate); err == nil {
			query = query.Where("activity_logs.created_at >= ?", d)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if d, err := time.Parse("2006-01-02", endDate); err == nil {
			query = query.Where("activity_logs.created_at < ?", d.Add(24*time.Hour))
		}
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return respondError(c, err)
	}

	var logs []models.ActivityLog
	if err := query.Preload("User").
		Order("activity_logs.created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&logs).Error; err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"data":       logs,
		"pagination": pageMeta(page, perPage, total),
	})
}

// FlushCachedLogs handles POST /logs/flush-cache.
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	n, err := lc.archives.FlushCachedLogs(c.UserContext())
	if err != nil {
		logrus.WithError(err).Warn("manual log flush failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Log cache is unavailable",
		})
	}
	return c.JSON(fiber.Map{"message": "Cached logs flushed", "flushed": n})
}

// GetArchives handles GET /logs/archives.
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archives.Archives(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": archives})
}

// DownloadArchive handles GET /logs/archives/:id/download.
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid archive ID")
	}
	body, name, err := lc.archives.OpenArchive(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+unsafeFilename.ReplaceAllString(name, "_")+`"`)
	return c.SendStream(body)
}

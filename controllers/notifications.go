package controllers

import (
	"time"

	"educenter_go/models"
	"educenter_go/services"
	"educenter_go/services/access"
	"educenter_go/services/notifications"
	"educenter_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// NotificationController serves the caller's own inbox and lets managers
// notify users inside their scope.
type NotificationController struct {
	db     *gorm.DB
	notify *notifications.Service
}

func NewNotificationController(db *gorm.DB, notify *notifications.Service) *NotificationController {
	return &NotificationController{db: db, notify: notify}
}

type sendNotificationRequest struct {
	UserIDs  []uint      `json:"user_ids" validate:"required,min=1"`
	Title    string      `json:"title" validate:"required,notblank"`
	Message  string      `json:"message" validate:"required,notblank"`
	Type     string      `json:"type" validate:"omitempty,oneof=info warning error success"`
	Channels []string    `json:"channels"`
	Data     interface{} `json:"data"`
}

// column names in map conditions are quoted per dialect; read is reserved in MySQL
var unread = map[string]interface{}{"read": false}

func (nc *NotificationController) inbox(c *fiber.Ctx) *gorm.DB {
	_, userID := caller(c)
	return nc.db.WithContext(c.UserContext()).Model(&models.Notification{}).Where("user_id = ?", userID)
}

// GetNotifications handles GET /notifications. ?unread=true limits to unread.
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	page, perPage := pagination(c)
	query := nc.inbox(c)
	if c.Query("unread") == "true" {
		query = query.Where(unread)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return respondError(c, err)
	}

	var rows []models.Notification
	if err := query.Preload("User.Branch").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&rows).Error; err != nil {
		return respondError(c, err)
	}

	out := make([]utils.NotificationDTO, 0, len(rows))
	for _, n := range rows {
		out = append(out, utils.ToNotificationDTO(n))
	}
	return c.JSON(fiber.Map{"data": out, "pagination": pageMeta(page, perPage, total)})
}

// GetNotification handles GET /notifications/:id.
func (nc *NotificationController) GetNotification(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification ID")
	}
	var n models.Notification
	if err := nc.inbox(c).Preload("User.Branch").First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, services.NotFoundf("Notification not found"))
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": utils.ToNotificationDTO(n)})
}

// MarkAsRead handles PATCH /notifications/:id/read.
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification ID")
	}
	res := nc.inbox(c).Where("id = ?", id).Updates(map[string]interface{}{
		"read":    true,
		"read_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return respondError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return respondError(c, services.NotFoundf("Notification not found"))
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead handles PATCH /notifications/mark-all-read.
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	res := nc.inbox(c).Where(unread).Updates(map[string]interface{}{
		"read":    true,
		"read_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return respondError(c, res.Error)
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read", "updated": res.RowsAffected})
}

// DeleteNotification handles DELETE /notifications/:id.
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid notification ID")
	}
	_, userID := caller(c)
	res := nc.db.WithContext(c.UserContext()).Where("user_id = ?", userID).Delete(&models.Notification{}, id)
	if res.Error != nil {
		return respondError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return respondError(c, services.NotFoundf("Notification not found"))
	}
	return c.JSON(fiber.Map{"message": "Notification deleted"})
}

// GetUnreadCount handles GET /notifications/unread-count.
func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	var count int64
	if err := nc.inbox(c).Where(unread).Count(&count).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": count})
}

// CreateNotification handles POST /notifications. Every recipient must be
// visible to the caller.
func (nc *NotificationController) CreateNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	scope, _ := caller(c)

	var visible []uint
	if err := nc.db.WithContext(c.UserContext()).Model(&models.User{}).
		Scopes(access.Apply(access.EntityUser, scope)).
		Where("users.id IN ?", req.UserIDs).
		Pluck("users.id", &visible).Error; err != nil {
		return respondError(c, err)
	}
	if len(visible) != len(uniqueIDs(req.UserIDs)) {
		return respondError(c, services.Deniedf("one or more recipients are outside your scope"))
	}

	typ := req.Type
	if typ == "" {
		typ = "info"
	}
	payload := notifications.Queued(utils.SanitizeString(req.Title), utils.SanitizeString(req.Message), typ, req.Data, req.Channels...)
	if err := nc.notify.EnqueueOrCreate(c.UserContext(), visible, payload); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Notification sent",
		"recipients": len(visible),
	})
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

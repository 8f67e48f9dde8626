package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"educenter_go/models"
	"educenter_go/services/line"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GroupDirectory resolves LINE group names.
type GroupDirectory interface {
	Enabled() bool
	GroupName(groupID string) (string, error)
}

// LineWebhookHandler records the chat groups the bot joins and leaves so
// branch alerts can be pushed to them.
type LineWebhookHandler struct {
	db      *gorm.DB
	groups  GroupDirectory
	matcher *line.Matcher
	secret  string
}

func NewLineWebhookHandler(db *gorm.DB, groups GroupDirectory, secret string) *LineWebhookHandler {
	return &LineWebhookHandler{db: db, groups: groups, matcher: line.NewMatcher(db), secret: secret}
}

// Handle verifies the signature, answers 200 right away and processes the
// events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.groups == nil || !h.groups.Enabled() {
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	// fiber reuses the body buffer after the handler returns.
	body := append([]byte(nil), c.Body()...)
	if !validateSignature(h.secret, body, signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	go h.process(body)
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) process(body []byte) {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		logrus.WithError(err).Error("Failed to parse LINE webhook")
		return
	}

	joined := false
	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.GroupID == "" {
			continue
		}
		switch event.Type {
		case linebot.EventTypeJoin:
			if err := h.joined(event.Source.GroupID); err != nil {
				logrus.WithError(err).WithField("group_id", event.Source.GroupID).Error("Failed to record LINE group join")
				continue
			}
			joined = true
		case linebot.EventTypeLeave:
			if err := h.left(event.Source.GroupID); err != nil {
				logrus.WithError(err).WithField("group_id", event.Source.GroupID).Error("Failed to record LINE group leave")
			}
		}
	}

	if joined {
		if _, err := h.matcher.MatchBranches(); err != nil {
			logrus.WithError(err).Error("LINE group matching failed")
		}
	}
}

func (h *LineWebhookHandler) joined(groupID string) error {
	name, err := h.groups.GroupName(groupID)
	if err != nil {
		return err
	}

	var lg models.LineGroup
	err = h.db.Where("group_id = ?", groupID).First(&lg).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	lg.GroupID = groupID
	lg.GroupName = name
	lg.LastJoinedAt = time.Now()
	lg.LastLeftAt = nil
	if lg.ID == 0 {
		if err := h.db.Create(&lg).Error; err != nil {
			return err
		}
	}
	// IsActive has a default, so it is always written explicitly.
	err = h.db.Model(&models.LineGroup{}).Where("id = ?", lg.ID).Updates(map[string]interface{}{
		"group_name":     lg.GroupName,
		"is_active":      true,
		"last_joined_at": lg.LastJoinedAt,
		"last_left_at":   nil,
	}).Error
	if err == nil {
		logrus.WithFields(logrus.Fields{"group_id": groupID, "group_name": name}).Info("Bot joined LINE group")
	}
	return err
}

func (h *LineWebhookHandler) left(groupID string) error {
	res := h.db.Model(&models.LineGroup{}).Where("group_id = ?", groupID).Updates(map[string]interface{}{
		"is_active":    false,
		"last_left_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		logrus.WithField("group_id", groupID).Warn("Leave event for unknown LINE group")
	}
	return nil
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(computeSignature(secret, body)))
}

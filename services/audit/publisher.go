package audit

import (
	"context"
	"fmt"
	"strings"

	"educenter_go/models"
	"educenter_go/services/line"
	"educenter_go/services/notifications"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier is the part of notifications.Service the publisher needs.
type Notifier interface {
	EnqueueOrCreate(ctx context.Context, userIDs []uint, n notifications.Payload) error
}

// LinePusher is the part of line.Messenger the publisher needs.
type LinePusher interface {
	Enabled() bool
	PushText(groupID, message string) error
}

var alertRecipientRoles = []models.Role{models.RoleDirector, models.RoleManager, models.RoleAdmin}

// BranchPublisher notifies a branch's managers and its LINE groups.
type BranchPublisher struct {
	db       *gorm.DB
	notifier Notifier
	line     LinePusher
}

func NewBranchPublisher(db *gorm.DB, notifier Notifier, pusher LinePusher) *BranchPublisher {
	return &BranchPublisher{db: db, notifier: notifier, line: pusher}
}

// PublishAlerts delivers in the background; the request that produced the
// alerts does not wait for LINE or the notification queue.
func (p *BranchPublisher) PublishAlerts(_ context.Context, alerts []models.NotificationAlert) {
	go func() {
		for _, a := range alerts {
			p.Deliver(context.Background(), a)
		}
	}()
}

// Deliver sends one alert synchronously.
func (p *BranchPublisher) Deliver(ctx context.Context, a models.NotificationAlert) {
	log := logrus.WithFields(logrus.Fields{"alert_id": a.ID, "branch_id": a.BranchID, "alert_type": a.AlertType})

	recipients, err := p.recipients(ctx, a.BranchID)
	if err != nil {
		log.WithError(err).Error("load alert recipients")
	}
	if len(recipients) > 0 && p.notifier != nil {
		data := map[string]interface{}{"alert_id": a.ID, "alert_type": a.AlertType, "branch_id": a.BranchID}
		if a.RelatedLessonID != nil {
			data["lesson_id"] = *a.RelatedLessonID
		}
		payload := notifications.Queued(AlertTitle(a.AlertType), a.Message, "warning", data, "normal", "popup")
		if err := p.notifier.EnqueueOrCreate(ctx, recipients, payload); err != nil {
			log.WithError(err).Error("enqueue alert notification")
		}
	}

	if p.line == nil || !p.line.Enabled() {
		return
	}
	groupIDs, err := line.ActiveGroupIDs(p.db.WithContext(ctx), a.BranchID)
	if err != nil {
		log.WithError(err).Error("load LINE groups")
		return
	}
	for _, gid := range groupIDs {
		if err := p.line.PushText(gid, a.Message); err != nil {
			log.WithError(err).WithField("line_group", gid).Warn("LINE push failed")
		}
	}
}

// recipients are the active managers of the branch plus organization-wide
// managers of the branch's organization.
func (p *BranchPublisher) recipients(ctx context.Context, branchID uint) ([]uint, error) {
	var ids []uint
	err := p.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND is_blocked = ?", alertRecipientRoles, false).
		Where("branch_id = ? OR (branch_id IS NULL AND organization_id IN (SELECT organization_id FROM branches WHERE id = ?))", branchID, branchID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// AlertTitle is the notification title for an alert type.
func AlertTitle(t models.AlertType) string {
	switch t {
	case models.AlertTeacherChanged:
		return "Teacher changed"
	case models.AlertStudentTransferred:
		return "Student transferred"
	case models.AlertLessonCancelled:
		return "Lesson cancelled"
	case models.AlertPaymentDue:
		return "Payment due"
	case models.AlertStudentAbsent:
		return "Student absent"
	case models.AlertTeacherLate:
		return "Teacher late"
	}
	return fmt.Sprintf("Alert: %s", strings.ReplaceAll(string(t), "_", " "))
}

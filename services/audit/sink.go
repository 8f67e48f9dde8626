// Package audit records append-only alerts and audit trails inside the
// caller's transaction and fans alerts out once that transaction commits.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"educenter_go/models"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Publisher delivers committed alerts to people.
type Publisher interface {
	PublishAlerts(ctx context.Context, alerts []models.NotificationAlert)
}

// Sink writes alert and audit rows. It never updates or deletes them.
type Sink struct {
	publisher Publisher
}

// NewSink returns a Sink; p may be nil to skip delivery.
func NewSink(p Publisher) *Sink {
	return &Sink{publisher: p}
}

// Alert inserts a NotificationAlert using tx.
func (s *Sink) Alert(tx *gorm.DB, branchID uint, typ models.AlertType, message string, lessonID, actorID *uint) (models.NotificationAlert, error) {
	a := models.NotificationAlert{
		BranchID:        branchID,
		AlertType:       typ,
		RelatedLessonID: lessonID,
		Message:         message,
		CreatedBy:       actorID,
		CreatedAt:       time.Now(),
	}
	if err := tx.Create(&a).Error; err != nil {
		return a, errors.Wrap(err, "write alert")
	}
	return a, nil
}

// SuperadminAction inserts a SuperadminAuditLog using tx.
func (s *Sink) SuperadminAction(tx *gorm.DB, actorID uint, action string, details map[string]interface{}) error {
	entry := models.SuperadminAuditLog{
		SuperadminID: actorID,
		Action:       action,
		Details:      toJSON(details),
		Timestamp:    time.Now(),
	}
	return errors.Wrap(tx.Create(&entry).Error, "write superadmin audit log")
}

// Activity inserts an ActivityLog using tx.
func (s *Sink) Activity(tx *gorm.DB, actorID uint, action, resource string, resourceID uint, details map[string]interface{}) error {
	entry := models.ActivityLog{
		UserID:     actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    toJSON(details),
	}
	return errors.Wrap(tx.Create(&entry).Error, "write activity log")
}

// Publish hands committed alerts to the publisher. Call it only after the
// transaction that wrote them has committed.
func (s *Sink) Publish(ctx context.Context, alerts ...models.NotificationAlert) {
	if s == nil || s.publisher == nil || len(alerts) == 0 {
		return
	}
	s.publisher.PublishAlerts(ctx, alerts)
}

func toJSON(v map[string]interface{}) datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON(`{}`)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}

package services

import (
	"context"
	"fmt"
	"time"

	"educenter_go/models"
	"educenter_go/services/notifications"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier is the part of notifications.Service reminders need.
type Notifier interface {
	EnqueueOrCreate(ctx context.Context, userIDs []uint, n notifications.Payload) error
}

var reminderLeads = []struct {
	lead  time.Duration
	label string
}{
	{30 * time.Minute, "30 minutes"},
	{time.Hour, "1 hour"},
}

// reminderSlack is half the width of each lead window. It is wider than half
// of the default cron interval so no lesson falls between two runs.
const reminderSlack = 8 * time.Minute

// LessonReminder notifies teachers and students about lessons that are about
// to start and teachers about lessons still missing attendance.
type LessonReminder struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewLessonReminder(db *gorm.DB, notifier Notifier) *LessonReminder {
	return &LessonReminder{db: db, notifier: notifier, now: time.Now}
}

// Run sends both kinds of reminders and logs the outcome.
func (r *LessonReminder) Run(ctx context.Context) {
	if n, err := r.UpcomingLessons(ctx); err != nil {
		logrus.WithError(err).Error("upcoming lesson reminders failed")
	} else if n > 0 {
		logrus.WithField("lessons", n).Info("upcoming lesson reminders sent")
	}
	if n, err := r.MissingAttendance(ctx); err != nil {
		logrus.WithError(err).Error("missing attendance reminders failed")
	} else if n > 0 {
		logrus.WithField("lessons", n).Info("missing attendance reminders sent")
	}
}

// UpcomingLessons reminds the teacher and the group's students of lessons
// starting in about 30 minutes or an hour. Each lesson is announced once per
// lead time.
func (r *LessonReminder) UpcomingLessons(ctx context.Context) (int, error) {
	now := r.now()
	db := r.db.WithContext(ctx)
	sent := 0

	for _, lt := range reminderLeads {
		target := now.Add(lt.lead)
		var lessons []models.Lesson
		if err := db.Preload("Group").Preload("Teacher").
			Where("start_time BETWEEN ? AND ? AND is_cancelled = ?", target.Add(-reminderSlack), target.Add(reminderSlack), false).
			Find(&lessons).Error; err != nil {
			return sent, errors.Wrap(err, "load upcoming lessons")
		}

		for _, l := range lessons {
			title := fmt.Sprintf("Lesson #%d starts in %s", l.ID, lt.label)
			done, err := r.alreadySent(db, title, now.Add(-2*time.Hour))
			if err != nil {
				return sent, err
			}
			if done {
				continue
			}

			recipients, err := r.lessonAudience(db, l)
			if err != nil {
				return sent, err
			}
			if len(recipients) == 0 {
				continue
			}
			msg := fmt.Sprintf("%s will start at %s.", l.Group.Name, l.StartTime.Format("15:04"))
			payload := notifications.Queued(title, msg, "info", map[string]interface{}{
				"lesson_id":  l.ID,
				"group_id":   l.GroupID,
				"start_time": l.StartTime,
			}, "normal", "popup")
			if err := r.notifier.EnqueueOrCreate(ctx, recipients, payload); err != nil {
				return sent, errors.Wrapf(err, "remind lesson %d", l.ID)
			}
			sent++
		}
	}
	return sent, nil
}

// MissingAttendance reminds teachers of lessons that ended within the last
// day without any attendance rows. Each lesson is reported once a day.
func (r *LessonReminder) MissingAttendance(ctx context.Context) (int, error) {
	now := r.now()
	db := r.db.WithContext(ctx)

	var lessons []models.Lesson
	if err := db.Preload("Group").Preload("Teacher").
		Where("start_time BETWEEN ? AND ? AND is_cancelled = ?", now.Add(-24*time.Hour), now, false).
		Where("NOT EXISTS (SELECT 1 FROM attendances a WHERE a.lesson_id = lessons.id AND a.deleted_at IS NULL)").
		Find(&lessons).Error; err != nil {
		return 0, errors.Wrap(err, "load lessons without attendance")
	}

	sent := 0
	for _, l := range lessons {
		if l.StartTime.Add(time.Duration(l.Duration) * time.Minute).After(now) {
			continue
		}
		title := fmt.Sprintf("Attendance missing for lesson #%d", l.ID)
		done, err := r.alreadySent(db, title, now.Add(-24*time.Hour))
		if err != nil {
			return sent, err
		}
		if done || l.Teacher.UserID == 0 {
			continue
		}

		msg := fmt.Sprintf("Please submit attendance for %s (%s).", l.Group.Name, l.StartTime.Format("2006-01-02 15:04"))
		payload := notifications.Queued(title, msg, "warning", map[string]interface{}{"lesson_id": l.ID}, "normal", "popup")
		if err := r.notifier.EnqueueOrCreate(ctx, []uint{l.Teacher.UserID}, payload); err != nil {
			return sent, errors.Wrapf(err, "remind attendance for lesson %d", l.ID)
		}
		sent++
	}
	return sent, nil
}

func (r *LessonReminder) alreadySent(db *gorm.DB, title string, since time.Time) (bool, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("title = ? AND created_at > ?", title, since).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "check reminder history")
}

// lessonAudience is the lesson's teacher plus the active students of its
// group.
func (r *LessonReminder) lessonAudience(db *gorm.DB, l models.Lesson) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.Student{}).
		Joins("JOIN group_members gm ON gm.student_id = students.id").
		Where("gm.group_id = ? AND students.status = ?", l.GroupID, models.StudentActive).
		Pluck("students.user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "load lesson audience")
	}
	if l.Teacher.UserID != 0 {
		ids = append(ids, l.Teacher.UserID)
	}
	return ids, nil
}

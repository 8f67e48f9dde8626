package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScheduleService manages groups, their lessons and homework.
type ScheduleService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewScheduleService(db *gorm.DB, sink *audit.Sink) *ScheduleService {
	return &ScheduleService{db: db, sink: sink}
}

const lessonTimeLayout = "2006-01-02 15:04"

type GroupInput struct {
	BranchID    uint   `json:"branch_id" validate:"required"`
	TeacherID   *uint  `json:"teacher_id"`
	Name        string `json:"name" validate:"notblank,max=255"`
	Subject     string `json:"subject" validate:"max=255"`
	Level       string `json:"level" validate:"max=50"`
	MaxStudents int    `json:"max_students" validate:"gte=0"`
}

// CreateGroup opens a group in an in-scope branch. Capacity defaults to, and
// may not exceed, the organization's per-group limit.
func (s *ScheduleService) CreateGroup(ctx context.Context, scope access.Scope, actorID uint, in GroupInput) (*models.Group, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, finish("group_create", fields, Malformedf("Name is required"))
	}
	if in.MaxStudents < 0 {
		return nil, finish("group_create", fields, Malformedf("Capacity cannot be negative"))
	}

	var group models.Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := access.FindScoped(tx.Preload("Organization"), access.EntityBranch, scope, &branch, in.BranchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		if !branch.Status {
			return InvalidStatef("Branch is closed")
		}
		limit := branch.Organization.MaxStudentsPerGroup
		capacity := in.MaxStudents
		if capacity == 0 {
			capacity = limit
		}
		if limit > 0 && capacity > limit {
			return Malformedf("Capacity cannot exceed %d", limit)
		}

		group = models.Group{
			BranchID:    branch.ID,
			Name:        name,
			Subject:     strings.TrimSpace(in.Subject),
			Level:       strings.TrimSpace(in.Level),
			MaxStudents: capacity,
		}
		if in.TeacherID != nil {
			var teacher models.Teacher
			if err := access.FindScoped(tx, access.EntityTeacher, scope, &teacher, *in.TeacherID); err != nil {
				return notFoundOr(err, "Teacher not found")
			}
			if teacher.BranchID != branch.ID {
				return InvalidStatef("Teacher belongs to a different branch")
			}
			group.TeacherID = ptrUint(teacher.ID)
		}
		if err := tx.Omit("Branch", "Teacher", "Members").Create(&group).Error; err != nil {
			return errors.Wrap(err, "create group")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "group", group.ID,
			map[string]interface{}{"branch_id": branch.ID, "max_students": capacity})
	})
	if err != nil {
		return nil, finish("group_create", fields, err)
	}
	fields["group_id"] = group.ID
	return &group, finish("group_create", fields, nil)
}

// GroupUpdate edits descriptive fields and capacity. The teacher changes
// only through the reassignment workflow.
type GroupUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Subject     *string `json:"subject" validate:"omitempty,max=255"`
	Level       *string `json:"level" validate:"omitempty,max=50"`
	MaxStudents *int    `json:"max_students" validate:"omitempty,gt=0"`
}

func (s *ScheduleService) UpdateGroup(ctx context.Context, scope access.Scope, actorID, groupID uint, in GroupUpdate) (*models.Group, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": groupID}
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, finish("group_update", fields, Malformedf("Name cannot be empty"))
		}
		updates["name"] = name
	}
	if in.Subject != nil {
		updates["subject"] = strings.TrimSpace(*in.Subject)
	}
	if in.Level != nil {
		updates["level"] = strings.TrimSpace(*in.Level)
	}

	var group models.Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityGroup, scope, &group, groupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		if in.MaxStudents != nil {
			if *in.MaxStudents <= 0 {
				return Malformedf("Capacity must be positive")
			}
			var branch models.Branch
			if err := tx.Preload("Organization").First(&branch, group.BranchID).Error; err != nil {
				return notFoundOr(err, "Branch not found")
			}
			if limit := branch.Organization.MaxStudentsPerGroup; limit > 0 && *in.MaxStudents > limit {
				return Malformedf("Capacity cannot exceed %d", limit)
			}
			n, err := countMembers(tx, group.ID)
			if err != nil {
				return err
			}
			if int64(*in.MaxStudents) < n {
				return InvalidStatef("Group already has %d students", n)
			}
			updates["max_students"] = *in.MaxStudents
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&group).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update group")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "group", group.ID, updates)
	})
	if err != nil {
		return nil, finish("group_update", fields, err)
	}
	return &group, finish("group_update", fields, nil)
}

func validDuration(minutes int) bool { return minutes == 45 || minutes == 90 }

type LessonInput struct {
	GroupID   uint      `json:"group_id" validate:"required"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration"`
}

// CreateLesson schedules a lesson for a group. The lesson takes the group's
// current teacher and branch.
func (s *ScheduleService) CreateLesson(ctx context.Context, scope access.Scope, actorID uint, in LessonInput) (*models.Lesson, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": in.GroupID}
	if in.StartTime.IsZero() {
		return nil, finish("lesson_create", fields, Malformedf("start_time is required"))
	}
	duration := in.Duration
	if duration == 0 {
		duration = 90
	}
	if !validDuration(duration) {
		return nil, finish("lesson_create", fields, Malformedf("Duration must be 45 or 90 minutes"))
	}

	var lesson models.Lesson
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := access.FindScoped(tx, access.EntityGroup, scope, &group, in.GroupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		if group.TeacherID == nil {
			return InvalidStatef("Group has no teacher")
		}
		lesson = models.Lesson{
			GroupID:   group.ID,
			TeacherID: *group.TeacherID,
			BranchID:  group.BranchID,
			StartTime: in.StartTime,
			Duration:  duration,
		}
		if err := tx.Omit("Group", "Teacher").Create(&lesson).Error; err != nil {
			return errors.Wrap(err, "create lesson")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "lesson", lesson.ID,
			map[string]interface{}{"group_id": group.ID, "start_time": lesson.StartTime})
	})
	if err != nil {
		return nil, finish("lesson_create", fields, err)
	}
	fields["lesson_id"] = lesson.ID
	return &lesson, finish("lesson_create", fields, nil)
}

type LessonUpdate struct {
	StartTime *time.Time `json:"start_time"`
	Duration  *int       `json:"duration"`
}

// UpdateLesson reschedules a lesson that is not cancelled.
func (s *ScheduleService) UpdateLesson(ctx context.Context, scope access.Scope, actorID, lessonID uint, in LessonUpdate) (*models.Lesson, error) {
	fields := logrus.Fields{"actor_id": actorID, "lesson_id": lessonID}
	updates := map[string]interface{}{}
	if in.StartTime != nil {
		if in.StartTime.IsZero() {
			return nil, finish("lesson_update", fields, Malformedf("start_time is required"))
		}
		updates["start_time"] = *in.StartTime
	}
	if in.Duration != nil {
		if !validDuration(*in.Duration) {
			return nil, finish("lesson_update", fields, Malformedf("Duration must be 45 or 90 minutes"))
		}
		updates["duration"] = *in.Duration
	}

	var lesson models.Lesson
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityLesson, scope, &lesson, lessonID); err != nil {
			return notFoundOr(err, "Lesson not found")
		}
		if lesson.IsCancelled {
			return InvalidStatef("Lesson is cancelled")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&lesson).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update lesson")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "lesson", lesson.ID, updates)
	})
	if err != nil {
		return nil, finish("lesson_update", fields, err)
	}
	return &lesson, finish("lesson_update", fields, nil)
}

// CancelLesson cancels a lesson that has no attendance yet and alerts the
// branch.
func (s *ScheduleService) CancelLesson(ctx context.Context, scope access.Scope, actorID, lessonID uint, reason string) (*models.Lesson, *models.NotificationAlert, error) {
	fields := logrus.Fields{"actor_id": actorID, "lesson_id": lessonID}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil, finish("lesson_cancel", fields, Malformedf("Reason is required"))
	}

	var lesson models.Lesson
	var alert models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityLesson, scope, &lesson, lessonID); err != nil {
			return notFoundOr(err, "Lesson not found")
		}
		if lesson.IsCancelled {
			return InvalidStatef("Lesson is already cancelled")
		}
		var marked int64
		if err := tx.Model(&models.Attendance{}).Where("lesson_id = ?", lesson.ID).Count(&marked).Error; err != nil {
			return errors.Wrap(err, "count attendance")
		}
		if marked > 0 {
			return InvalidStatef("Lesson already has attendance")
		}
		var group models.Group
		if err := tx.First(&group, lesson.GroupID).Error; err != nil {
			return notFoundOr(err, "Group not found")
		}

		if err := tx.Model(&lesson).Updates(map[string]interface{}{
			"is_cancelled":        true,
			"cancellation_reason": reason,
		}).Error; err != nil {
			return errors.Wrap(err, "cancel lesson")
		}
		lesson.IsCancelled = true
		lesson.CancellationReason = reason

		msg := fmt.Sprintf("Lesson for group %s on %s cancelled: %s", group.Name, lesson.StartTime.Format(lessonTimeLayout), reason)
		var err error
		alert, err = s.sink.Alert(tx, lesson.BranchID, models.AlertLessonCancelled, msg, &lesson.ID, ptrUint(actorID))
		return err
	})
	if err != nil {
		return nil, nil, finish("lesson_cancel", fields, err)
	}
	s.sink.Publish(ctx, alert)
	return &lesson, &alert, finish("lesson_cancel", fields, nil)
}

// ReportTeacherLate alerts the branch that a lesson's teacher has not
// arrived on time.
func (s *ScheduleService) ReportTeacherLate(ctx context.Context, scope access.Scope, actorID, lessonID uint, minutes int) (*models.NotificationAlert, error) {
	fields := logrus.Fields{"actor_id": actorID, "lesson_id": lessonID, "minutes": minutes}
	if minutes <= 0 {
		return nil, finish("teacher_late", fields, Malformedf("Minutes late must be positive"))
	}

	var alert models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := access.FindScoped(tx.Preload("Group").Preload("Teacher.User"), access.EntityLesson, scope, &lesson, lessonID); err != nil {
			return notFoundOr(err, "Lesson not found")
		}
		if lesson.IsCancelled {
			return InvalidStatef("Lesson is cancelled")
		}
		msg := fmt.Sprintf("Teacher %s is %d minutes late for group %s", lesson.Teacher.User.FullName(), minutes, lesson.Group.Name)
		var err error
		alert, err = s.sink.Alert(tx, lesson.BranchID, models.AlertTeacherLate, msg, &lesson.ID, ptrUint(actorID))
		return err
	})
	if err != nil {
		return nil, finish("teacher_late", fields, err)
	}
	s.sink.Publish(ctx, alert)
	return &alert, finish("teacher_late", fields, nil)
}

const (
	HomeworkAssigned  = "assigned"
	HomeworkSubmitted = "submitted"
	HomeworkGraded    = "graded"
)

type HomeworkInput struct {
	GroupID     uint      `json:"group_id" validate:"required"`
	Title       string    `json:"title" validate:"notblank,max=255"`
	Description string    `json:"description"`
	FileURL     string    `json:"file_url" validate:"omitempty,url,max=500"`
	DueDate     time.Time `json:"due_date"`
}

// CreateHomework assigns homework to a group on behalf of its teacher.
func (s *ScheduleService) CreateHomework(ctx context.Context, scope access.Scope, actorID uint, in HomeworkInput) (*models.Homework, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": in.GroupID}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, finish("homework_create", fields, Malformedf("Title is required"))
	}

	var hw models.Homework
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := access.FindScoped(tx, access.EntityGroup, scope, &group, in.GroupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		if group.TeacherID == nil {
			return InvalidStatef("Group has no teacher")
		}
		hw = models.Homework{
			TeacherID:   *group.TeacherID,
			GroupID:     group.ID,
			Title:       title,
			Description: in.Description,
			FileURL:     strings.TrimSpace(in.FileURL),
			DueDate:     in.DueDate,
			Status:      HomeworkAssigned,
		}
		if err := tx.Create(&hw).Error; err != nil {
			return errors.Wrap(err, "create homework")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "homework", hw.ID, map[string]interface{}{"group_id": group.ID})
	})
	if err != nil {
		return nil, finish("homework_create", fields, err)
	}
	fields["homework_id"] = hw.ID
	return &hw, finish("homework_create", fields, nil)
}

type HomeworkUpdate struct {
	Title       *string    `json:"title" validate:"omitempty,max=255"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Status      *string    `json:"status"`
}

func (s *ScheduleService) UpdateHomework(ctx context.Context, scope access.Scope, actorID, homeworkID uint, in HomeworkUpdate) (*models.Homework, error) {
	fields := logrus.Fields{"actor_id": actorID, "homework_id": homeworkID}
	updates := map[string]interface{}{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, finish("homework_update", fields, Malformedf("Title cannot be empty"))
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.DueDate != nil {
		updates["due_date"] = *in.DueDate
	}
	if in.Status != nil {
		switch *in.Status {
		case HomeworkAssigned, HomeworkSubmitted, HomeworkGraded:
			updates["status"] = *in.Status
		default:
			return nil, finish("homework_update", fields, Malformedf("Invalid status %q", *in.Status))
		}
	}

	var hw models.Homework
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityHomework, scope, &hw, homeworkID); err != nil {
			return notFoundOr(err, "Homework not found")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&hw).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update homework")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "homework", hw.ID, updates)
	})
	if err != nil {
		return nil, finish("homework_update", fields, err)
	}
	return &hw, finish("homework_update", fields, nil)
}

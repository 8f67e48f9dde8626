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

type AttendanceService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewAttendanceService(db *gorm.DB, sink *audit.Sink) *AttendanceService {
	return &AttendanceService{db: db, sink: sink}
}

// AttendanceRecord is one student's line in a bulk submission.
type AttendanceRecord struct {
	StudentID      uint                    `json:"student_id" validate:"required"`
	Status         models.AttendanceStatus `json:"status" validate:"required"`
	HomeworkStatus models.HomeworkStatus   `json:"homework_status,omitempty"`
	HomeworkGrade  *int                    `json:"homework_grade,omitempty" validate:"omitempty,min=0,max=10"`
	Comments       string                  `json:"comments,omitempty"`
}

type SubmitAttendanceInput struct {
	LessonID uint               `json:"lesson_id" validate:"required"`
	Records  []AttendanceRecord `json:"records" validate:"required,min=1,dive"`
}

type SubmitResult struct {
	Created int `json:"created"`
	Total   int `json:"total"`
}

func (in SubmitAttendanceInput) check() error {
	seen := make(map[uint]struct{}, len(in.Records))
	for _, r := range in.Records {
		if r.StudentID == 0 {
			return Malformedf("Invalid student id %d", r.StudentID)
		}
		if _, dup := seen[r.StudentID]; dup {
			return Malformedf("Duplicate student id %d", r.StudentID)
		}
		seen[r.StudentID] = struct{}{}
		if !r.Status.Valid() {
			return Malformedf("Invalid status %q for student %d", r.Status, r.StudentID)
		}
		if r.HomeworkStatus != "" && !r.HomeworkStatus.Valid() {
			return Malformedf("Invalid homework status %q for student %d", r.HomeworkStatus, r.StudentID)
		}
		if r.HomeworkGrade != nil && (*r.HomeworkGrade < 0 || *r.HomeworkGrade > 10) {
			return Malformedf("Homework grade must be between 0 and 10")
		}
	}
	return nil
}

// groupMemberSet returns the ids of students currently in the group.
func groupMemberSet(tx *gorm.DB, groupID uint) (map[uint]struct{}, []uint, error) {
	var ids []uint
	if err := tx.Model(&models.GroupMember{}).Where("group_id = ?", groupID).Order("student_id").Pluck("student_id", &ids).Error; err != nil {
		return nil, nil, errors.Wrap(err, "load group members")
	}
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, ids, nil
}

func existingAttendance(tx *gorm.DB, lessonID uint, studentIDs []uint) (map[uint]*models.Attendance, error) {
	var rows []models.Attendance
	if err := tx.Where("lesson_id = ? AND student_id IN ?", lessonID, studentIDs).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load attendance")
	}
	out := make(map[uint]*models.Attendance, len(rows))
	for i := range rows {
		out[rows[i].StudentID] = &rows[i]
	}
	return out, nil
}

// Submit upserts attendance for a lesson keyed by (lesson, student). Every
// student must belong to the lesson's group or nothing is written.
func (s *AttendanceService) Submit(ctx context.Context, scope access.Scope, actorID uint, in SubmitAttendanceInput) (SubmitResult, error) {
	var res SubmitResult
	fields := logrus.Fields{"actor_id": actorID, "lesson_id": in.LessonID}
	if len(in.Records) == 0 {
		return res, finish("attendance_submit", fields, Malformedf("Records are required"))
	}
	if err := in.check(); err != nil {
		return res, finish("attendance_submit", fields, err)
	}

	var alerts []models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := lockScoped(tx, access.EntityLesson, scope, &lesson, in.LessonID); err != nil {
			return notFoundOr(err, "Lesson not found")
		}
		members, _, err := groupMemberSet(tx, lesson.GroupID)
		if err != nil {
			return err
		}
		ids := make([]uint, 0, len(in.Records))
		for _, r := range in.Records {
			if _, ok := members[r.StudentID]; !ok {
				return Malformedf("Invalid student id %d", r.StudentID)
			}
			ids = append(ids, r.StudentID)
		}
		existing, err := existingAttendance(tx, lesson.ID, ids)
		if err != nil {
			return err
		}

		var absent []uint
		for _, r := range in.Records {
			hw := r.HomeworkStatus
			if hw == "" {
				hw = models.HomeworkMissing
			}
			prev, seen := existing[r.StudentID]
			if r.Status == models.AttendanceAbsent && (!seen || prev.Status != models.AttendanceAbsent) {
				absent = append(absent, r.StudentID)
			}
			// a resubmission replaces the whole record
			if seen {
				var grade interface{}
				if r.HomeworkGrade != nil {
					grade = *r.HomeworkGrade
				}
				updates := map[string]interface{}{
					"status":          r.Status,
					"homework_status": hw,
					"homework_grade":  grade,
					"comments":        r.Comments,
					"submitted_by":    actorID,
				}
				if err := tx.Model(prev).Updates(updates).Error; err != nil {
					return errors.Wrap(err, "update attendance")
				}
				continue
			}

			att := models.Attendance{
				LessonID:       lesson.ID,
				StudentID:      r.StudentID,
				Status:         r.Status,
				HomeworkStatus: hw,
				HomeworkGrade:  r.HomeworkGrade,
				Comments:       r.Comments,
				SubmittedBy:    ptrUint(actorID),
			}
			if err := tx.Create(&att).Error; err != nil {
				return dbErr(err, "Attendance already exists", "create attendance")
			}
			res.Created++
		}
		res.Total = len(in.Records)
		for _, sid := range absent {
			a, err := s.sink.Alert(tx, lesson.BranchID, models.AlertStudentAbsent,
				fmt.Sprintf("Student %d was absent from lesson %d", sid, lesson.ID), &lesson.ID, ptrUint(actorID))
			if err != nil {
				return err
			}
			alerts = append(alerts, a)
		}
		return s.sink.Activity(tx, actorID, "SUBMIT", "attendance", lesson.ID,
			map[string]interface{}{"created": res.Created, "total": res.Total, "absent": len(absent)})
	})
	if err != nil {
		res = SubmitResult{}
	} else {
		s.sink.Publish(ctx, alerts...)
	}
	fields["created"] = res.Created
	return res, finish("attendance_submit", fields, err)
}

// SelectAllPresent marks every current member of the lesson's group present.
// Running it again leaves the same rows.
func (s *AttendanceService) SelectAllPresent(ctx context.Context, scope access.Scope, actorID, lessonID uint) (int, error) {
	marked := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := lockScoped(tx, access.EntityLesson, scope, &lesson, lessonID); err != nil {
			return notFoundOr(err, "Lesson not found")
		}
		_, ids, err := groupMemberSet(tx, lesson.GroupID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		existing, err := existingAttendance(tx, lesson.ID, ids)
		if err != nil {
			return err
		}
		for _, sid := range ids {
			if att, ok := existing[sid]; ok {
				if att.Status != models.AttendancePresent {
					if err := tx.Model(att).Updates(map[string]interface{}{"status": models.AttendancePresent, "submitted_by": actorID}).Error; err != nil {
						return errors.Wrap(err, "update attendance")
					}
				}
				continue
			}
			att := models.Attendance{
				LessonID:       lesson.ID,
				StudentID:      sid,
				Status:         models.AttendancePresent,
				HomeworkStatus: models.HomeworkMissing,
				SubmittedBy:    ptrUint(actorID),
			}
			if err := tx.Create(&att).Error; err != nil {
				return dbErr(err, "Attendance already exists", "create attendance")
			}
		}
		marked = len(ids)
		return nil
	})
	if err != nil {
		marked = 0
	}
	return marked, finish("attendance_select_all_present", logrus.Fields{"actor_id": actorID, "lesson_id": lessonID, "marked": marked}, err)
}

// PendingLesson is a lesson still missing attendance for some students.
type PendingLesson struct {
	models.Lesson
	Submitted int64 `json:"submitted"`
	Expected  int64 `json:"expected"`
	Remaining int64 `json:"remaining"`
}

// PendingSubmissions lists today's started, non-cancelled lessons in scope
// with fewer attendance rows than group members.
func (s *AttendanceService) PendingSubmissions(ctx context.Context, scope access.Scope, now time.Time) ([]PendingLesson, error) {
	db := s.db.WithContext(ctx)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var lessons []models.Lesson
	err := db.Scopes(access.Apply(access.EntityLesson, scope)).
		Where("lessons.start_time >= ? AND lessons.start_time <= ?", dayStart, now).
		Where("lessons.is_cancelled = ?", false).
		Preload("Group").
		Order("lessons.start_time").
		Find(&lessons).Error
	if err != nil {
		return nil, errors.Wrap(err, "load today's lessons")
	}
	if len(lessons) == 0 {
		return []PendingLesson{}, nil
	}

	lessonIDs := make([]uint, 0, len(lessons))
	groupIDs := make([]uint, 0, len(lessons))
	for _, l := range lessons {
		lessonIDs = append(lessonIDs, l.ID)
		groupIDs = append(groupIDs, l.GroupID)
	}

	type tally struct {
		RefID uint
		N     int64
	}
	var submitted, members []tally
	if err := db.Model(&models.Attendance{}).
		Select("lesson_id AS ref_id, COUNT(*) AS n").
		Where("lesson_id IN ?", lessonIDs).
		Group("lesson_id").
		Scan(&submitted).Error; err != nil {
		return nil, errors.Wrap(err, "count submitted attendance")
	}
	if err := db.Model(&models.GroupMember{}).
		Select("group_id AS ref_id, COUNT(*) AS n").
		Where("group_id IN ?", groupIDs).
		Group("group_id").
		Scan(&members).Error; err != nil {
		return nil, errors.Wrap(err, "count group members")
	}
	bySubmitted := make(map[uint]int64, len(submitted))
	for _, t := range submitted {
		bySubmitted[t.RefID] = t.N
	}
	byGroup := make(map[uint]int64, len(members))
	for _, t := range members {
		byGroup[t.RefID] = t.N
	}

	out := make([]PendingLesson, 0, len(lessons))
	for _, l := range lessons {
		done, expected := bySubmitted[l.ID], byGroup[l.GroupID]
		if done >= expected {
			continue
		}
		out = append(out, PendingLesson{Lesson: l, Submitted: done, Expected: expected, Remaining: expected - done})
	}
	return out, nil
}

type CorrectionInput struct {
	Status models.AttendanceStatus `json:"status" validate:"required"`
	Reason string                  `json:"reason" validate:"notblank"`
}

// Correct changes a live attendance status and keeps an immutable record of
// the old and new values.
func (s *AttendanceService) Correct(ctx context.Context, scope access.Scope, actorID, attendanceID uint, in CorrectionInput) (*models.AttendanceCorrection, error) {
	fields := logrus.Fields{"actor_id": actorID, "attendance_id": attendanceID}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, finish("attendance_correct", fields, Malformedf("Reason is required"))
	}
	if !in.Status.Valid() {
		return nil, finish("attendance_correct", fields, Malformedf("Invalid status %q", in.Status))
	}

	var correction models.AttendanceCorrection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var att models.Attendance
		if err := lockScoped(tx, access.EntityAttendance, scope, &att, attendanceID); err != nil {
			return notFoundOr(err, "Attendance not found")
		}
		if att.Status == in.Status {
			return InvalidStatef("Attendance is already %s", in.Status)
		}

		correction = models.AttendanceCorrection{
			OriginalAttendanceID: att.ID,
			OldStatus:            att.Status,
			NewStatus:            in.Status,
			Reason:               reason,
			CorrectedBy:          actorID,
			CorrectedAt:          time.Now(),
		}
		if err := tx.Create(&correction).Error; err != nil {
			return errors.Wrap(err, "create correction")
		}
		if err := tx.Model(&att).Update("status", in.Status).Error; err != nil {
			return errors.Wrap(err, "update attendance")
		}
		return s.sink.Activity(tx, actorID, "CORRECT", "attendance", att.ID,
			map[string]interface{}{"old_status": correction.OldStatus, "new_status": correction.NewStatus})
	})
	if err != nil {
		return nil, finish("attendance_correct", fields, err)
	}
	return &correction, finish("attendance_correct", fields, nil)
}

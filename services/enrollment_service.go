package services

import (
	"context"
	"fmt"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type EnrollmentService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewEnrollmentService(db *gorm.DB, sink *audit.Sink) *EnrollmentService {
	return &EnrollmentService{db: db, sink: sink}
}

func countMembers(tx *gorm.DB, groupID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.GroupMember{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, errors.Wrap(err, "count group members")
}

func isMember(tx *gorm.DB, groupID, studentID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.GroupMember{}).Where("group_id = ? AND student_id = ?", groupID, studentID).Count(&n).Error
	return n > 0, errors.Wrap(err, "check membership")
}

// admit checks branch, duplicate and capacity rules against a locked group
// and inserts the membership. It returns the new member count.
func admit(tx *gorm.DB, group *models.Group, student *models.Student) (int64, error) {
	if student.BranchID != group.BranchID {
		return 0, InvalidStatef("Student belongs to a different branch")
	}
	member, err := isMember(tx, group.ID, student.ID)
	if err != nil {
		return 0, err
	}
	if member {
		return 0, Conflictf("Student is already in this group")
	}
	n, err := countMembers(tx, group.ID)
	if err != nil {
		return 0, err
	}
	if n >= int64(group.MaxStudents) {
		return 0, InvalidStatef("Group is full")
	}
	m := models.GroupMember{GroupID: group.ID, StudentID: student.ID, JoinedAt: time.Now()}
	if err := tx.Create(&m).Error; err != nil {
		return 0, dbErr(err, "Student is already in this group", "add group member")
	}
	return n + 1, nil
}

// AddStudent enrolls a student in a group. Concurrent calls against the same
// group serialize on the group row so capacity is never exceeded.
func (s *EnrollmentService) AddStudent(ctx context.Context, scope access.Scope, actorID, groupID, studentID uint) (int, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": groupID, "student_id": studentID}
	var members int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := lockScoped(tx, access.EntityGroup, scope, &group, groupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		var student models.Student
		if err := access.FindScoped(tx, access.EntityStudent, scope, &student, studentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		n, err := admit(tx, &group, &student)
		if err != nil {
			return err
		}
		members = n
		return s.sink.Activity(tx, actorID, "ADD_MEMBER", "group", group.ID, map[string]interface{}{"student_id": student.ID})
	})
	if err != nil {
		return 0, finish("group_add_student", fields, err)
	}
	fields["members"] = members
	return int(members), finish("group_add_student", fields, nil)
}

// RemoveStudent deletes the membership row.
func (s *EnrollmentService) RemoveStudent(ctx context.Context, scope access.Scope, actorID, groupID, studentID uint) error {
	fields := logrus.Fields{"actor_id": actorID, "group_id": groupID, "student_id": studentID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := lockScoped(tx, access.EntityGroup, scope, &group, groupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		res := tx.Where("group_id = ? AND student_id = ?", group.ID, studentID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "remove group member")
		}
		if res.RowsAffected == 0 {
			return NotFoundf("Student is not in this group")
		}
		return s.sink.Activity(tx, actorID, "REMOVE_MEMBER", "group", group.ID, map[string]interface{}{"student_id": studentID})
	})
	return finish("group_remove_student", fields, err)
}

type TransferInput struct {
	StudentID   uint `json:"student_id" validate:"required"`
	FromGroupID uint `json:"from_group_id" validate:"required"`
	ToGroupID   uint `json:"to_group_id" validate:"required"`
}

// TransferStudent moves a student between two groups of the same branch.
func (s *EnrollmentService) TransferStudent(ctx context.Context, scope access.Scope, actorID uint, in TransferInput) (*models.NotificationAlert, error) {
	fields := logrus.Fields{"actor_id": actorID, "student_id": in.StudentID, "from_group_id": in.FromGroupID, "to_group_id": in.ToGroupID}
	if in.FromGroupID == in.ToGroupID {
		return nil, finish("group_transfer_student", fields, Malformedf("Source and target groups must differ"))
	}

	var alert models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// ascending id order for the two group locks
		firstID, secondID := in.FromGroupID, in.ToGroupID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}
		groups := make(map[uint]*models.Group, 2)
		for _, id := range []uint{firstID, secondID} {
			var g models.Group
			if err := lockScoped(tx, access.EntityGroup, scope, &g, id); err != nil {
				return notFoundOr(err, "Group not found")
			}
			groups[id] = &g
		}
		from, to := groups[in.FromGroupID], groups[in.ToGroupID]

		var student models.Student
		if err := access.FindScoped(tx.Preload("User"), access.EntityStudent, scope, &student, in.StudentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		member, err := isMember(tx, from.ID, student.ID)
		if err != nil {
			return err
		}
		if !member {
			return InvalidStatef("Student is not in group %s", from.Name)
		}

		if err := tx.Where("group_id = ? AND student_id = ?", from.ID, student.ID).Delete(&models.GroupMember{}).Error; err != nil {
			return errors.Wrap(err, "remove group member")
		}
		if _, err := admit(tx, to, &student); err != nil {
			return err
		}

		msg := fmt.Sprintf("Student %s transferred from %s to %s", student.User.FullName(), from.Name, to.Name)
		alert, err = s.sink.Alert(tx, to.BranchID, models.AlertStudentTransferred, msg, nil, ptrUint(actorID))
		return err
	})
	if err != nil {
		return nil, finish("group_transfer_student", fields, err)
	}
	s.sink.Publish(ctx, alert)
	return &alert, finish("group_transfer_student", fields, nil)
}

// ReassignTeacher gives a group a new teacher from the same branch, moves the
// group's upcoming lessons along and raises a teacher_changed alert.
func (s *EnrollmentService) ReassignTeacher(ctx context.Context, scope access.Scope, actorID, groupID, teacherID uint) (*models.Group, *models.NotificationAlert, error) {
	fields := logrus.Fields{"actor_id": actorID, "group_id": groupID, "teacher_id": teacherID}

	var group models.Group
	var alert models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityGroup, scope, &group, groupID); err != nil {
			return notFoundOr(err, "Group not found")
		}
		var teacher models.Teacher
		if err := access.FindScoped(tx.Preload("User"), access.EntityTeacher, scope, &teacher, teacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}
		if teacher.BranchID != group.BranchID {
			return InvalidStatef("Teacher belongs to a different branch")
		}
		if group.TeacherID != nil && *group.TeacherID == teacher.ID {
			return InvalidStatef("Teacher is already assigned to this group")
		}

		oldName := "Unknown"
		if group.TeacherID != nil {
			var old models.Teacher
			err := tx.Preload("User").First(&old, *group.TeacherID).Error
			switch {
			case err == nil:
				oldName = old.User.FullName()
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return errors.Wrap(err, "load previous teacher")
			}
		}

		if err := tx.Model(&group).Update("teacher_id", teacher.ID).Error; err != nil {
			return errors.Wrap(err, "update group teacher")
		}
		group.TeacherID = ptrUint(teacher.ID)
		if err := tx.Model(&models.Lesson{}).
			Where("group_id = ? AND start_time > ? AND is_cancelled = ?", group.ID, time.Now(), false).
			Update("teacher_id", teacher.ID).Error; err != nil {
			return errors.Wrap(err, "move upcoming lessons")
		}

		msg := fmt.Sprintf("Teacher for group %s changed from %s to %s", group.Name, oldName, teacher.User.FullName())
		var err error
		alert, err = s.sink.Alert(tx, group.BranchID, models.AlertTeacherChanged, msg, nil, ptrUint(actorID))
		return err
	})
	if err != nil {
		return nil, nil, finish("group_reassign_teacher", fields, err)
	}
	s.sink.Publish(ctx, alert)
	return &group, &alert, finish("group_reassign_teacher", fields, nil)
}

package services

import (
	"context"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminService covers account blocking and tenant freezes.
type AdminService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewAdminService(db *gorm.DB, sink *audit.Sink) *AdminService {
	return &AdminService{db: db, sink: sink}
}

// SetStudentBlocked blocks or unblocks the user account behind a student.
// A blocked user resolves to no scope and cannot log in.
func (s *AdminService) SetStudentBlocked(ctx context.Context, scope access.Scope, actorID, studentID uint, blocked bool) (*models.User, error) {
	workflow := "student_unblock"
	if blocked {
		workflow = "student_block"
	}
	fields := logrus.Fields{"actor_id": actorID, "student_id": studentID}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := lockScoped(tx, access.EntityStudent, scope, &student, studentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		if err := lockByID(tx, &user, student.UserID); err != nil {
			return notFoundOr(err, "User not found")
		}
		if user.IsBlocked == blocked {
			if blocked {
				return InvalidStatef("Student is already blocked")
			}
			return InvalidStatef("Student is not blocked")
		}
		if err := tx.Model(&user).Update("is_blocked", blocked).Error; err != nil {
			return errors.Wrap(err, "update user")
		}
		user.IsBlocked = blocked
		action := "UNBLOCK"
		if blocked {
			action = "BLOCK"
		}
		return s.sink.Activity(tx, actorID, action, "student", student.ID, map[string]interface{}{"user_id": user.ID})
	})
	if err != nil {
		return nil, finish(workflow, fields, err)
	}
	return &user, finish(workflow, fields, nil)
}

func (s *AdminService) FreezeOrganization(ctx context.Context, scope access.Scope, actorID, orgID uint) (*models.Organization, error) {
	return s.setOrganizationStatus(ctx, scope, actorID, orgID, models.OrganizationFrozen)
}

func (s *AdminService) UnfreezeOrganization(ctx context.Context, scope access.Scope, actorID, orgID uint) (*models.Organization, error) {
	return s.setOrganizationStatus(ctx, scope, actorID, orgID, models.OrganizationActive)
}

func (s *AdminService) setOrganizationStatus(ctx context.Context, scope access.Scope, actorID, orgID uint, to models.OrganizationStatus) (*models.Organization, error) {
	workflow := "organization_unfreeze"
	action := "unfreeze_organization"
	if to == models.OrganizationFrozen {
		workflow = "organization_freeze"
		action = "freeze_organization"
	}
	fields := logrus.Fields{"actor_id": actorID, "organization_id": orgID}
	if !scope.IsGlobal() {
		return nil, finish(workflow, fields, Deniedf("Only superadmin can change organization status"))
	}

	var org models.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityOrganization, scope, &org, orgID); err != nil {
			return notFoundOr(err, "Organization not found")
		}
		if org.Status == to {
			return InvalidStatef("Organization is already %s", to)
		}
		old := org.Status
		if err := tx.Model(&org).Update("status", to).Error; err != nil {
			return errors.Wrap(err, "update organization")
		}
		org.Status = to
		return s.sink.SuperadminAction(tx, actorID, action, map[string]interface{}{
			"organization_id": org.ID,
			"name":            org.Name,
			"old_status":      old,
			"new_status":      to,
		})
	})
	if err != nil {
		return nil, finish(workflow, fields, err)
	}
	return &org, finish(workflow, fields, nil)
}

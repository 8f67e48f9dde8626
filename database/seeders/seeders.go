// Package seeders loads a demo tenant for local development.
package seeders

import (
	"time"

	"educenter_go/models"
	"educenter_go/services"
	"educenter_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// SeedAll inserts the demo data unless an organization already exists.
func SeedAll(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Organization{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count organizations")
	}
	if count > 0 {
		logrus.Info("database already seeded, skipping")
		return nil
	}

	hash, err := utils.HashPassword(DemoPassword)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := seedGradeRanges(tx); err != nil {
			return err
		}

		org := models.Organization{Name: "Demo Academy", Status: models.OrganizationActive, Tariff: models.TariffPro, MaxStudentsPerGroup: 15}
		if err := tx.Create(&org).Error; err != nil {
			return errors.Wrap(err, "organization")
		}
		campus := models.Branch{OrganizationID: org.ID, Name: "Main Campus", Code: "DEMO-MAIN", Status: true}
		east := models.Branch{OrganizationID: org.ID, Name: "East Campus", Code: "DEMO-EAST", Status: true}
		for _, b := range []*models.Branch{&campus, &east} {
			if err := tx.Create(b).Error; err != nil {
				return errors.Wrapf(err, "branch %s", b.Code)
			}
		}

		newUser := func(username string, role models.Role, orgID, branchID *uint) (models.User, error) {
			u := models.User{
				Username:       username,
				Password:       hash,
				Email:          username + "@demo.local",
				FirstName:      username,
				Role:           role,
				OrganizationID: orgID,
				BranchID:       branchID,
				Status:         "active",
			}
			return u, errors.Wrapf(tx.Create(&u).Error, "user %s", username)
		}

		if _, err := newUser("superadmin", models.RoleSuperadmin, nil, nil); err != nil {
			return err
		}
		staff := []struct {
			name     string
			role     models.Role
			branchID *uint
		}{
			{"director", models.RoleDirector, &campus.ID},
			{"manager", models.RoleManager, &campus.ID},
			{"admin", models.RoleAdmin, nil},
			{"cashier", models.RoleStaff, &campus.ID},
			{"parent", models.RoleParent, &campus.ID},
		}
		for _, s := range staff {
			if _, err := newUser(s.name, s.role, &org.ID, s.branchID); err != nil {
				return err
			}
		}

		tu, err := newUser("teacher", models.RoleTeacher, &org.ID, &campus.ID)
		if err != nil {
			return err
		}
		teacher := models.Teacher{UserID: tu.ID, BranchID: campus.ID, HourlyRate: 25, GroupRate: 120}
		if err := tx.Create(&teacher).Error; err != nil {
			return errors.Wrap(err, "teacher")
		}

		su, err := newUser("student", models.RoleStudent, &org.ID, &campus.ID)
		if err != nil {
			return err
		}
		student := models.Student{UserID: su.ID, BranchID: campus.ID, Status: models.StudentActive}
		if err := tx.Create(&student).Error; err != nil {
			return errors.Wrap(err, "student")
		}

		group := models.Group{BranchID: campus.ID, TeacherID: &teacher.ID, Name: "General English A1", Subject: "English", MaxStudents: 12}
		if err := tx.Create(&group).Error; err != nil {
			return errors.Wrap(err, "group")
		}
		if err := tx.Create(&models.GroupMember{GroupID: group.ID, StudentID: student.ID, JoinedAt: time.Now()}).Error; err != nil {
			return errors.Wrap(err, "group member")
		}

		tomorrow := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
		lesson := models.Lesson{GroupID: group.ID, TeacherID: teacher.ID, BranchID: campus.ID, StartTime: tomorrow, Duration: 90}
		if err := tx.Create(&lesson).Error; err != nil {
			return errors.Wrap(err, "lesson")
		}

		loyalty := models.LoyaltyBranch{BranchID: campus.ID, OrganizationID: org.ID, Name: "Main Campus Rewards", PointsMultiplier: 1, Status: models.LoyaltyActive, IsPrimary: true}
		if err := tx.Create(&loyalty).Error; err != nil {
			return errors.Wrap(err, "loyalty branch")
		}

		logrus.WithFields(logrus.Fields{
			"organization": org.Name,
			"branches":     2,
			"password":     DemoPassword,
		}).Info("demo data seeded")
		return nil
	})
}

func seedGradeRanges(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&models.ExamGradeRange{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	ranges := append([]models.ExamGradeRange(nil), services.DefaultGradeRanges...)
	return errors.Wrap(tx.Create(&ranges).Error, "grade ranges")
}

package dbtest

import (
	"fmt"
	"testing"
	"time"

	"educenter_go/models"

	"gorm.io/gorm"
)

// World is a small two-tenant dataset:
//
//	Org:  BranchA, BranchB
//	Org2: BranchC
//
// GroupA (BranchA, TeacherA, capacity 3) has StudentA1 and StudentA2.
// GroupB (BranchB, TeacherB) has StudentB1. StudentA3 is in BranchA but in
// no group. Each group has one lesson that started an hour ago.
type World struct {
	Org, Org2                       models.Organization
	BranchA, BranchB, BranchC       models.Branch
	Superadmin, DirectorA, OrgAdmin models.User
	TeacherA, TeacherA2, TeacherB   models.Teacher
	StudentA1, StudentA2, StudentA3 models.Student
	StudentB1, StudentC1            models.Student
	GroupA, GroupB                  models.Group
	LessonA, LessonB                models.Lesson
}

// Create inserts v or fails the test.
func Create(t testing.TB, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func uintPtr(v uint) *uint { return &v }

// Seed builds World in db.
func Seed(t testing.TB, db *gorm.DB) *World {
	t.Helper()
	w := &World{}

	w.Org = models.Organization{Name: "North School", Status: models.OrganizationActive, Tariff: models.TariffPro, MaxStudentsPerGroup: 20}
	w.Org2 = models.Organization{Name: "South School", Status: models.OrganizationActive, Tariff: models.TariffBasic, MaxStudentsPerGroup: 20}
	Create(t, db, &w.Org)
	Create(t, db, &w.Org2)

	w.BranchA = models.Branch{OrganizationID: w.Org.ID, Name: "Central", Code: "N-CEN", Status: true}
	w.BranchB = models.Branch{OrganizationID: w.Org.ID, Name: "Riverside", Code: "N-RIV", Status: true}
	w.BranchC = models.Branch{OrganizationID: w.Org2.ID, Name: "Harbor", Code: "S-HAR", Status: true}
	Create(t, db, &w.BranchA)
	Create(t, db, &w.BranchB)
	Create(t, db, &w.BranchC)

	w.Superadmin = user(t, db, "root", models.RoleSuperadmin, nil, nil)
	w.DirectorA = user(t, db, "director.a", models.RoleDirector, &w.Org.ID, &w.BranchA.ID)
	w.OrgAdmin = user(t, db, "admin.org", models.RoleAdmin, &w.Org.ID, nil)

	w.TeacherA = teacher(t, db, "teacher.a", w.Org.ID, w.BranchA.ID)
	w.TeacherA2 = teacher(t, db, "teacher.a2", w.Org.ID, w.BranchA.ID)
	w.TeacherB = teacher(t, db, "teacher.b", w.Org.ID, w.BranchB.ID)

	w.StudentA1 = student(t, db, "student.a1", w.Org.ID, w.BranchA.ID)
	w.StudentA2 = student(t, db, "student.a2", w.Org.ID, w.BranchA.ID)
	w.StudentA3 = student(t, db, "student.a3", w.Org.ID, w.BranchA.ID)
	w.StudentB1 = student(t, db, "student.b1", w.Org.ID, w.BranchB.ID)
	w.StudentC1 = student(t, db, "student.c1", w.Org2.ID, w.BranchC.ID)

	w.GroupA = models.Group{BranchID: w.BranchA.ID, TeacherID: uintPtr(w.TeacherA.ID), Name: "Beginners A", Subject: "English", MaxStudents: 3}
	w.GroupB = models.Group{BranchID: w.BranchB.ID, TeacherID: uintPtr(w.TeacherB.ID), Name: "Intermediate B", Subject: "English", MaxStudents: 10}
	Create(t, db, &w.GroupA)
	Create(t, db, &w.GroupB)

	Member(t, db, w.GroupA.ID, w.StudentA1.ID)
	Member(t, db, w.GroupA.ID, w.StudentA2.ID)
	Member(t, db, w.GroupB.ID, w.StudentB1.ID)

	start := time.Now().Add(-time.Hour)
	w.LessonA = models.Lesson{GroupID: w.GroupA.ID, TeacherID: w.TeacherA.ID, BranchID: w.BranchA.ID, StartTime: start, Duration: 90}
	w.LessonB = models.Lesson{GroupID: w.GroupB.ID, TeacherID: w.TeacherB.ID, BranchID: w.BranchB.ID, StartTime: start, Duration: 90}
	Create(t, db, &w.LessonA)
	Create(t, db, &w.LessonB)

	return w
}

// Member adds a student to a group.
func Member(t testing.TB, db *gorm.DB, groupID, studentID uint) {
	t.Helper()
	Create(t, db, &models.GroupMember{GroupID: groupID, StudentID: studentID, JoinedAt: time.Now()})
}

func user(t testing.TB, db *gorm.DB, username string, role models.Role, orgID, branchID *uint) models.User {
	t.Helper()
	u := models.User{
		Username:       username,
		Password:       "x",
		Email:          fmt.Sprintf("%s@example.com", username),
		FirstName:      username,
		Role:           role,
		OrganizationID: orgID,
		BranchID:       branchID,
		Status:         "active",
	}
	Create(t, db, &u)
	return u
}

func teacher(t testing.TB, db *gorm.DB, username string, orgID, branchID uint) models.Teacher {
	t.Helper()
	u := user(t, db, username, models.RoleTeacher, &orgID, &branchID)
	tc := models.Teacher{UserID: u.ID, BranchID: branchID, HourlyRate: 20, GroupRate: 100}
	Create(t, db, &tc)
	tc.User = u
	return tc
}

func student(t testing.TB, db *gorm.DB, username string, orgID, branchID uint) models.Student {
	t.Helper()
	u := user(t, db, username, models.RoleStudent, &orgID, &branchID)
	s := models.Student{UserID: u.ID, BranchID: branchID, Status: models.StudentActive}
	Create(t, db, &s)
	s.User = u
	return s
}

package access

import (
	"fmt"

	"gorm.io/gorm"
)

// Entity names a filterable table.
type Entity string

const (
	EntityOrganization         Entity = "organizations"
	EntityBranch               Entity = "branches"
	EntityUser                 Entity = "users"
	EntityStudent              Entity = "students"
	EntityTeacher              Entity = "teachers"
	EntityGroup                Entity = "study_groups"
	EntityGroupMember          Entity = "group_members"
	EntityLesson               Entity = "lessons"
	EntityAttendance           Entity = "attendances"
	EntityAttendanceCorrection Entity = "attendance_corrections"
	EntityExam                 Entity = "exams"
	EntityExamResult           Entity = "exam_results"
	EntityStudentPayment       Entity = "student_payments"
	EntityTeacherPayment       Entity = "teacher_payments"
	EntityStaffPayment         Entity = "staff_payments"
	EntityWallet               Entity = "wallets"
	EntityLoyaltyBranch        Entity = "loyalty_branches"
	EntityLoyaltyPoint         Entity = "loyalty_points"
	EntityDocument             Entity = "document_approvals"
	EntityAlert                Entity = "notification_alerts"
	EntitySuperadminAudit      Entity = "superadmin_audit_logs"
	EntityHomework             Entity = "homework"
	EntityTeacherPortfolio     Entity = "teacher_portfolios"
	EntityPaymentDiscount      Entity = "payment_discounts"
	EntityFinanceReport        Entity = "finance_reports"
)

// Table is the SQL table behind the entity.
func (e Entity) Table() string { return string(e) }

// Predicate is a WHERE fragment. All means no restriction, Deny means no rows.
type Predicate struct {
	SQL  string
	Args []interface{}
	Deny bool
	All  bool
}

func deny() Predicate { return Predicate{Deny: true} }

func where(sql string, args ...interface{}) Predicate {
	return Predicate{SQL: sql, Args: args}
}

// Sub-selects shared by several chains. Each takes one "%s" for the branch
// condition.
const (
	groupsInBranch  = "SELECT id FROM study_groups WHERE branch_id %s"
	lessonsInBranch = "SELECT id FROM lessons WHERE branch_id %s"
)

// branchPath returns the predicate template that reaches a branch column for
// the entity. ok is false for entities that are not branch-owned.
func branchPath(e Entity) (tmpl string, ok bool) {
	t := e.Table()
	switch e {
	case EntityStudent, EntityTeacher, EntityGroup, EntityLesson,
		EntityStudentPayment, EntityTeacherPayment, EntityStaffPayment,
		EntityLoyaltyBranch, EntityDocument, EntityAlert,
		EntityPaymentDiscount, EntityFinanceReport:
		return t + ".branch_id %s", true
	case EntityAttendance:
		return t + ".lesson_id IN (" + lessonsInBranch + ")", true
	case EntityExam, EntityGroupMember, EntityHomework:
		return t + ".group_id IN (" + groupsInBranch + ")", true
	case EntityExamResult:
		return t + ".exam_id IN (SELECT id FROM exams WHERE group_id IN (" + groupsInBranch + "))", true
	case EntityWallet, EntityTeacherPortfolio:
		return t + ".teacher_id IN (SELECT id FROM teachers WHERE branch_id %s)", true
	case EntityLoyaltyPoint:
		return t + ".loyalty_branch_id IN (SELECT id FROM loyalty_branches WHERE branch_id %s)", true
	case EntityAttendanceCorrection:
		return t + ".original_attendance_id IN (SELECT id FROM attendances WHERE lesson_id IN (" + lessonsInBranch + "))", true
	}
	return "", false
}

// Filter returns the visibility predicate for entity under scope. The result
// depends only on its inputs.
func Filter(e Entity, s Scope) Predicate {
	if e == EntitySuperadminAudit {
		if s.Kind == KindGlobal {
			return Predicate{All: true}
		}
		return deny()
	}

	switch s.Kind {
	case KindGlobal:
		return Predicate{All: true}
	case KindOrganization:
		return orgFilter(e, s.OrganizationID)
	case KindBranch:
		return branchFilter(e, s.BranchID)
	case KindSelf:
		return selfFilter(e, s)
	}
	return deny()
}

func orgFilter(e Entity, orgID uint) Predicate {
	t := e.Table()
	switch e {
	case EntityOrganization:
		return where(t+".id = ?", orgID)
	case EntityBranch:
		return where(t+".organization_id = ?", orgID)
	case EntityUser:
		return where("("+t+".organization_id = ? OR "+t+".branch_id IN (SELECT id FROM branches WHERE organization_id = ?))", orgID, orgID)
	}
	tmpl, ok := branchPath(e)
	if !ok {
		return deny()
	}
	return where(fmt.Sprintf(tmpl, "IN (SELECT id FROM branches WHERE organization_id = ?)"), orgID)
}

func branchFilter(e Entity, branchID uint) Predicate {
	t := e.Table()
	switch e {
	case EntityOrganization:
		return where(t+".id IN (SELECT organization_id FROM branches WHERE id = ?)", branchID)
	case EntityBranch:
		return where(t+".id = ?", branchID)
	case EntityUser:
		return where(t+".branch_id = ?", branchID)
	}
	tmpl, ok := branchPath(e)
	if !ok {
		return deny()
	}
	return where(fmt.Sprintf(tmpl, "= ?"), branchID)
}

func selfFilter(e Entity, s Scope) Predicate {
	switch {
	case s.TeacherID != 0:
		return teacherSelf(e, s.TeacherID, s.UserID)
	case s.StudentID != 0:
		return studentSelf(e, s.StudentID, s.UserID)
	}
	return deny()
}

const ownGroups = "SELECT id FROM study_groups WHERE teacher_id = ?"

func teacherSelf(e Entity, teacherID, userID uint) Predicate {
	t := e.Table()
	switch e {
	case EntityTeacher:
		return where(t+".id = ?", teacherID)
	case EntityUser:
		return where(t+".id = ?", userID)
	case EntityLesson, EntityTeacherPayment, EntityWallet, EntityHomework, EntityTeacherPortfolio:
		return where(t+".teacher_id = ?", teacherID)
	case EntityGroup:
		return where(t+".teacher_id = ?", teacherID)
	case EntityGroupMember, EntityExam:
		return where(t+".group_id IN ("+ownGroups+")", teacherID)
	case EntityAttendance:
		return where(t+".lesson_id IN (SELECT id FROM lessons WHERE teacher_id = ?)", teacherID)
	case EntityExamResult:
		return where(t+".exam_id IN (SELECT id FROM exams WHERE group_id IN ("+ownGroups+"))", teacherID)
	case EntityStudent:
		return where(t+".id IN (SELECT student_id FROM group_members WHERE group_id IN ("+ownGroups+"))", teacherID)
	}
	return deny()
}

const memberGroups = "SELECT group_id FROM group_members WHERE student_id = ?"

func studentSelf(e Entity, studentID, userID uint) Predicate {
	t := e.Table()
	switch e {
	case EntityStudent:
		return where(t+".id = ?", studentID)
	case EntityUser:
		return where(t+".id = ?", userID)
	case EntityAttendance, EntityExamResult, EntityStudentPayment, EntityPaymentDiscount:
		return where(t+".student_id = ?", studentID)
	case EntityGroup:
		return where(t+".id IN ("+memberGroups+")", studentID)
	case EntityLesson, EntityExam, EntityHomework:
		return where(t+".group_id IN ("+memberGroups+")", studentID)
	case EntityLoyaltyPoint:
		return where(t+".user_id = ?", userID)
	}
	return deny()
}

// Apply is a gorm scope that restricts a query to what scope may see.
func Apply(e Entity, s Scope) func(*gorm.DB) *gorm.DB {
	p := Filter(e, s)
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case p.All:
			return db
		case p.Deny:
			return db.Where("1 = 0")
		}
		return db.Where(p.SQL, p.Args...)
	}
}

// FindScoped loads the row with the given id into dest, or returns
// gorm.ErrRecordNotFound when it does not exist or lies outside scope.
// Pass a db already carrying clause.Locking to lock the row.
func FindScoped(db *gorm.DB, e Entity, s Scope, dest interface{}, id uint) error {
	return db.Scopes(Apply(e, s)).Where(e.Table()+".id = ?", id).First(dest).Error
}

// Visible reports whether the row with id is inside scope.
func Visible(db *gorm.DB, e Entity, s Scope, id uint) (bool, error) {
	var n int64
	err := db.Table(e.Table()).Scopes(Apply(e, s)).Where(e.Table()+".id = ?", id).Count(&n).Error
	return n > 0, err
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"
	"educenter_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FinanceService owns the student, teacher and staff payment state machines
// and keeps teacher wallets derived from them.
type FinanceService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewFinanceService(db *gorm.DB, sink *audit.Sink) *FinanceService {
	return &FinanceService{db: db, sink: sink}
}

type StudentPaymentInput struct {
	StudentID     uint                 `json:"student_id" validate:"required"`
	Amount        float64              `json:"amount" validate:"required,gt=0"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	ReceiptNumber string               `json:"receipt_number" validate:"max=50"`
	Notes         string               `json:"notes"`
}

func (s *FinanceService) CreateStudentPayment(ctx context.Context, scope access.Scope, actorID uint, in StudentPaymentInput) (*models.StudentPayment, error) {
	fields := logrus.Fields{"actor_id": actorID, "student_id": in.StudentID}
	if in.Amount <= 0 {
		return nil, finish("student_payment_create", fields, Malformedf("Amount must be greater than 0"))
	}
	receipt := strings.TrimSpace(in.ReceiptNumber)
	if receipt == "" {
		suffix, err := utils.GenerateRandomString(10)
		if err != nil {
			return nil, finish("student_payment_create", fields, errors.Wrap(err, "generate receipt number"))
		}
		receipt = "RCP-" + time.Now().Format("20060102") + "-" + strings.ToUpper(suffix)
	}
	method := in.PaymentMethod
	if method == "" {
		method = models.MethodCash
	}

	var p models.StudentPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := access.FindScoped(tx, access.EntityStudent, scope, &student, in.StudentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		p = models.StudentPayment{
			StudentID:     student.ID,
			BranchID:      student.BranchID,
			Amount:        round2(in.Amount),
			PaymentMethod: method,
			ReceiptNumber: receipt,
			Status:        models.PaymentPending,
			Notes:         in.Notes,
		}
		if err := tx.Create(&p).Error; err != nil {
			return dbErr(err, "Receipt number already exists", "create student payment")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "student_payment", p.ID,
			map[string]interface{}{"amount": p.Amount, "receipt_number": p.ReceiptNumber})
	})
	if err != nil {
		return nil, finish("student_payment_create", fields, err)
	}
	fields["payment_id"] = p.ID
	return &p, finish("student_payment_create", fields, nil)
}

// ApproveStudentPayment completes a pending payment and reconciles the
// student's running totals.
func (s *FinanceService) ApproveStudentPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.StudentPayment, error) {
	fields := logrus.Fields{"actor_id": actorID, "payment_id": paymentID}
	var p models.StudentPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityStudentPayment, scope, &p, paymentID); err != nil {
			return notFoundOr(err, "Payment not found")
		}
		if p.Status != models.PaymentPending {
			return InvalidStatef("Payment is not pending")
		}
		var student models.Student
		if err := lockByID(tx, &student, p.StudentID); err != nil {
			return notFoundOr(err, "Student not found")
		}

		now := time.Now()
		if err := tx.Model(&p).Updates(map[string]interface{}{
			"status":      models.PaymentCompleted,
			"approved_by": actorID,
			"paid_at":     now,
		}).Error; err != nil {
			return errors.Wrap(err, "update student payment")
		}
		p.Status = models.PaymentCompleted
		p.ApprovedBy = ptrUint(actorID)
		p.PaidAt = &now

		paid := round2(student.TotalPaid + p.Amount)
		debt := round2(student.TotalDebt - p.Amount)
		if debt < 0 {
			debt = 0
		}
		if err := tx.Model(&student).Updates(map[string]interface{}{"total_paid": paid, "total_debt": debt}).Error; err != nil {
			return errors.Wrap(err, "reconcile student totals")
		}
		return s.sink.Activity(tx, actorID, "APPROVE", "student_payment", p.ID,
			map[string]interface{}{"amount": p.Amount, "student_id": student.ID, "total_paid": paid, "total_debt": debt})
	})
	if err != nil {
		return nil, finish("student_payment_approve", fields, err)
	}
	return &p, finish("student_payment_approve", fields, nil)
}

// RejectStudentPayment marks a pending payment failed.
func (s *FinanceService) RejectStudentPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint, reason string) (*models.StudentPayment, error) {
	fields := logrus.Fields{"actor_id": actorID, "payment_id": paymentID}
	var p models.StudentPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityStudentPayment, scope, &p, paymentID); err != nil {
			return notFoundOr(err, "Payment not found")
		}
		if p.Status != models.PaymentPending {
			return InvalidStatef("Payment is not pending")
		}
		if err := tx.Model(&p).Updates(map[string]interface{}{
			"status":           models.PaymentFailed,
			"rejection_reason": reason,
		}).Error; err != nil {
			return errors.Wrap(err, "update student payment")
		}
		p.Status = models.PaymentFailed
		p.RejectionReason = reason
		return s.sink.Activity(tx, actorID, "REJECT", "student_payment", p.ID, map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, finish("student_payment_reject", fields, err)
	}
	return &p, finish("student_payment_reject", fields, nil)
}

// parseMonth accepts YYYY-MM and returns the first day of that month in UTC.
func parseMonth(v string) (time.Time, error) {
	m, err := time.Parse("2006-01", strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, Malformedf("Month must be in YYYY-MM format")
	}
	return m.UTC(), nil
}

type TeacherPaymentInput struct {
	TeacherID     uint                 `json:"teacher_id" validate:"required"`
	Month         string               `json:"month" validate:"required"`
	HourlyAmount  float64              `json:"hourly_amount" validate:"gte=0"`
	GroupAmount   float64              `json:"group_amount" validate:"gte=0"`
	Bonus         float64              `json:"bonus" validate:"gte=0"`
	Penalty       float64              `json:"penalty" validate:"gte=0"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
}

func (s *FinanceService) CreateTeacherPayment(ctx context.Context, scope access.Scope, actorID uint, in TeacherPaymentInput) (*models.TeacherPayment, error) {
	fields := logrus.Fields{"actor_id": actorID, "teacher_id": in.TeacherID}
	month, err := parseMonth(in.Month)
	if err != nil {
		return nil, finish("teacher_payment_create", fields, err)
	}
	if in.HourlyAmount < 0 || in.GroupAmount < 0 || in.Bonus < 0 || in.Penalty < 0 {
		return nil, finish("teacher_payment_create", fields, Malformedf("Amounts cannot be negative"))
	}
	method := in.PaymentMethod
	if method == "" {
		method = models.MethodBank
	}

	var p models.TeacherPayment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var teacher models.Teacher
		if err := lockScoped(tx, access.EntityTeacher, scope, &teacher, in.TeacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}
		p = models.TeacherPayment{
			TeacherID:     teacher.ID,
			BranchID:      teacher.BranchID,
			Month:         month,
			HourlyAmount:  round2(in.HourlyAmount),
			GroupAmount:   round2(in.GroupAmount),
			Bonus:         round2(in.Bonus),
			Penalty:       round2(in.Penalty),
			Status:        models.PaymentPending,
			PaymentMethod: method,
			Notes:         in.Notes,
		}
		p.CalculateTotal()
		p.TotalAmount = round2(p.TotalAmount)
		if err := tx.Create(&p).Error; err != nil {
			return dbErr(err, "Payment for this teacher and month already exists", "create teacher payment")
		}
		if _, err := recomputeWalletTx(tx, teacher.ID); err != nil {
			return err
		}
		return s.sink.Activity(tx, actorID, "CREATE", "teacher_payment", p.ID,
			map[string]interface{}{"teacher_id": teacher.ID, "month": month.Format("2006-01"), "total_amount": p.TotalAmount})
	})
	if err != nil {
		return nil, finish("teacher_payment_create", fields, err)
	}
	fields["payment_id"] = p.ID
	return &p, finish("teacher_payment_create", fields, nil)
}

func (s *FinanceService) ApproveTeacherPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.TeacherPayment, error) {
	return s.moveTeacherPayment(ctx, scope, actorID, paymentID, models.PaymentPending, models.PaymentApproved, "")
}

// RejectTeacherPayment keeps the reason in Notes.
func (s *FinanceService) RejectTeacherPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint, reason string) (*models.TeacherPayment, error) {
	return s.moveTeacherPayment(ctx, scope, actorID, paymentID, models.PaymentPending, models.PaymentRejected, reason)
}

// MarkTeacherPaymentPaid pays an approved payment and refreshes the wallet in
// the same transaction.
func (s *FinanceService) MarkTeacherPaymentPaid(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.TeacherPayment, error) {
	return s.moveTeacherPayment(ctx, scope, actorID, paymentID, models.PaymentApproved, models.PaymentPaid, "")
}

func (s *FinanceService) moveTeacherPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint, from, to models.PaymentStatus, reason string) (*models.TeacherPayment, error) {
	workflow := "teacher_payment_" + string(to)
	fields := logrus.Fields{"actor_id": actorID, "payment_id": paymentID}

	var p models.TeacherPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityTeacherPayment, scope, &p, paymentID); err != nil {
			return notFoundOr(err, "Payment not found")
		}
		if p.Status != from {
			return InvalidStatef("Payment is not %s", from)
		}
		var teacher models.Teacher
		if err := lockByID(tx, &teacher, p.TeacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}

		updates := map[string]interface{}{"status": to}
		switch to {
		case models.PaymentApproved:
			updates["approved_by"] = actorID
			p.ApprovedBy = ptrUint(actorID)
		case models.PaymentPaid:
			now := time.Now()
			updates["paid_date"] = now
			p.PaidDate = &now
		case models.PaymentRejected:
			if reason != "" {
				updates["notes"] = reason
				p.Notes = reason
			}
		}
		if err := tx.Model(&p).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update teacher payment")
		}
		p.Status = to

		if _, err := recomputeWalletTx(tx, teacher.ID); err != nil {
			return err
		}
		return s.sink.Activity(tx, actorID, strings.ToUpper(string(to)), "teacher_payment", p.ID,
			map[string]interface{}{"teacher_id": teacher.ID, "total_amount": p.TotalAmount, "reason": reason})
	})
	if err != nil {
		return nil, finish(workflow, fields, err)
	}
	return &p, finish(workflow, fields, nil)
}

type StaffPaymentInput struct {
	StaffMemberID uint    `json:"staff_member_id" validate:"required"`
	BranchID      uint    `json:"branch_id" validate:"required"`
	Month         string  `json:"month" validate:"required"`
	Position      string  `json:"position" validate:"omitempty,oneof=manager admin support other"`
	Salary        float64 `json:"salary" validate:"gt=0"`
	Bonus         float64 `json:"bonus" validate:"gte=0"`
}

func (s *FinanceService) CreateStaffPayment(ctx context.Context, scope access.Scope, actorID uint, in StaffPaymentInput) (*models.StaffPayment, error) {
	fields := logrus.Fields{"actor_id": actorID, "staff_member_id": in.StaffMemberID}
	month, err := parseMonth(in.Month)
	if err != nil {
		return nil, finish("staff_payment_create", fields, err)
	}
	if in.Salary <= 0 || in.Bonus < 0 {
		return nil, finish("staff_payment_create", fields, Malformedf("Salary must be greater than 0"))
	}
	position := in.Position
	if position == "" {
		position = "other"
	}

	var p models.StaffPayment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := access.FindScoped(tx, access.EntityBranch, scope, &branch, in.BranchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		var staff models.User
		if err := access.FindScoped(tx, access.EntityUser, scope, &staff, in.StaffMemberID); err != nil {
			return notFoundOr(err, "Staff member not found")
		}
		p = models.StaffPayment{
			StaffMemberID: staff.ID,
			BranchID:      branch.ID,
			Month:         month,
			Position:      position,
			Salary:        round2(in.Salary),
			Bonus:         round2(in.Bonus),
			TotalAmount:   round2(in.Salary + in.Bonus),
			Status:        models.PaymentPending,
		}
		if err := tx.Create(&p).Error; err != nil {
			return errors.Wrap(err, "create staff payment")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "staff_payment", p.ID,
			map[string]interface{}{"staff_member_id": staff.ID, "total_amount": p.TotalAmount})
	})
	if err != nil {
		return nil, finish("staff_payment_create", fields, err)
	}
	fields["payment_id"] = p.ID
	return &p, finish("staff_payment_create", fields, nil)
}

func (s *FinanceService) ApproveStaffPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.StaffPayment, error) {
	return s.moveStaffPayment(ctx, scope, actorID, paymentID, models.PaymentPending, models.PaymentApproved)
}

func (s *FinanceService) RejectStaffPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.StaffPayment, error) {
	return s.moveStaffPayment(ctx, scope, actorID, paymentID, models.PaymentPending, models.PaymentRejected)
}

func (s *FinanceService) MarkStaffPaymentPaid(ctx context.Context, scope access.Scope, actorID, paymentID uint) (*models.StaffPayment, error) {
	return s.moveStaffPayment(ctx, scope, actorID, paymentID, models.PaymentApproved, models.PaymentPaid)
}

func (s *FinanceService) moveStaffPayment(ctx context.Context, scope access.Scope, actorID, paymentID uint, from, to models.PaymentStatus) (*models.StaffPayment, error) {
	workflow := "staff_payment_" + string(to)
	fields := logrus.Fields{"actor_id": actorID, "payment_id": paymentID}

	var p models.StaffPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityStaffPayment, scope, &p, paymentID); err != nil {
			return notFoundOr(err, "Payment not found")
		}
		if p.Status != from {
			return InvalidStatef("Payment is not %s", from)
		}
		updates := map[string]interface{}{"status": to}
		switch to {
		case models.PaymentApproved:
			updates["approved_by"] = actorID
			p.ApprovedBy = ptrUint(actorID)
		case models.PaymentPaid:
			now := time.Now()
			updates["paid_date"] = now
			p.PaidDate = &now
		}
		if err := tx.Model(&p).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update staff payment")
		}
		p.Status = to
		return s.sink.Activity(tx, actorID, strings.ToUpper(string(to)), "staff_payment", p.ID,
			map[string]interface{}{"staff_member_id": p.StaffMemberID})
	})
	if err != nil {
		return nil, finish(workflow, fields, err)
	}
	return &p, finish(workflow, fields, nil)
}

// RecomputeWallet rebuilds one teacher's wallet from the payments table.
func (s *FinanceService) RecomputeWallet(ctx context.Context, scope access.Scope, teacherID uint) (*models.Wallet, error) {
	fields := logrus.Fields{"teacher_id": teacherID, "scope": scope.Kind.String()}
	var wallet *models.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var teacher models.Teacher
		if err := lockScoped(tx, access.EntityTeacher, scope, &teacher, teacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}
		w, err := recomputeWalletTx(tx, teacher.ID)
		wallet = w
		return err
	})
	if err != nil {
		return nil, finish("wallet_recompute", fields, err)
	}
	return wallet, finish("wallet_recompute", fields, nil)
}

// RecomputeAllWallets is the nightly job. Each teacher gets its own
// transaction so one failure does not hold the rest back.
func (s *FinanceService) RecomputeAllWallets(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Teacher{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "list teachers")
	}
	done := 0
	var firstErr error
	for _, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var teacher models.Teacher
			if err := lockByID(tx, &teacher, id); err != nil {
				return err
			}
			_, err := recomputeWalletTx(tx, teacher.ID)
			return err
		})
		if err != nil {
			logrus.WithError(err).WithField("teacher_id", id).Error("wallet recompute failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	logrus.WithFields(logrus.Fields{"teachers": len(ids), "recomputed": done}).Info("wallets recomputed")
	return done, firstErr
}

type statusTotal struct {
	Status models.PaymentStatus
	Total  float64
}

// recomputeWalletTx expects the teacher row to be locked by the caller.
func recomputeWalletTx(tx *gorm.DB, teacherID uint) (*models.Wallet, error) {
	var sums []statusTotal
	if err := tx.Model(&models.TeacherPayment{}).
		Select("status, COALESCE(SUM(total_amount), 0) AS total").
		Where("teacher_id = ?", teacherID).
		Group("status").
		Scan(&sums).Error; err != nil {
		return nil, errors.Wrap(err, "sum teacher payments")
	}

	var approved, paid, pending float64
	for _, s := range sums {
		switch s.Status {
		case models.PaymentApproved:
			approved = s.Total
		case models.PaymentPaid:
			paid = s.Total
		case models.PaymentPending:
			pending = s.Total
		}
	}
	earned := round2(approved + paid)
	paid = round2(paid)

	var wallet models.Wallet
	if err := lockWallet(tx, &wallet, teacherID); err != nil {
		return nil, err
	}
	wallet.TotalEarned = earned
	wallet.TotalPaid = paid
	wallet.TotalPending = round2(pending)
	wallet.Balance = round2(earned - paid)
	if err := tx.Save(&wallet).Error; err != nil {
		return nil, errors.Wrap(err, "save wallet")
	}
	if err := tx.Model(&models.Teacher{}).Where("id = ?", teacherID).Update("total_earned", earned).Error; err != nil {
		return nil, errors.Wrap(err, "mirror teacher earnings")
	}
	return &wallet, nil
}

func lockWallet(tx *gorm.DB, wallet *models.Wallet, teacherID uint) error {
	err := lockByField(tx, wallet, "teacher_id", teacherID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		*wallet = models.Wallet{TeacherID: teacherID}
		return errors.Wrap(tx.Create(wallet).Error, "create wallet")
	}
	return errors.Wrap(err, "load wallet")
}

// Debtors returns students in scope that still owe money, largest debt first.
func (s *FinanceService) Debtors(ctx context.Context, scope access.Scope) ([]models.Student, error) {
	var students []models.Student
	err := s.db.WithContext(ctx).
		Scopes(access.Apply(access.EntityStudent, scope)).
		Preload("User").Preload("Branch").
		Where("students.total_debt > ?", 0).
		Order("students.total_debt DESC, students.id").
		Find(&students).Error
	return students, errors.Wrap(err, "load debtors")
}

// RemindDebtors raises one payment-due alert per branch that has students
// with outstanding debt. It returns the number of alerts raised.
func (s *FinanceService) RemindDebtors(ctx context.Context) (int, error) {
	type branchDebt struct {
		BranchID uint
		Students int64
		Total    float64
	}
	var rows []branchDebt
	if err := s.db.WithContext(ctx).Model(&models.Student{}).
		Select("branch_id, COUNT(*) AS students, SUM(total_debt) AS total").
		Where("total_debt > ? AND status = ?", 0, models.StudentActive).
		Group("branch_id").
		Order("branch_id").
		Scan(&rows).Error; err != nil {
		return 0, finish("payment_due_reminder", nil, errors.Wrap(err, "sum debts by branch"))
	}

	var alerts []models.NotificationAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			a, err := s.sink.Alert(tx, r.BranchID, models.AlertPaymentDue,
				fmt.Sprintf("%d students owe %.2f in total", r.Students, round2(r.Total)), nil, nil)
			if err != nil {
				return err
			}
			alerts = append(alerts, a)
		}
		return nil
	})
	if err != nil {
		return 0, finish("payment_due_reminder", nil, err)
	}
	s.sink.Publish(ctx, alerts...)
	return len(alerts), finish("payment_due_reminder", logrus.Fields{"alerts": len(alerts)}, nil)
}

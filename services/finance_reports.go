package services

import (
	"context"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DiscountInput struct {
	StudentID    uint                `json:"student_id" validate:"required"`
	DiscountType models.DiscountType `json:"discount_type" validate:"required"`
	Value        float64             `json:"value" validate:"required,gt=0"`
	Reason       string              `json:"reason" validate:"notblank"`
}

// ApplyDiscount takes a percentage of the student's current debt, or a fixed
// amount, off that debt. The reduction never drives debt below zero.
func (s *FinanceService) ApplyDiscount(ctx context.Context, scope access.Scope, actorID uint, in DiscountInput) (*models.PaymentDiscount, error) {
	fields := logrus.Fields{"actor_id": actorID, "student_id": in.StudentID, "discount_type": in.DiscountType}
	switch {
	case in.DiscountType != models.DiscountPercentage && in.DiscountType != models.DiscountFixed:
		return nil, finish("discount_apply", fields, Malformedf("Invalid discount type"))
	case in.Value <= 0:
		return nil, finish("discount_apply", fields, Malformedf("Value must be greater than 0"))
	case in.DiscountType == models.DiscountPercentage && in.Value > 100:
		return nil, finish("discount_apply", fields, Malformedf("Percentage cannot exceed 100"))
	case strings.TrimSpace(in.Reason) == "":
		return nil, finish("discount_apply", fields, Malformedf("Reason is required"))
	}

	var d models.PaymentDiscount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := lockScoped(tx, access.EntityStudent, scope, &student, in.StudentID); err != nil {
			return notFoundOr(err, "Student not found")
		}
		if student.TotalDebt <= 0 {
			return InvalidStatef("Student has no debt")
		}
		amount := round2(in.Value)
		if in.DiscountType == models.DiscountPercentage {
			amount = round2(student.TotalDebt * in.Value / 100)
		}
		if amount > student.TotalDebt {
			amount = student.TotalDebt
		}
		debt := round2(student.TotalDebt - amount)
		if err := tx.Model(&student).Update("total_debt", debt).Error; err != nil {
			return errors.Wrap(err, "reduce debt")
		}
		d = models.PaymentDiscount{
			StudentID:    student.ID,
			BranchID:     student.BranchID,
			DiscountType: in.DiscountType,
			Value:        round2(in.Value),
			Amount:       amount,
			Reason:       strings.TrimSpace(in.Reason),
			AppliedBy:    actorID,
		}
		if err := tx.Create(&d).Error; err != nil {
			return errors.Wrap(err, "create discount")
		}
		return s.sink.Activity(tx, actorID, "DISCOUNT", "student", student.ID,
			map[string]interface{}{"discount_id": d.ID, "amount": amount, "old_debt": student.TotalDebt, "new_debt": debt})
	})
	if err != nil {
		return nil, finish("discount_apply", fields, err)
	}
	fields["discount_id"] = d.ID
	return &d, finish("discount_apply", fields, nil)
}

type FinanceReportInput struct {
	BranchID      uint              `json:"branch_id" validate:"required"`
	Date          string            `json:"date" validate:"required"`
	ReportType    models.ReportType `json:"report_type" validate:"required"`
	OtherExpenses float64           `json:"other_expenses" validate:"gte=0"`
}

// reportWindow is the half-open period a report dated day covers: the day
// itself, the ISO week up to it, or the month up to it.
func reportWindow(kind models.ReportType, day time.Time) (from, to time.Time, ok bool) {
	to = day.AddDate(0, 0, 1)
	switch kind {
	case models.ReportDaily:
		return day, to, true
	case models.ReportWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), to, true
	case models.ReportMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()), to, true
	}
	return time.Time{}, time.Time{}, false
}

// GenerateFinanceReport computes a branch report from the payment ledger and
// stores it. Generating the same (branch, date, type) again replaces it.
func (s *FinanceService) GenerateFinanceReport(ctx context.Context, scope access.Scope, actorID uint, in FinanceReportInput) (*models.FinanceReport, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID, "report_type": in.ReportType}
	day, err := time.ParseInLocation("2006-01-02", in.Date, time.Local)
	if err != nil {
		return nil, finish("finance_report", fields, Malformedf("Invalid date format. Use YYYY-MM-DD"))
	}
	from, to, ok := reportWindow(in.ReportType, day)
	if !ok {
		return nil, finish("finance_report", fields, Malformedf("Invalid report type"))
	}
	if in.OtherExpenses < 0 {
		return nil, finish("finance_report", fields, Malformedf("Expenses cannot be negative"))
	}

	var report models.FinanceReport
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := access.FindScoped(tx, access.EntityBranch, scope, &branch, in.BranchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		l, err := sumLedger(tx, scope, branch.ID, from, to)
		if err != nil {
			return err
		}
		l.OtherExpenses = in.OtherExpenses
		l.settle()

		err = tx.Where("branch_id = ? AND report_date = ? AND report_type = ?", branch.ID, day, in.ReportType).
			First(&report).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			report = models.FinanceReport{BranchID: branch.ID, ReportDate: day, ReportType: in.ReportType}
		case err != nil:
			return errors.Wrap(err, "load finance report")
		}
		report.TotalStudentPayments = l.Income
		report.TeacherPayments = l.TeacherPayments
		report.StaffPayments = l.StaffPayments
		report.OtherExpenses = l.OtherExpenses
		report.Profit = l.Profit
		report.GeneratedBy = ptrUint(actorID)
		if err := tx.Save(&report).Error; err != nil {
			return dbErr(err, "Report is being generated concurrently", "save finance report")
		}
		return s.sink.Activity(tx, actorID, "GENERATE", "finance_report", report.ID,
			map[string]interface{}{"branch_id": branch.ID, "date": in.Date, "type": in.ReportType, "profit": report.Profit})
	})
	if err != nil {
		return nil, finish("finance_report", fields, err)
	}
	fields["report_id"] = report.ID
	return &report, finish("finance_report", fields, nil)
}

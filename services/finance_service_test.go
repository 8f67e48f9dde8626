package services

import (
	"strings"
	"testing"
	"time"

	"educenter_go/database/dbtest"
	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveStudentPaymentReconciles(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 150).Error)

	p, err := svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentA1.ID, Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.True(t, strings.HasPrefix(p.ReceiptNumber, "RCP-"))
	assert.Equal(t, f.w.BranchA.ID, p.BranchID)

	approved, err := svc.ApproveStudentPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, f.w.DirectorA.ID, *approved.ApprovedBy)
	assert.NotNil(t, approved.PaidAt)

	var st models.Student
	require.NoError(t, f.db.First(&st, f.w.StudentA1.ID).Error)
	assert.Equal(t, 100.0, st.TotalPaid)
	assert.Equal(t, 50.0, st.TotalDebt)

	// a second approval by someone else changes nothing
	_, err = svc.ApproveStudentPayment(f.ctx, f.global(), f.w.Superadmin.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not pending")
	var again models.StudentPayment
	require.NoError(t, f.db.First(&again, p.ID).Error)
	require.NotNil(t, again.ApprovedBy)
	assert.Equal(t, f.w.DirectorA.ID, *again.ApprovedBy)
	require.NotNil(t, again.PaidAt)
	assert.True(t, again.PaidAt.Equal(*approved.PaidAt))
	require.NoError(t, f.db.First(&st, f.w.StudentA1.ID).Error)
	assert.Equal(t, 100.0, st.TotalPaid)
	assert.Equal(t, 50.0, st.TotalDebt)

	// overpayment clamps debt at zero
	p2, err := svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentA1.ID, Amount: 80})
	require.NoError(t, err)
	_, err = svc.ApproveStudentPayment(f.ctx, scope, f.w.DirectorA.ID, p2.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.First(&st, f.w.StudentA1.ID).Error)
	assert.Equal(t, 180.0, st.TotalPaid)
	assert.Equal(t, 0.0, st.TotalDebt)
}

func TestStudentPaymentRejectAndConflicts(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)

	p, err := svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentA2.ID, Amount: 40, ReceiptNumber: "R-1"})
	require.NoError(t, err)

	_, err = svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentA1.ID, Amount: 10, ReceiptNumber: "R-1"})
	requireKind(t, err, KindConflict, "Receipt number already exists")

	_, err = svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentB1.ID, Amount: 10})
	requireKind(t, err, KindNotFound, "Student not found")

	_, err = svc.CreateStudentPayment(f.ctx, scope, f.w.DirectorA.ID, StudentPaymentInput{StudentID: f.w.StudentA1.ID, Amount: 0})
	requireKind(t, err, KindMalformed, "")

	rejected, err := svc.RejectStudentPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID, "bounced")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, rejected.Status)
	assert.Equal(t, "bounced", rejected.RejectionReason)

	_, err = svc.ApproveStudentPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not pending")

	var st models.Student
	require.NoError(t, f.db.First(&st, f.w.StudentA2.ID).Error)
	assert.Zero(t, st.TotalPaid)
}

func TestTeacherPaymentLifecycleKeepsWalletDerived(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)

	p, err := svc.CreateTeacherPayment(f.ctx, scope, f.w.DirectorA.ID, TeacherPaymentInput{
		TeacherID: f.w.TeacherA.ID, Month: "2026-09", HourlyAmount: 100, GroupAmount: 50, Bonus: 10, Penalty: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 155.0, p.TotalAmount)
	assert.Equal(t, models.MethodBank, p.PaymentMethod)

	wallet := func() models.Wallet {
		var w models.Wallet
		require.NoError(t, f.db.Where("teacher_id = ?", f.w.TeacherA.ID).First(&w).Error)
		return w
	}
	assert.Equal(t, 155.0, wallet().TotalPending)

	_, err = svc.CreateTeacherPayment(f.ctx, scope, f.w.DirectorA.ID, TeacherPaymentInput{TeacherID: f.w.TeacherA.ID, Month: "2026-09", HourlyAmount: 1})
	requireKind(t, err, KindConflict, "Payment for this teacher and month already exists")

	_, err = svc.CreateTeacherPayment(f.ctx, scope, f.w.DirectorA.ID, TeacherPaymentInput{TeacherID: f.w.TeacherA.ID, Month: "September"})
	requireKind(t, err, KindMalformed, "Month must be in YYYY-MM format")

	_, err = svc.MarkTeacherPaymentPaid(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not approved")

	_, err = svc.ApproveTeacherPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	require.NoError(t, err)
	w := wallet()
	assert.Equal(t, 155.0, w.TotalEarned)
	assert.Equal(t, 155.0, w.Balance)
	assert.Zero(t, w.TotalPending)

	paid, err := svc.MarkTeacherPaymentPaid(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)
	assert.NotNil(t, paid.PaidDate)
	w = wallet()
	assert.Equal(t, 155.0, w.TotalEarned)
	assert.Equal(t, 155.0, w.TotalPaid)
	assert.Zero(t, w.Balance)

	var teacher models.Teacher
	require.NoError(t, f.db.First(&teacher, f.w.TeacherA.ID).Error)
	assert.Equal(t, 155.0, teacher.TotalEarned)

	_, err = svc.MarkTeacherPaymentPaid(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not approved")
}

func TestRejectTeacherPayment(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.global()

	p, err := svc.CreateTeacherPayment(f.ctx, scope, f.w.Superadmin.ID, TeacherPaymentInput{TeacherID: f.w.TeacherB.ID, Month: "2026-08", HourlyAmount: 70})
	require.NoError(t, err)

	rejected, err := svc.RejectTeacherPayment(f.ctx, scope, f.w.Superadmin.ID, p.ID, "hours not confirmed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, rejected.Status)
	assert.Equal(t, "hours not confirmed", rejected.Notes)

	_, err = svc.ApproveTeacherPayment(f.ctx, scope, f.w.Superadmin.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not pending")

	var w models.Wallet
	require.NoError(t, f.db.Where("teacher_id = ?", f.w.TeacherB.ID).First(&w).Error)
	assert.Zero(t, w.TotalPending)
	assert.Zero(t, w.Balance)
}

func TestRecomputeWalletFormula(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)

	statuses := []struct {
		status models.PaymentStatus
		total  float64
	}{
		{models.PaymentPending, 10},
		{models.PaymentApproved, 20.25},
		{models.PaymentPaid, 30},
		{models.PaymentRejected, 40},
	}
	for i, s := range statuses {
		dbtest.Create(t, f.db, &models.TeacherPayment{
			TeacherID: f.w.TeacherA2.ID, BranchID: f.w.BranchA.ID,
			Month:  time.Date(2026, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
			Status: s.status, TotalAmount: s.total,
		})
	}

	_, err := svc.RecomputeWallet(f.ctx, f.branch(f.w.BranchB), f.w.TeacherA2.ID)
	requireKind(t, err, KindNotFound, "Teacher not found")

	for i := 0; i < 2; i++ {
		w, err := svc.RecomputeWallet(f.ctx, f.branch(f.w.BranchA), f.w.TeacherA2.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.25, w.TotalEarned)
		assert.Equal(t, 30.0, w.TotalPaid)
		assert.Equal(t, 10.0, w.TotalPending)
		assert.Equal(t, 20.25, w.Balance)
	}

	var wallets int64
	f.db.Model(&models.Wallet{}).Where("teacher_id = ?", f.w.TeacherA2.ID).Count(&wallets)
	assert.EqualValues(t, 1, wallets)

	n, err := svc.RecomputeAllWallets(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStaffPaymentStateMachine(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)

	p, err := svc.CreateStaffPayment(f.ctx, scope, f.w.DirectorA.ID, StaffPaymentInput{
		StaffMemberID: f.w.DirectorA.ID, BranchID: f.w.BranchA.ID, Month: "2026-10", Position: "manager", Salary: 1000, Bonus: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 1050.0, p.TotalAmount)

	_, err = svc.MarkStaffPaymentPaid(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not approved")

	_, err = svc.ApproveStaffPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	require.NoError(t, err)
	paid, err := svc.MarkStaffPaymentPaid(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)

	_, err = svc.RejectStaffPayment(f.ctx, scope, f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindInvalidState, "Payment is not pending")

	_, err = svc.ApproveStaffPayment(f.ctx, f.branch(f.w.BranchB), f.w.DirectorA.ID, p.ID)
	requireKind(t, err, KindNotFound, "Payment not found")
}

func TestDebtorsAreScoped(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 10).Error)
	require.NoError(t, f.db.Model(&f.w.StudentA2).Update("total_debt", 30).Error)
	require.NoError(t, f.db.Model(&f.w.StudentB1).Update("total_debt", 20).Error)

	all, err := svc.Debtors(f.ctx, f.global())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, f.w.StudentA2.ID, all[0].ID)

	branchA, err := svc.Debtors(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	assert.Len(t, branchA, 2)

	own, err := svc.Debtors(f.ctx, f.teacherSelf(f.w.TeacherB))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, f.w.StudentB1.ID, own[0].ID)
}

func TestRemindDebtorsRaisesOneAlertPerBranch(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 10).Error)
	require.NoError(t, f.db.Model(&f.w.StudentA2).Update("total_debt", 30.5).Error)
	require.NoError(t, f.db.Model(&f.w.StudentB1).Update("total_debt", 20).Error)
	require.NoError(t, f.db.Model(&f.w.StudentB1).Update("status", models.StudentInactive).Error)

	n, err := svc.RemindDebtors(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.pub.alerts, 1)
	a := f.pub.alerts[0]
	assert.Equal(t, models.AlertPaymentDue, a.AlertType)
	assert.Equal(t, f.w.BranchA.ID, a.BranchID)
	assert.Equal(t, "2 students owe 40.50 in total", a.Message)

	require.NoError(t, f.db.Model(&models.Student{}).Where("id IN ?", []uint{f.w.StudentA1.ID, f.w.StudentA2.ID}).Update("total_debt", 0).Error)
	n, err = svc.RemindDebtors(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyDiscount(t *testing.T) {
	f := newFixture(t)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 100).Error)

	d, err := svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentA1.ID, DiscountType: models.DiscountPercentage, Value: 10, Reason: "sibling"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, d.Amount)
	assert.Equal(t, f.w.BranchA.ID, d.BranchID)
	assert.Equal(t, f.w.DirectorA.ID, d.AppliedBy)

	var st models.Student
	require.NoError(t, f.db.First(&st, f.w.StudentA1.ID).Error)
	assert.Equal(t, 90.0, st.TotalDebt)

	// a fixed discount larger than the debt only clears the debt
	d, err = svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentA1.ID, DiscountType: models.DiscountFixed, Value: 200, Reason: "scholarship"})
	require.NoError(t, err)
	assert.Equal(t, 90.0, d.Amount)
	require.NoError(t, f.db.First(&st, f.w.StudentA1.ID).Error)
	assert.Equal(t, 0.0, st.TotalDebt)

	_, err = svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentA1.ID, DiscountType: models.DiscountFixed, Value: 5, Reason: "again"})
	requireKind(t, err, KindInvalidState, "Student has no debt")

	_, err = svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentB1.ID, DiscountType: models.DiscountFixed, Value: 5, Reason: "other branch"})
	requireKind(t, err, KindNotFound, "Student not found")

	_, err = svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentA1.ID, DiscountType: models.DiscountPercentage, Value: 150, Reason: "x"})
	requireKind(t, err, KindMalformed, "Percentage cannot exceed 100")

	_, err = svc.ApplyDiscount(f.ctx, scope, f.w.DirectorA.ID, DiscountInput{StudentID: f.w.StudentA1.ID, DiscountType: "voucher", Value: 5, Reason: "x"})
	requireKind(t, err, KindMalformed, "Invalid discount type")

	var n int64
	require.NoError(t, f.db.Model(&models.PaymentDiscount{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestReportWindow(t *testing.T) {
	day := time.Date(2030, 3, 13, 0, 0, 0, 0, time.UTC) // a Wednesday
	sunday := time.Date(2030, 3, 17, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kind models.ReportType
		day  time.Time
		from time.Time
	}{
		{models.ReportDaily, day, day},
		{models.ReportWeekly, day, time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC)},
		{models.ReportWeekly, sunday, time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC)},
		{models.ReportMonthly, day, time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		from, to, ok := reportWindow(tt.kind, tt.day)
		require.True(t, ok)
		assert.Equal(t, tt.from, from, "%s report for %s", tt.kind, tt.day.Format("2006-01-02"))
		assert.Equal(t, tt.day.AddDate(0, 0, 1), to)
	}
	_, _, ok := reportWindow("yearly", day)
	assert.False(t, ok)
}

func TestGenerateFinanceReport(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	svc := NewFinanceService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)
	today := time.Now().Format("2006-01-02")

	r, err := svc.GenerateFinanceReport(f.ctx, scope, f.w.DirectorA.ID, FinanceReportInput{BranchID: f.w.BranchA.ID, Date: today, ReportType: models.ReportMonthly, OtherExpenses: 30})
	require.NoError(t, err)
	assert.Equal(t, 200.0, r.TotalStudentPayments)
	assert.Equal(t, 120.0, r.TeacherPayments)
	assert.Equal(t, 30.0, r.OtherExpenses)
	assert.Equal(t, 50.0, r.Profit)

	again, err := svc.GenerateFinanceReport(f.ctx, scope, f.w.DirectorA.ID, FinanceReportInput{BranchID: f.w.BranchA.ID, Date: today, ReportType: models.ReportMonthly})
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)
	assert.Equal(t, 80.0, again.Profit)

	daily, err := svc.GenerateFinanceReport(f.ctx, f.global(), f.w.Superadmin.ID, FinanceReportInput{BranchID: f.w.BranchB.ID, Date: today, ReportType: models.ReportDaily})
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, daily.ID)
	assert.Equal(t, 70.0, daily.TotalStudentPayments)

	_, err = svc.GenerateFinanceReport(f.ctx, scope, f.w.DirectorA.ID, FinanceReportInput{BranchID: f.w.BranchB.ID, Date: today, ReportType: models.ReportDaily})
	requireKind(t, err, KindNotFound, "Branch not found")

	_, err = svc.GenerateFinanceReport(f.ctx, scope, f.w.DirectorA.ID, FinanceReportInput{BranchID: f.w.BranchA.ID, Date: "13/03/2030", ReportType: models.ReportDaily})
	requireKind(t, err, KindMalformed, "Invalid date format. Use YYYY-MM-DD")

	var n int64
	require.NoError(t, f.db.Model(&models.FinanceReport{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

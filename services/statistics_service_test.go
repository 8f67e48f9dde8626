package services

import (
	"testing"
	"time"

	"educenter_go/database/dbtest"
	"educenter_go/models"
	"educenter_go/services/access"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedActivity gives both org branches attendance, exams and money so every
// aggregate has something on each side of a scope boundary.
func seedActivity(t *testing.T, f *fixture) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 100).Error)
	require.NoError(t, f.db.Model(&f.w.StudentB1).Update("total_debt", 50).Error)

	dbtest.Create(t, f.db, &models.Attendance{LessonID: f.w.LessonA.ID, StudentID: f.w.StudentA1.ID, Status: models.AttendancePresent, HomeworkStatus: models.HomeworkDone})
	dbtest.Create(t, f.db, &models.Attendance{LessonID: f.w.LessonA.ID, StudentID: f.w.StudentA2.ID, Status: models.AttendanceAbsent, HomeworkStatus: models.HomeworkMissing})
	dbtest.Create(t, f.db, &models.Attendance{LessonID: f.w.LessonB.ID, StudentID: f.w.StudentB1.ID, Status: models.AttendancePresent, HomeworkStatus: models.HomeworkDone})

	examA := models.Exam{GroupID: f.w.GroupA.ID, Title: "Midterm A"}
	examB := models.Exam{GroupID: f.w.GroupB.ID, Title: "Midterm B"}
	dbtest.Create(t, f.db, &examA)
	dbtest.Create(t, f.db, &examB)
	dbtest.Create(t, f.db, &models.ExamResult{ExamID: examA.ID, StudentID: f.w.StudentA1.ID, Score: 80, Grade: "B"})
	dbtest.Create(t, f.db, &models.ExamResult{ExamID: examA.ID, StudentID: f.w.StudentA2.ID, Score: 90, Grade: "A"})
	dbtest.Create(t, f.db, &models.ExamResult{ExamID: examB.ID, StudentID: f.w.StudentB1.ID, Score: 60, Grade: "D"})

	dbtest.Create(t, f.db, &models.StudentPayment{StudentID: f.w.StudentA1.ID, BranchID: f.w.BranchA.ID, Amount: 200, ReceiptNumber: "S-A", Status: models.PaymentCompleted, PaidAt: &now})
	dbtest.Create(t, f.db, &models.StudentPayment{StudentID: f.w.StudentA2.ID, BranchID: f.w.BranchA.ID, Amount: 999, ReceiptNumber: "S-A-pending", Status: models.PaymentPending})
	dbtest.Create(t, f.db, &models.StudentPayment{StudentID: f.w.StudentB1.ID, BranchID: f.w.BranchB.ID, Amount: 70, ReceiptNumber: "S-B", Status: models.PaymentCompleted, PaidAt: &now})
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	dbtest.Create(t, f.db, &models.TeacherPayment{TeacherID: f.w.TeacherA.ID, BranchID: f.w.BranchA.ID, Month: month, TotalAmount: 120, Status: models.PaymentPaid, PaidDate: &now})
}

func (f *fixture) org(o models.Organization) access.Scope {
	return access.Scope{Kind: access.KindOrganization, Role: models.RoleAdmin, UserID: f.w.OrgAdmin.ID, OrganizationID: o.ID}
}

func TestStudentAndTeacherStatsAreScoped(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	require.NoError(t, f.db.Model(&f.w.TeacherA).Updates(map[string]interface{}{"performance_rating": 4.5, "total_earned": 300}).Error)
	require.NoError(t, f.db.Model(&f.w.TeacherB).Update("performance_rating", 5).Error)
	svc := NewStatisticsService(f.db, f.sink)

	a, err := svc.StudentStats(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Total)
	assert.Equal(t, int64(3), a.Active)
	assert.Equal(t, 100.0, a.TotalDebt)
	assert.Equal(t, 33.33, a.AvgDebt)

	all, err := svc.StudentStats(f.ctx, f.global())
	require.NoError(t, err)
	assert.Equal(t, int64(5), all.Total)
	assert.Equal(t, 150.0, all.TotalDebt)

	own, err := svc.StudentStats(f.ctx, f.teacherSelf(f.w.TeacherA))
	require.NoError(t, err)
	assert.Equal(t, int64(2), own.Total)

	ts, err := svc.TeacherStats(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	assert.Equal(t, int64(2), ts.Total)
	assert.Equal(t, 2.25, ts.AvgRating)
	assert.Equal(t, 300.0, ts.TotalEarned)
	require.Len(t, ts.Top, 2)
	assert.Equal(t, f.w.TeacherA.ID, ts.Top[0].TeacherID)
	assert.Equal(t, "teacher.a", ts.Top[0].Name)

	// the higher-rated teacher in branch B stays out of branch A's ranking
	for _, r := range ts.Top {
		assert.NotEqual(t, f.w.TeacherB.ID, r.TeacherID)
	}
}

func TestAttendanceAndExamStatsAreScoped(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	svc := NewStatisticsService(f.db, f.sink)
	since := time.Now().Add(-24 * time.Hour)

	a, err := svc.AttendanceStats(f.ctx, f.branch(f.w.BranchA), since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.Total)
	assert.Equal(t, int64(1), a.Present)
	assert.Equal(t, int64(1), a.Absent)
	assert.Equal(t, 50.0, a.Rate)

	b, err := svc.AttendanceStats(f.ctx, f.teacherSelf(f.w.TeacherB), since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Total)
	assert.Equal(t, 100.0, b.Rate)

	none, err := svc.AttendanceStats(f.ctx, f.branch(f.w.BranchA), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, none.Total)
	assert.Zero(t, none.Rate)

	ea, err := svc.ExamStats(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ea.TotalExams)
	assert.Equal(t, int64(2), ea.TotalResults)
	assert.Equal(t, 85.0, ea.AverageScore)
	assert.Equal(t, 90, ea.HighestScore)
	assert.Equal(t, map[string]int64{"A": 1, "B": 1}, ea.GradeDistribution)

	eo, err := svc.ExamStats(f.ctx, f.org(f.w.Org))
	require.NoError(t, err)
	assert.Equal(t, int64(2), eo.TotalExams)
	assert.Equal(t, int64(3), eo.TotalResults)

	ec, err := svc.ExamStats(f.ctx, f.org(f.w.Org2))
	require.NoError(t, err)
	assert.Zero(t, ec.TotalResults)
	assert.Empty(t, ec.GradeDistribution)
}

func TestGroupStatsAndOverview(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	svc := NewStatisticsService(f.db, f.sink)

	groups, err := svc.GroupStats(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, GroupStat{
		GroupID:        f.w.GroupA.ID,
		Name:           "Beginners A",
		Subject:        "English",
		Teacher:        "teacher.a",
		Students:       2,
		MaxStudents:    3,
		AttendanceRate: 50,
	}, groups[0])

	a, err := svc.Overview(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)
	assert.Equal(t, &Overview{Branches: 1, Students: 3, Teachers: 2, Groups: 1}, a)

	o, err := svc.Overview(f.ctx, f.org(f.w.Org))
	require.NoError(t, err)
	assert.Equal(t, &Overview{Branches: 2, Students: 4, Teachers: 3, Groups: 2}, o)
}

func TestFinancialStatsAndTrends(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	svc := NewStatisticsService(f.db, f.sink)
	now := time.Now().Add(time.Minute)
	since := now.Add(-24 * time.Hour)

	a, err := svc.FinancialStats(f.ctx, f.branch(f.w.BranchA), since, now)
	require.NoError(t, err)
	assert.Equal(t, 200.0, a.Income)
	assert.Equal(t, 120.0, a.TeacherPayments)
	assert.Equal(t, 120.0, a.Expenses)
	assert.Equal(t, 80.0, a.Profit)

	b, err := svc.FinancialStats(f.ctx, f.branch(f.w.BranchB), since, now)
	require.NoError(t, err)
	assert.Equal(t, 70.0, b.Income)
	assert.Zero(t, b.Expenses)

	trends, err := svc.MonthlyTrends(f.ctx, f.branch(f.w.BranchA), 2, now)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, now.Format("2006-01"), trends[1].Month)
	assert.Equal(t, 200.0, trends[1].Income)
	assert.Equal(t, 80.0, trends[1].Profit)
	assert.Equal(t, int64(3), trends[1].NewStudents)
	assert.Zero(t, trends[0].Income)

	_, err = svc.MonthlyTrends(f.ctx, f.branch(f.w.BranchA), 0, now)
	requireKind(t, err, KindMalformed, "months must be positive")
}

func TestDashboardFlagsAbsentStudents(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	// six more missed lessons puts A2 at seven absences
	for i := 0; i < 6; i++ {
		l := models.Lesson{GroupID: f.w.GroupA.ID, TeacherID: f.w.TeacherA.ID, BranchID: f.w.BranchA.ID, StartTime: time.Now().Add(-time.Duration(i+2) * 24 * time.Hour), Duration: 90}
		dbtest.Create(t, f.db, &l)
		dbtest.Create(t, f.db, &models.Attendance{LessonID: l.ID, StudentID: f.w.StudentA2.ID, Status: models.AttendanceAbsent, HomeworkStatus: models.HomeworkMissing})
	}
	svc := NewStatisticsService(f.db, f.sink)
	now := time.Now().Add(time.Minute)

	d, err := svc.Dashboard(f.ctx, f.branch(f.w.BranchA), 30, 3, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Overview.Students)
	assert.Equal(t, 200.0, d.FinancialOverview.Income)
	require.Len(t, d.MonthlyTrends, 3)

	require.Len(t, d.TeacherPerformance, 2)
	assert.Equal(t, f.w.TeacherA.ID, d.TeacherPerformance[0].TeacherID)
	assert.Equal(t, int64(7), d.TeacherPerformance[0].Lessons)
	assert.Zero(t, d.TeacherPerformance[1].Lessons)

	require.Len(t, d.StudentDropRate.AtRisk, 1)
	risk := d.StudentDropRate.AtRisk[0]
	assert.Equal(t, f.w.StudentA2.ID, risk.StudentID)
	assert.Equal(t, int64(7), risk.Absences)
	assert.Equal(t, "medium", risk.Risk)
	assert.Equal(t, 33.33, d.StudentDropRate.Rate)

	other, err := svc.Dashboard(f.ctx, f.branch(f.w.BranchB), 30, 1, now)
	require.NoError(t, err)
	assert.Empty(t, other.StudentDropRate.AtRisk)
	assert.Equal(t, 70.0, other.FinancialOverview.Income)

	_, err = svc.Dashboard(f.ctx, f.branch(f.w.BranchA), 0, 1, now)
	requireKind(t, err, KindMalformed, "days must be positive")
}

func TestHomeworkSummary(t *testing.T) {
	f := newFixture(t)
	seedActivity(t, f)
	hw := models.Homework{TeacherID: f.w.TeacherA.ID, GroupID: f.w.GroupA.ID, Title: "Essay", DueDate: time.Now().Add(-time.Minute), Status: HomeworkAssigned}
	hw.CreatedAt = time.Now().Add(-2 * time.Hour)
	dbtest.Create(t, f.db, &hw)
	svc := NewStatisticsService(f.db, f.sink)

	rows, err := svc.HomeworkSummary(f.ctx, f.teacherSelf(f.w.TeacherA), time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hw.ID, rows[0].ID)
	assert.Equal(t, "Beginners A", rows[0].GroupName)
	assert.Equal(t, int64(2), rows[0].Students)
	assert.Equal(t, int64(1), rows[0].Done)
	assert.Equal(t, int64(1), rows[0].Missing)
	assert.True(t, rows[0].Overdue)

	rows, err = svc.HomeworkSummary(f.ctx, f.teacherSelf(f.w.TeacherB), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTeacherPortfolio(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.w.TeacherA).Update("performance_rating", 4).Error)
	svc := NewStatisticsService(f.db, f.sink)
	self := f.teacherSelf(f.w.TeacherA)

	p, err := svc.TeacherPortfolio(f.ctx, self, f.w.TeacherA.ID)
	require.NoError(t, err)
	assert.Zero(t, p.ID)
	assert.Equal(t, int64(2), p.TotalStudentsTaught)
	assert.Equal(t, 4.0, p.AvgRating)
	assert.JSONEq(t, `[]`, string(p.Achievements))

	bio := " Ten years of IELTS prep "
	saved, err := svc.UpdatePortfolio(f.ctx, self, f.w.TeacherA.UserID, f.w.TeacherA.ID, PortfolioInput{Bio: &bio, Achievements: []string{"CELTA", " ", "IELTS 8.5"}})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "Ten years of IELTS prep", saved.Bio)

	dbtest.Member(t, f.db, f.w.GroupA.ID, f.w.StudentA3.ID)
	again, err := svc.TeacherPortfolio(f.ctx, f.branch(f.w.BranchA), f.w.TeacherA.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, int64(3), again.TotalStudentsTaught)
	assert.JSONEq(t, `["CELTA","IELTS 8.5"]`, string(again.Achievements))

	_, err = svc.TeacherPortfolio(f.ctx, f.teacherSelf(f.w.TeacherB), f.w.TeacherA.ID)
	requireKind(t, err, KindNotFound, "Teacher not found")
	_, err = svc.UpdatePortfolio(f.ctx, f.branch(f.w.BranchB), f.w.DirectorA.ID, f.w.TeacherA.ID, PortfolioInput{Bio: &bio})
	requireKind(t, err, KindNotFound, "Teacher not found")

	var n int64
	require.NoError(t, f.db.Model(&models.TeacherPortfolio{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

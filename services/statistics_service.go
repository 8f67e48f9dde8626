package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatisticsService answers read-only aggregate questions. Every query goes
// through access.Apply, so a caller only ever counts rows it could list.
type StatisticsService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewStatisticsService(db *gorm.DB, sink *audit.Sink) *StatisticsService {
	return &StatisticsService{db: db, sink: sink}
}

// refCount is one row of a GROUP BY id, COUNT(*) query.
type refCount struct {
	RefID uint
	N     int64
}

func countsByRef(rows []refCount) map[uint]int64 {
	m := make(map[uint]int64, len(rows))
	for _, r := range rows {
		m[r.RefID] = r.N
	}
	return m
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

type StudentStats struct {
	Total     int64   `json:"total"`
	Active    int64   `json:"active"`
	Inactive  int64   `json:"inactive"`
	Graduated int64   `json:"graduated"`
	TotalDebt float64 `json:"total_debt"`
	AvgDebt   float64 `json:"avg_debt"`
}

func (s *StatisticsService) StudentStats(ctx context.Context, scope access.Scope) (*StudentStats, error) {
	var rows []struct {
		Status models.StudentStatus
		N      int64
		Debt   float64
	}
	if err := s.db.WithContext(ctx).Model(&models.Student{}).
		Scopes(access.Apply(access.EntityStudent, scope)).
		Select("students.status AS status, COUNT(*) AS n, COALESCE(SUM(students.total_debt), 0) AS debt").
		Group("students.status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count students")
	}
	out := &StudentStats{}
	for _, r := range rows {
		out.Total += r.N
		out.TotalDebt += r.Debt
		switch r.Status {
		case models.StudentActive:
			out.Active = r.N
		case models.StudentInactive:
			out.Inactive = r.N
		case models.StudentGraduated:
			out.Graduated = r.N
		}
	}
	out.TotalDebt = round2(out.TotalDebt)
	if out.Total > 0 {
		out.AvgDebt = round2(out.TotalDebt / float64(out.Total))
	}
	return out, nil
}

type TeacherRank struct {
	TeacherID   uint    `json:"teacher_id"`
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	TotalEarned float64 `json:"total_earned"`
}

type TeacherStats struct {
	Total       int64         `json:"total"`
	AvgRating   float64       `json:"avg_rating"`
	TotalEarned float64       `json:"total_earned"`
	Top         []TeacherRank `json:"top_teachers"`
}

func (s *StatisticsService) TeacherStats(ctx context.Context, scope access.Scope) (*TeacherStats, error) {
	db := s.db.WithContext(ctx)
	var agg struct {
		N      int64
		Rating float64
		Earned float64
	}
	if err := db.Model(&models.Teacher{}).
		Scopes(access.Apply(access.EntityTeacher, scope)).
		Select("COUNT(*) AS n, COALESCE(AVG(teachers.performance_rating), 0) AS rating, COALESCE(SUM(teachers.total_earned), 0) AS earned").
		Scan(&agg).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate teachers")
	}

	var top []models.Teacher
	if err := db.Scopes(access.Apply(access.EntityTeacher, scope)).
		Preload("User").
		Order("teachers.performance_rating DESC, teachers.id").
		Limit(5).
		Find(&top).Error; err != nil {
		return nil, errors.Wrap(err, "load top teachers")
	}
	out := &TeacherStats{
		Total:       agg.N,
		AvgRating:   round2(agg.Rating),
		TotalEarned: round2(agg.Earned),
		Top:         make([]TeacherRank, 0, len(top)),
	}
	for _, t := range top {
		out.Top = append(out.Top, TeacherRank{TeacherID: t.ID, Name: t.User.FullName(), Rating: t.PerformanceRating, TotalEarned: t.TotalEarned})
	}
	return out, nil
}

type AttendanceStats struct {
	Since   time.Time `json:"since"`
	Total   int64     `json:"total"`
	Present int64     `json:"present"`
	Absent  int64     `json:"absent"`
	Late    int64     `json:"late"`
	Excused int64     `json:"excused"`
	Rate    float64   `json:"attendance_rate"`
}

// AttendanceStats counts attendance for lessons starting at or after since.
// The rate is present over total.
func (s *StatisticsService) AttendanceStats(ctx context.Context, scope access.Scope, since time.Time) (*AttendanceStats, error) {
	var rows []struct {
		Status models.AttendanceStatus
		N      int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Scopes(access.Apply(access.EntityAttendance, scope)).
		Where("attendances.lesson_id IN (SELECT id FROM lessons WHERE start_time >= ?)", since).
		Select("attendances.status AS status, COUNT(*) AS n").
		Group("attendances.status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count attendance")
	}
	out := &AttendanceStats{Since: since}
	for _, r := range rows {
		out.Total += r.N
		switch r.Status {
		case models.AttendancePresent:
			out.Present = r.N
		case models.AttendanceAbsent:
			out.Absent = r.N
		case models.AttendanceLate:
			out.Late = r.N
		case models.AttendanceExcused:
			out.Excused = r.N
		}
	}
	out.Rate = percent(out.Present, out.Total)
	return out, nil
}

// Ledger is money in and out over a window.
type Ledger struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Income          float64   `json:"income"`
	TeacherPayments float64   `json:"teacher_payments"`
	StaffPayments   float64   `json:"staff_payments"`
	OtherExpenses   float64   `json:"other_expenses"`
	Expenses        float64   `json:"expenses"`
	Profit          float64   `json:"profit"`
}

func (l *Ledger) settle() {
	l.Income = round2(l.Income)
	l.TeacherPayments = round2(l.TeacherPayments)
	l.StaffPayments = round2(l.StaffPayments)
	l.OtherExpenses = round2(l.OtherExpenses)
	l.Expenses = round2(l.TeacherPayments + l.StaffPayments + l.OtherExpenses)
	l.Profit = round2(l.Income - l.Expenses)
}

// sumLedger totals completed student payments against paid teacher and
// staff payments in [from, to). branchID 0 means every branch in scope.
func sumLedger(db *gorm.DB, scope access.Scope, branchID uint, from, to time.Time) (Ledger, error) {
	l := Ledger{From: from, To: to}
	sum := func(model interface{}, e access.Entity, status models.PaymentStatus, amountCol, dateCol string, dest *float64) error {
		q := db.Model(model).Scopes(access.Apply(e, scope)).
			Select("COALESCE(SUM("+e.Table()+"."+amountCol+"), 0)").
			Where(e.Table()+".status = ?", status).
			Where(e.Table()+"."+dateCol+" >= ? AND "+e.Table()+"."+dateCol+" < ?", from, to)
		if branchID != 0 {
			q = q.Where(e.Table()+".branch_id = ?", branchID)
		}
		return q.Scan(dest).Error
	}
	if err := sum(&models.StudentPayment{}, access.EntityStudentPayment, models.PaymentCompleted, "amount", "paid_at", &l.Income); err != nil {
		return l, errors.Wrap(err, "sum student payments")
	}
	if err := sum(&models.TeacherPayment{}, access.EntityTeacherPayment, models.PaymentPaid, "total_amount", "paid_date", &l.TeacherPayments); err != nil {
		return l, errors.Wrap(err, "sum teacher payments")
	}
	if err := sum(&models.StaffPayment{}, access.EntityStaffPayment, models.PaymentPaid, "total_amount", "paid_date", &l.StaffPayments); err != nil {
		return l, errors.Wrap(err, "sum staff payments")
	}
	l.settle()
	return l, nil
}

// FinancialStats is the ledger from since until now.
func (s *StatisticsService) FinancialStats(ctx context.Context, scope access.Scope, since, now time.Time) (*Ledger, error) {
	l, err := sumLedger(s.db.WithContext(ctx), scope, 0, since, now)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

type ExamStats struct {
	TotalExams        int64            `json:"total_exams"`
	TotalResults      int64            `json:"total_results"`
	AverageScore      float64          `json:"average_score"`
	HighestScore      int              `json:"highest_score"`
	GradeDistribution map[string]int64 `json:"grade_distribution"`
}

func (s *StatisticsService) ExamStats(ctx context.Context, scope access.Scope) (*ExamStats, error) {
	db := s.db.WithContext(ctx)
	var agg struct {
		Exams   int64
		Results int64
		Avg     float64
		Highest int
	}
	if err := db.Model(&models.ExamResult{}).
		Scopes(access.Apply(access.EntityExamResult, scope)).
		Select("COUNT(DISTINCT exam_results.exam_id) AS exams, COUNT(*) AS results, " +
			"COALESCE(AVG(exam_results.score), 0) AS avg, COALESCE(MAX(exam_results.score), 0) AS highest").
		Scan(&agg).Error; err != nil {
		return nil, errors.Wrap(err, "aggregate exam results")
	}
	var grades []struct {
		Grade string
		N     int64
	}
	if err := db.Model(&models.ExamResult{}).
		Scopes(access.Apply(access.EntityExamResult, scope)).
		Select("exam_results.grade AS grade, COUNT(*) AS n").
		Group("exam_results.grade").
		Scan(&grades).Error; err != nil {
		return nil, errors.Wrap(err, "count grades")
	}
	out := &ExamStats{
		TotalExams:        agg.Exams,
		TotalResults:      agg.Results,
		AverageScore:      round2(agg.Avg),
		HighestScore:      agg.Highest,
		GradeDistribution: make(map[string]int64, len(grades)),
	}
	for _, g := range grades {
		out.GradeDistribution[g.Grade] = g.N
	}
	return out, nil
}

type GroupStat struct {
	GroupID        uint    `json:"group_id"`
	Name           string  `json:"name"`
	Subject        string  `json:"subject"`
	Teacher        string  `json:"teacher"`
	Students       int64   `json:"students"`
	MaxStudents    int     `json:"max_students"`
	AttendanceRate float64 `json:"attendance_rate"`
}

func (s *StatisticsService) GroupStats(ctx context.Context, scope access.Scope) ([]GroupStat, error) {
	db := s.db.WithContext(ctx)
	var groups []models.Group
	if err := db.Scopes(access.Apply(access.EntityGroup, scope)).
		Preload("Teacher.User").
		Order("study_groups.id").
		Find(&groups).Error; err != nil {
		return nil, errors.Wrap(err, "load groups")
	}
	out := make([]GroupStat, 0, len(groups))
	if len(groups) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	var members []refCount
	if err := db.Model(&models.GroupMember{}).
		Select("group_id AS ref_id, COUNT(*) AS n").
		Where("group_id IN ?", ids).
		Group("group_id").
		Scan(&members).Error; err != nil {
		return nil, errors.Wrap(err, "count group members")
	}
	var marks []struct {
		RefID   uint
		N       int64
		Present int64
	}
	if err := db.Model(&models.Attendance{}).
		Select("lessons.group_id AS ref_id, COUNT(*) AS n, SUM(CASE WHEN attendances.status = ? THEN 1 ELSE 0 END) AS present", models.AttendancePresent).
		Joins("JOIN lessons ON lessons.id = attendances.lesson_id").
		Where("lessons.group_id IN ?", ids).
		Group("lessons.group_id").
		Scan(&marks).Error; err != nil {
		return nil, errors.Wrap(err, "count group attendance")
	}
	byMembers := countsByRef(members)
	rates := make(map[uint]float64, len(marks))
	for _, m := range marks {
		rates[m.RefID] = percent(m.Present, m.N)
	}
	for _, g := range groups {
		st := GroupStat{
			GroupID:        g.ID,
			Name:           g.Name,
			Subject:        g.Subject,
			Students:       byMembers[g.ID],
			MaxStudents:    g.MaxStudents,
			AttendanceRate: rates[g.ID],
		}
		if g.Teacher != nil {
			st.Teacher = g.Teacher.User.FullName()
		}
		out = append(out, st)
	}
	return out, nil
}

type Overview struct {
	Branches int64 `json:"branches"`
	Students int64 `json:"active_students"`
	Teachers int64 `json:"teachers"`
	Groups   int64 `json:"groups"`
}

func (s *StatisticsService) Overview(ctx context.Context, scope access.Scope) (*Overview, error) {
	db := s.db.WithContext(ctx)
	out := &Overview{}
	if err := db.Model(&models.Branch{}).Scopes(access.Apply(access.EntityBranch, scope)).
		Where("branches.status = ?", true).Count(&out.Branches).Error; err != nil {
		return nil, errors.Wrap(err, "count branches")
	}
	if err := db.Model(&models.Student{}).Scopes(access.Apply(access.EntityStudent, scope)).
		Where("students.status = ?", models.StudentActive).Count(&out.Students).Error; err != nil {
		return nil, errors.Wrap(err, "count students")
	}
	if err := db.Model(&models.Teacher{}).Scopes(access.Apply(access.EntityTeacher, scope)).
		Count(&out.Teachers).Error; err != nil {
		return nil, errors.Wrap(err, "count teachers")
	}
	if err := db.Model(&models.Group{}).Scopes(access.Apply(access.EntityGroup, scope)).
		Count(&out.Groups).Error; err != nil {
		return nil, errors.Wrap(err, "count groups")
	}
	return out, nil
}

type TeacherLoad struct {
	TeacherRank
	Lessons int64 `json:"lessons"`
}

// TeacherPerformance lists teachers in scope with the lessons they held
// since the given time, busiest first.
func (s *StatisticsService) TeacherPerformance(ctx context.Context, scope access.Scope, since, now time.Time) ([]TeacherLoad, error) {
	db := s.db.WithContext(ctx)
	var teachers []models.Teacher
	if err := db.Scopes(access.Apply(access.EntityTeacher, scope)).
		Preload("User").
		Order("teachers.id").
		Find(&teachers).Error; err != nil {
		return nil, errors.Wrap(err, "load teachers")
	}
	out := make([]TeacherLoad, 0, len(teachers))
	if len(teachers) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(teachers))
	for _, t := range teachers {
		ids = append(ids, t.ID)
	}
	var held []refCount
	if err := db.Model(&models.Lesson{}).
		Select("teacher_id AS ref_id, COUNT(*) AS n").
		Where("teacher_id IN ?", ids).
		Where("is_cancelled = ? AND start_time >= ? AND start_time <= ?", false, since, now).
		Group("teacher_id").
		Scan(&held).Error; err != nil {
		return nil, errors.Wrap(err, "count lessons")
	}
	byTeacher := countsByRef(held)
	for _, t := range teachers {
		out = append(out, TeacherLoad{
			TeacherRank: TeacherRank{TeacherID: t.ID, Name: t.User.FullName(), Rating: t.PerformanceRating, TotalEarned: t.TotalEarned},
			Lessons:     byTeacher[t.ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Lessons > out[j].Lessons })
	return out, nil
}

const (
	dropRiskAbsences = 5
	highRiskAbsences = 10
)

type AtRiskStudent struct {
	StudentID uint   `json:"student_id"`
	Name      string `json:"name"`
	Absences  int64  `json:"absences"`
	Risk      string `json:"risk"`
}

type DropRate struct {
	ActiveStudents int64           `json:"active_students"`
	AtRisk         []AtRiskStudent `json:"at_risk"`
	Rate           float64         `json:"drop_rate"`
}

// StudentDropRate flags students absent more than five times from lessons
// since the given time. More than ten absences is high risk.
func (s *StatisticsService) StudentDropRate(ctx context.Context, scope access.Scope, since time.Time) (*DropRate, error) {
	db := s.db.WithContext(ctx)
	var absences []refCount
	if err := db.Model(&models.Attendance{}).
		Scopes(access.Apply(access.EntityAttendance, scope)).
		Select("attendances.student_id AS ref_id, COUNT(*) AS n").
		Where("attendances.status = ?", models.AttendanceAbsent).
		Where("attendances.lesson_id IN (SELECT id FROM lessons WHERE start_time >= ?)", since).
		Group("attendances.student_id").
		Having("COUNT(*) > ?", dropRiskAbsences).
		Order("n DESC").
		Scan(&absences).Error; err != nil {
		return nil, errors.Wrap(err, "count absences")
	}
	out := &DropRate{AtRisk: make([]AtRiskStudent, 0, len(absences))}
	if err := db.Model(&models.Student{}).
		Scopes(access.Apply(access.EntityStudent, scope)).
		Where("students.status = ?", models.StudentActive).
		Count(&out.ActiveStudents).Error; err != nil {
		return nil, errors.Wrap(err, "count active students")
	}
	if len(absences) == 0 {
		return out, nil
	}

	ids := make([]uint, 0, len(absences))
	for _, a := range absences {
		ids = append(ids, a.RefID)
	}
	var students []models.Student
	if err := db.Preload("User").Where("id IN ?", ids).Find(&students).Error; err != nil {
		return nil, errors.Wrap(err, "load at-risk students")
	}
	names := make(map[uint]string, len(students))
	for _, st := range students {
		names[st.ID] = st.User.FullName()
	}
	for _, a := range absences {
		risk := "medium"
		if a.N > highRiskAbsences {
			risk = "high"
		}
		out.AtRisk = append(out.AtRisk, AtRiskStudent{StudentID: a.RefID, Name: names[a.RefID], Absences: a.N, Risk: risk})
	}
	out.Rate = percent(int64(len(out.AtRisk)), out.ActiveStudents)
	return out, nil
}

type MonthTrend struct {
	Month       string  `json:"month"`
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	Profit      float64 `json:"profit"`
	NewStudents int64   `json:"new_students"`
}

// MonthlyTrends returns one entry per calendar month, oldest first, ending
// with the month containing now.
func (s *StatisticsService) MonthlyTrends(ctx context.Context, scope access.Scope, months int, now time.Time) ([]MonthTrend, error) {
	if months <= 0 {
		return nil, Malformedf("months must be positive")
	}
	db := s.db.WithContext(ctx)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]MonthTrend, 0, months)
	for i := months - 1; i >= 0; i-- {
		from := current.AddDate(0, -i, 0)
		to := from.AddDate(0, 1, 0)
		l, err := sumLedger(db, scope, 0, from, to)
		if err != nil {
			return nil, err
		}
		var joined int64
		if err := db.Model(&models.Student{}).
			Scopes(access.Apply(access.EntityStudent, scope)).
			Where("students.created_at >= ? AND students.created_at < ?", from, to).
			Count(&joined).Error; err != nil {
			return nil, errors.Wrap(err, "count new students")
		}
		out = append(out, MonthTrend{
			Month:       from.Format("2006-01"),
			Income:      l.Income,
			Expenses:    l.Expenses,
			Profit:      l.Profit,
			NewStudents: joined,
		})
	}
	return out, nil
}

// Dashboard is the director's landing page in one payload.
type Dashboard struct {
	Overview           *Overview     `json:"overview"`
	FinancialOverview  *Ledger       `json:"financial_overview"`
	TeacherPerformance []TeacherLoad `json:"teacher_performance"`
	StudentDropRate    *DropRate     `json:"student_drop_rate"`
	MonthlyTrends      []MonthTrend  `json:"monthly_trends"`
}

// Dashboard combines the overview with month-to-date finance, teacher load
// and drop risk over the last days, and trends over the last months.
func (s *StatisticsService) Dashboard(ctx context.Context, scope access.Scope, days, months int, now time.Time) (*Dashboard, error) {
	if days <= 0 {
		return nil, Malformedf("days must be positive")
	}
	since := now.AddDate(0, 0, -days)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var (
		d   Dashboard
		err error
	)
	if d.Overview, err = s.Overview(ctx, scope); err != nil {
		return nil, err
	}
	if d.FinancialOverview, err = s.FinancialStats(ctx, scope, monthStart, now); err != nil {
		return nil, err
	}
	if d.TeacherPerformance, err = s.TeacherPerformance(ctx, scope, since, now); err != nil {
		return nil, err
	}
	if d.StudentDropRate, err = s.StudentDropRate(ctx, scope, since); err != nil {
		return nil, err
	}
	if d.MonthlyTrends, err = s.MonthlyTrends(ctx, scope, months, now); err != nil {
		return nil, err
	}
	return &d, nil
}

type HomeworkProgress struct {
	models.Homework
	GroupName  string `json:"group_name"`
	Students   int64  `json:"students"`
	Done       int64  `json:"done"`
	Incomplete int64  `json:"incomplete"`
	Missing    int64  `json:"missing"`
	Overdue    bool   `json:"overdue"`
}

// HomeworkSummary reports, per homework in scope, how the group's homework
// marks look on lessons held since it was assigned.
func (s *StatisticsService) HomeworkSummary(ctx context.Context, scope access.Scope, now time.Time) ([]HomeworkProgress, error) {
	db := s.db.WithContext(ctx)
	var list []models.Homework
	if err := db.Scopes(access.Apply(access.EntityHomework, scope)).
		Order("homework.due_date, homework.id").
		Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "load homework")
	}
	out := make([]HomeworkProgress, 0, len(list))
	for _, hw := range list {
		row := HomeworkProgress{Homework: hw}
		row.Overdue = hw.Status == HomeworkAssigned && !hw.DueDate.IsZero() && hw.DueDate.Before(now)

		var g models.Group
		if err := db.Select("id", "name").First(&g, hw.GroupID).Error; err != nil {
			return nil, errors.Wrap(err, "load homework group")
		}
		row.GroupName = g.Name
		if err := db.Model(&models.GroupMember{}).Where("group_id = ?", hw.GroupID).Count(&row.Students).Error; err != nil {
			return nil, errors.Wrap(err, "count group members")
		}
		var marks []struct {
			HomeworkStatus models.HomeworkStatus
			N              int64
		}
		if err := db.Model(&models.Attendance{}).
			Select("attendances.homework_status AS homework_status, COUNT(*) AS n").
			Joins("JOIN lessons ON lessons.id = attendances.lesson_id").
			Where("lessons.group_id = ? AND lessons.start_time >= ?", hw.GroupID, hw.CreatedAt).
			Group("attendances.homework_status").
			Scan(&marks).Error; err != nil {
			return nil, errors.Wrap(err, "count homework marks")
		}
		for _, m := range marks {
			switch m.HomeworkStatus {
			case models.HomeworkDone:
				row.Done = m.N
			case models.HomeworkIncomplete:
				row.Incomplete = m.N
			case models.HomeworkMissing:
				row.Missing = m.N
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// studentsTaught counts distinct students across the teacher's groups.
func studentsTaught(db *gorm.DB, teacherID uint) (int64, error) {
	var n int64
	err := db.Model(&models.GroupMember{}).
		Where("group_id IN (SELECT id FROM study_groups WHERE teacher_id = ?)", teacherID).
		Distinct("student_id").
		Count(&n).Error
	return n, errors.Wrap(err, "count students taught")
}

// TeacherPortfolio returns the teacher's portfolio with fresh derived
// figures. A teacher without one gets an empty portfolio.
func (s *StatisticsService) TeacherPortfolio(ctx context.Context, scope access.Scope, teacherID uint) (*models.TeacherPortfolio, error) {
	db := s.db.WithContext(ctx)
	var teacher models.Teacher
	if err := access.FindScoped(db, access.EntityTeacher, scope, &teacher, teacherID); err != nil {
		return nil, notFoundOr(err, "Teacher not found")
	}
	var p models.TeacherPortfolio
	err := db.Where("teacher_id = ?", teacher.ID).First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p = models.TeacherPortfolio{TeacherID: teacher.ID, Achievements: datatypes.JSON("[]")}
	case err != nil:
		return nil, errors.Wrap(err, "load portfolio")
	}
	if p.TotalStudentsTaught, err = studentsTaught(db, teacher.ID); err != nil {
		return nil, err
	}
	p.AvgRating = teacher.PerformanceRating
	return &p, nil
}

type PortfolioInput struct {
	Bio          *string  `json:"bio" validate:"omitempty,max=5000"`
	Achievements []string `json:"achievements" validate:"omitempty,max=50,dive,max=255"`
}

// UpdatePortfolio creates or edits the teacher's portfolio. Derived figures
// are refreshed on every write.
func (s *StatisticsService) UpdatePortfolio(ctx context.Context, scope access.Scope, actorID, teacherID uint, in PortfolioInput) (*models.TeacherPortfolio, error) {
	fields := logrus.Fields{"actor_id": actorID, "teacher_id": teacherID}
	var p models.TeacherPortfolio
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var teacher models.Teacher
		if err := lockScoped(tx, access.EntityTeacher, scope, &teacher, teacherID); err != nil {
			return notFoundOr(err, "Teacher not found")
		}
		err := tx.Where("teacher_id = ?", teacher.ID).First(&p).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p = models.TeacherPortfolio{TeacherID: teacher.ID, Achievements: datatypes.JSON("[]")}
		case err != nil:
			return errors.Wrap(err, "load portfolio")
		}
		if in.Bio != nil {
			p.Bio = strings.TrimSpace(*in.Bio)
		}
		if in.Achievements != nil {
			items := make([]string, 0, len(in.Achievements))
			for _, a := range in.Achievements {
				if a = strings.TrimSpace(a); a != "" {
					items = append(items, a)
				}
			}
			raw, err := json.Marshal(items)
			if err != nil {
				return errors.Wrap(err, "encode achievements")
			}
			p.Achievements = datatypes.JSON(raw)
		}
		if p.TotalStudentsTaught, err = studentsTaught(tx, teacher.ID); err != nil {
			return err
		}
		p.AvgRating = teacher.PerformanceRating
		if err := tx.Omit("Teacher").Save(&p).Error; err != nil {
			return dbErr(err, "Portfolio already exists", "save portfolio")
		}
		return s.sink.Activity(tx, actorID, "UPDATE", "teacher_portfolio", p.ID,
			map[string]interface{}{"teacher_id": teacher.ID})
	})
	if err != nil {
		return nil, finish("portfolio_update", fields, err)
	}
	return &p, finish("portfolio_update", fields, nil)
}

package services

import (
	"bytes"
	"context"
	"fmt"

	"educenter_go/models"
	"educenter_go/services/access"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportService renders scoped spreadsheets.
type ReportService struct {
	db      *gorm.DB
	finance *FinanceService
}

func NewReportService(db *gorm.DB, finance *FinanceService) *ReportService {
	return &ReportService{db: db, finance: finance}
}

func writeSheet(header []interface{}, rows [][]interface{}) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	for i, r := range rows {
		r := r
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cellRef, &r); err != nil {
			return nil, errors.Wrap(err, "write row")
		}
	}
	return f.WriteToBuffer()
}

// DebtorsXLSX lists students in scope with outstanding debt.
func (s *ReportService) DebtorsXLSX(ctx context.Context, scope access.Scope) (*bytes.Buffer, error) {
	students, err := s.finance.Debtors(ctx, scope)
	if err != nil {
		return nil, err
	}
	rows := make([][]interface{}, 0, len(students))
	for _, st := range students {
		rows = append(rows, []interface{}{st.ID, st.User.FullName(), st.Branch.Name, st.TotalPaid, st.TotalDebt})
	}
	return writeSheet([]interface{}{"Student ID", "Name", "Branch", "Total paid", "Total debt"}, rows)
}

// LessonAttendanceXLSX exports the attendance sheet of one lesson.
func (s *ReportService) LessonAttendanceXLSX(ctx context.Context, scope access.Scope, lessonID uint) (*bytes.Buffer, string, error) {
	db := s.db.WithContext(ctx)
	var lesson models.Lesson
	if err := access.FindScoped(db.Preload("Group"), access.EntityLesson, scope, &lesson, lessonID); err != nil {
		return nil, "", notFoundOr(err, "Lesson not found")
	}
	var records []models.Attendance
	if err := db.Preload("Student.User").Where("lesson_id = ?", lesson.ID).Order("student_id").Find(&records).Error; err != nil {
		return nil, "", errors.Wrap(err, "load attendance")
	}

	rows := make([][]interface{}, 0, len(records))
	for _, a := range records {
		grade := ""
		if a.HomeworkGrade != nil {
			grade = fmt.Sprint(*a.HomeworkGrade)
		}
		rows = append(rows, []interface{}{a.StudentID, a.Student.User.FullName(), string(a.Status), string(a.HomeworkStatus), grade, a.Comments})
	}
	buf, err := writeSheet([]interface{}{"Student ID", "Name", "Status", "Homework", "Homework grade", "Comments"}, rows)
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("attendance_%s_%s.xlsx", lesson.Group.Name, lesson.StartTime.Format("2006-01-02"))
	return buf, name, nil
}

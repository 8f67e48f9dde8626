package services

import (
	"bytes"
	"strings"
	"testing"

	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGradeFor(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{100, "A"},
		{86, "A"},
		{85, "B"},
		{51, "B"},
		{50, "C"},
		{0, "C"},
		{101, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := GradeFor(DefaultGradeRanges, tt.percent); got != tt.want {
			t.Fatalf("GradeFor(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := percentOf(45, 50); got != 90 {
		t.Fatalf("percentOf(45, 50) = %d", got)
	}
	if got := percentOf(70, 0); got != 70 {
		t.Fatalf("percentOf(70, 0) = %d", got)
	}
}

func TestImportResultsAndStatistics(t *testing.T) {
	f := newFixture(t)
	svc := NewExamService(f.db, f.sink)
	scope := f.teacherSelf(f.w.TeacherA)

	exam, err := svc.CreateExam(f.ctx, scope, f.w.TeacherA.UserID, ExamInput{GroupID: f.w.GroupA.ID, Title: "Midterm"})
	require.NoError(t, err)
	assert.Equal(t, 100, exam.TotalPoints)
	assert.Equal(t, 50, exam.PassScore)

	sum, err := svc.ImportResults(f.ctx, scope, f.w.TeacherA.UserID, exam.ID, []ResultRow{
		{StudentID: f.w.StudentA1.ID, Score: 90},
		{StudentID: f.w.StudentB1.ID, Score: 70},
		{StudentID: f.w.StudentA2.ID, Score: 140},
		{StudentID: f.w.StudentA2.ID, Score: 40},
		{StudentID: f.w.StudentA1.ID, Score: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Imported)
	assert.Equal(t, 0, sum.Updated)
	assert.Equal(t, []SkippedRow{
		{Row: 2, StudentID: f.w.StudentB1.ID, Reason: "student is not in the exam group"},
		{Row: 3, StudentID: f.w.StudentA2.ID, Reason: "score out of range"},
		{Row: 5, StudentID: f.w.StudentA1.ID, Reason: "duplicate student"},
	}, sum.Skipped)

	grades := map[uint]string{}
	var results []models.ExamResult
	require.NoError(t, f.db.Where("exam_id = ?", exam.ID).Find(&results).Error)
	for _, r := range results {
		grades[r.StudentID] = r.Grade
	}
	assert.Equal(t, map[uint]string{f.w.StudentA1.ID: "A", f.w.StudentA2.ID: "C"}, grades)

	sum, err = svc.ImportResults(f.ctx, scope, f.w.TeacherA.UserID, exam.ID, []ResultRow{{StudentID: f.w.StudentA2.ID, Score: 60}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	stats, err := svc.Statistics(f.ctx, scope, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, &ExamStatistics{TotalStudents: 2, AverageScore: 75, HighestScore: 90, LowestScore: 60, Passed: 2, Failed: 0}, stats)

	_, err = svc.ImportResults(f.ctx, f.teacherSelf(f.w.TeacherB), f.w.TeacherB.UserID, exam.ID, []ResultRow{{StudentID: f.w.StudentA1.ID, Score: 1}})
	requireKind(t, err, KindNotFound, "Exam not found")

	_, err = svc.ImportResults(f.ctx, scope, f.w.TeacherA.UserID, exam.ID, nil)
	requireKind(t, err, KindMalformed, "")
}

func TestCreateExamValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewExamService(f.db, f.sink)

	_, err := svc.CreateExam(f.ctx, f.global(), f.w.Superadmin.ID, ExamInput{GroupID: f.w.GroupA.ID, Title: " "})
	requireKind(t, err, KindMalformed, "Title is required")

	_, err = svc.CreateExam(f.ctx, f.global(), f.w.Superadmin.ID, ExamInput{GroupID: f.w.GroupA.ID, Title: "Quiz", TotalPoints: 20, PassScore: 30})
	requireKind(t, err, KindMalformed, "Pass score cannot exceed total points")

	_, err = svc.CreateExam(f.ctx, f.teacherSelf(f.w.TeacherB), f.w.TeacherB.UserID, ExamInput{GroupID: f.w.GroupA.ID, Title: "Quiz"})
	requireKind(t, err, KindNotFound, "Group not found")
}

func TestParseResultsFileCSV(t *testing.T) {
	rows, err := ParseResultsFile("results.csv", strings.NewReader("Student ID,Score\n1,90\n2, 45\n"))
	require.NoError(t, err)
	assert.Equal(t, []ResultRow{{StudentID: 1, Score: 90}, {StudentID: 2, Score: 45}}, rows)

	_, err = ParseResultsFile("results.csv", strings.NewReader("student_id,points\n1,90\n"))
	requireKind(t, err, KindMalformed, "missing column: score")

	_, err = ParseResultsFile("results.csv", strings.NewReader("student_id,score\nabc,90\n"))
	requireKind(t, err, KindMalformed, "row 2: invalid student_id")

	_, err = ParseResultsFile("results.txt", strings.NewReader(""))
	requireKind(t, err, KindMalformed, "unsupported file type (csv, xlsx)")
}

func TestParseResultsFileXLSX(t *testing.T) {
	tmpl, err := ResultsTemplate()
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(tmpl.Bytes()))
	require.NoError(t, err)
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]interface{}{7, 88}))
	require.NoError(t, wb.SetSheetRow(sheet, "A3", &[]interface{}{8, 51}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	rows, err := ParseResultsFile("Results.XLSX", buf)
	require.NoError(t, err)
	assert.Equal(t, []ResultRow{{StudentID: 7, Score: 88}, {StudentID: 8, Score: 51}}, rows)
}

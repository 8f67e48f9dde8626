package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDebtorsXLSX(t *testing.T) {
	f := newFixture(t)
	reports := NewReportService(f.db, NewFinanceService(f.db, f.sink))
	require.NoError(t, f.db.Model(&f.w.StudentA1).Update("total_debt", 25.5).Error)
	require.NoError(t, f.db.Model(&f.w.StudentB1).Update("total_debt", 10).Error)

	buf, err := reports.DebtorsXLSX(f.ctx, f.branch(f.w.BranchA))
	require.NoError(t, err)

	wb, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Student ID", "Name", "Branch", "Total paid", "Total debt"}, rows[0])
	assert.Equal(t, "student.a1", rows[1][1])
	assert.Equal(t, "Central", rows[1][2])
	assert.Equal(t, "25.5", rows[1][4])
}

func TestLessonAttendanceXLSX(t *testing.T) {
	f := newFixture(t)
	reports := NewReportService(f.db, NewFinanceService(f.db, f.sink))
	_, err := NewAttendanceService(f.db, f.sink).SelectAllPresent(f.ctx, f.global(), f.w.Superadmin.ID, f.w.LessonA.ID)
	require.NoError(t, err)

	buf, name, err := reports.LessonAttendanceXLSX(f.ctx, f.branch(f.w.BranchA), f.w.LessonA.ID)
	require.NoError(t, err)
	assert.Contains(t, name, "Beginners A")

	wb, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "present", rows[1][2])
	assert.Equal(t, "missing", rows[1][3])

	_, _, err = reports.LessonAttendanceXLSX(f.ctx, f.branch(f.w.BranchB), f.w.LessonA.ID)
	requireKind(t, err, KindNotFound, "Lesson not found")
}

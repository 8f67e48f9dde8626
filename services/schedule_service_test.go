package services

import (
	"testing"
	"time"

	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndUpdateGroup(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)

	g, err := svc.CreateGroup(f.ctx, scope, f.w.DirectorA.ID, GroupInput{BranchID: f.w.BranchA.ID, TeacherID: &f.w.TeacherA2.ID, Name: "Evening A"})
	require.NoError(t, err)
	assert.Equal(t, 20, g.MaxStudents)
	require.NotNil(t, g.TeacherID)
	assert.Equal(t, f.w.TeacherA2.ID, *g.TeacherID)

	_, err = svc.CreateGroup(f.ctx, scope, f.w.DirectorA.ID, GroupInput{BranchID: f.w.BranchA.ID, Name: "Huge", MaxStudents: 50})
	requireKind(t, err, KindMalformed, "Capacity cannot exceed 20")

	_, err = svc.CreateGroup(f.ctx, scope, f.w.DirectorA.ID, GroupInput{BranchID: f.w.BranchB.ID, Name: "Not mine"})
	requireKind(t, err, KindNotFound, "Branch not found")

	_, err = svc.CreateGroup(f.ctx, f.global(), f.w.Superadmin.ID, GroupInput{BranchID: f.w.BranchA.ID, TeacherID: &f.w.TeacherB.ID, Name: "Mixed"})
	requireKind(t, err, KindInvalidState, "Teacher belongs to a different branch")

	one := 1
	_, err = svc.UpdateGroup(f.ctx, scope, f.w.DirectorA.ID, f.w.GroupA.ID, GroupUpdate{MaxStudents: &one})
	requireKind(t, err, KindInvalidState, "Group already has 2 students")

	name := "Beginners A1"
	five := 5
	updated, err := svc.UpdateGroup(f.ctx, scope, f.w.DirectorA.ID, f.w.GroupA.ID, GroupUpdate{Name: &name, MaxStudents: &five})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 5, updated.MaxStudents)

	_, err = svc.UpdateGroup(f.ctx, scope, f.w.DirectorA.ID, f.w.GroupB.ID, GroupUpdate{Name: &name})
	requireKind(t, err, KindNotFound, "Group not found")
}

func TestCreateAndRescheduleLesson(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(f.db, f.sink)
	scope := f.teacherSelf(f.w.TeacherA)
	start := time.Now().Add(72 * time.Hour).Truncate(time.Minute)

	l, err := svc.CreateLesson(f.ctx, scope, f.w.TeacherA.UserID, LessonInput{GroupID: f.w.GroupA.ID, StartTime: start})
	require.NoError(t, err)
	assert.Equal(t, 90, l.Duration)
	assert.Equal(t, f.w.TeacherA.ID, l.TeacherID)
	assert.Equal(t, f.w.BranchA.ID, l.BranchID)

	_, err = svc.CreateLesson(f.ctx, scope, f.w.TeacherA.UserID, LessonInput{GroupID: f.w.GroupB.ID, StartTime: start})
	requireKind(t, err, KindNotFound, "Group not found")

	_, err = svc.CreateLesson(f.ctx, scope, f.w.TeacherA.UserID, LessonInput{GroupID: f.w.GroupA.ID, StartTime: start, Duration: 60})
	requireKind(t, err, KindMalformed, "Duration must be 45 or 90 minutes")

	later := start.Add(time.Hour)
	short := 45
	moved, err := svc.UpdateLesson(f.ctx, scope, f.w.TeacherA.UserID, l.ID, LessonUpdate{StartTime: &later, Duration: &short})
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(later))
	assert.Equal(t, 45, moved.Duration)
}

func TestCancelLesson(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(f.db, f.sink)
	lesson := f.futureLesson(t, f.w.GroupA)

	_, _, err := svc.CancelLesson(f.ctx, f.branch(f.w.BranchB), f.w.DirectorA.ID, lesson.ID, "teacher ill")
	requireKind(t, err, KindNotFound, "Lesson not found")

	_, _, err = svc.CancelLesson(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, lesson.ID, "  ")
	requireKind(t, err, KindMalformed, "Reason is required")

	cancelled, alert, err := svc.CancelLesson(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, lesson.ID, "teacher ill")
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)
	assert.Equal(t, "teacher ill", cancelled.CancellationReason)
	assert.Equal(t, models.AlertLessonCancelled, alert.AlertType)
	assert.Contains(t, alert.Message, "Beginners A")
	require.NotNil(t, alert.RelatedLessonID)
	assert.Equal(t, lesson.ID, *alert.RelatedLessonID)
	require.Len(t, f.pub.alerts, 1)
	assert.Equal(t, alert.ID, f.pub.alerts[0].ID)

	_, _, err = svc.CancelLesson(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, lesson.ID, "again")
	requireKind(t, err, KindInvalidState, "Lesson is already cancelled")

	later := time.Now().Add(96 * time.Hour)
	_, err = svc.UpdateLesson(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, lesson.ID, LessonUpdate{StartTime: &later})
	requireKind(t, err, KindInvalidState, "Lesson is cancelled")

	// a lesson with attendance on record stays
	_, err = NewAttendanceService(f.db, f.sink).SelectAllPresent(f.ctx, f.global(), f.w.Superadmin.ID, f.w.LessonA.ID)
	require.NoError(t, err)
	_, _, err = svc.CancelLesson(f.ctx, f.global(), f.w.Superadmin.ID, f.w.LessonA.ID, "too late")
	requireKind(t, err, KindInvalidState, "Lesson already has attendance")
	assert.Len(t, f.pub.alerts, 1)
}

func TestReportTeacherLate(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(f.db, f.sink)

	alert, err := svc.ReportTeacherLate(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, f.w.LessonA.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, models.AlertTeacherLate, alert.AlertType)
	assert.Equal(t, "Teacher teacher.a is 15 minutes late for group Beginners A", alert.Message)
	assert.Equal(t, f.w.BranchA.ID, alert.BranchID)
	require.Len(t, f.pub.alerts, 1)

	_, err = svc.ReportTeacherLate(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, f.w.LessonB.ID, 15)
	requireKind(t, err, KindNotFound, "Lesson not found")

	_, err = svc.ReportTeacherLate(f.ctx, f.branch(f.w.BranchA), f.w.DirectorA.ID, f.w.LessonA.ID, 0)
	requireKind(t, err, KindMalformed, "Minutes late must be positive")
}

func TestHomework(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(f.db, f.sink)
	scope := f.teacherSelf(f.w.TeacherA)
	due := time.Now().Add(7 * 24 * time.Hour)

	hw, err := svc.CreateHomework(f.ctx, scope, f.w.TeacherA.UserID, HomeworkInput{GroupID: f.w.GroupA.ID, Title: "Unit 3 exercises", DueDate: due})
	require.NoError(t, err)
	assert.Equal(t, f.w.TeacherA.ID, hw.TeacherID)
	assert.Equal(t, HomeworkAssigned, hw.Status)

	_, err = svc.CreateHomework(f.ctx, scope, f.w.TeacherA.UserID, HomeworkInput{GroupID: f.w.GroupB.ID, Title: "Not my group"})
	requireKind(t, err, KindNotFound, "Group not found")

	graded := HomeworkGraded
	updated, err := svc.UpdateHomework(f.ctx, scope, f.w.TeacherA.UserID, hw.ID, HomeworkUpdate{Status: &graded})
	require.NoError(t, err)
	assert.Equal(t, HomeworkGraded, updated.Status)

	bogus := "lost"
	_, err = svc.UpdateHomework(f.ctx, scope, f.w.TeacherA.UserID, hw.ID, HomeworkUpdate{Status: &bogus})
	requireKind(t, err, KindMalformed, `Invalid status "lost"`)

	_, err = svc.UpdateHomework(f.ctx, f.teacherSelf(f.w.TeacherB), f.w.TeacherB.UserID, hw.ID, HomeworkUpdate{Status: &graded})
	requireKind(t, err, KindNotFound, "Homework not found")
}

package services

import (
	"testing"
	"time"

	"educenter_go/database/dbtest"
	"educenter_go/models"
	"educenter_go/services/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpcomingLessonReminders(t *testing.T) {
	f := newFixture(t)
	r := NewLessonReminder(f.db, notifications.New(f.db, nil, nil, nil))

	soon := models.Lesson{GroupID: f.w.GroupA.ID, TeacherID: f.w.TeacherA.ID, BranchID: f.w.BranchA.ID, StartTime: time.Now().Add(30 * time.Minute), Duration: 90}
	dbtest.Create(t, f.db, &soon)
	cancelled := models.Lesson{GroupID: f.w.GroupB.ID, TeacherID: f.w.TeacherB.ID, BranchID: f.w.BranchB.ID, StartTime: time.Now().Add(time.Hour), Duration: 90}
	dbtest.Create(t, f.db, &cancelled)
	require.NoError(t, f.db.Model(&cancelled).Update("is_cancelled", true).Error)

	n, err := r.UpcomingLessons(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var recipients []uint
	require.NoError(t, f.db.Model(&models.Notification{}).Order("user_id").Pluck("user_id", &recipients).Error)
	assert.ElementsMatch(t, []uint{f.w.StudentA1.UserID, f.w.StudentA2.UserID, f.w.TeacherA.UserID}, recipients)

	n, err = r.UpcomingLessons(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "reminders are sent once")
}

func TestMissingAttendanceReminders(t *testing.T) {
	f := newFixture(t)
	r := NewLessonReminder(f.db, notifications.New(f.db, nil, nil, nil))

	ended := models.Lesson{GroupID: f.w.GroupB.ID, TeacherID: f.w.TeacherB.ID, BranchID: f.w.BranchB.ID, StartTime: time.Now().Add(-3 * time.Hour), Duration: 90}
	dbtest.Create(t, f.db, &ended)

	n, err := r.MissingAttendance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "lessons still running are skipped")

	var notes []models.Notification
	require.NoError(t, f.db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, f.w.TeacherB.UserID, notes[0].UserID)
	assert.Equal(t, "warning", notes[0].Type)

	n, err = r.MissingAttendance(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

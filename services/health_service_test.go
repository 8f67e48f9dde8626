package services

import (
	"context"
	"testing"
	"time"

	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{time.Hour + 2*time.Second, "1h 2s"},
		{49*time.Hour + 5*time.Minute + 7*time.Second, "2d 1h 5m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Fatalf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHealthReport(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&models.DocumentApproval{
		BranchID:     f.w.BranchA.ID,
		DocumentType: "contract",
		SubmittedBy:  f.w.DirectorA.ID,
		Status:       models.ApprovalPending,
	}).Error)

	svc := NewHealthService(f.db, nil, HealthOptions{Clients: func() int { return 3 }})
	report := svc.Report(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, "EduCenter API", report.Service)
	assert.Equal(t, "unknown", report.Environment)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, checkUp, report.Checks[0].State)
	assert.Equal(t, checkDisabled, report.Checks[1].State)
	require.NotNil(t, report.Backlog)
	assert.Equal(t, int64(1), report.Backlog.PendingDocuments)
	assert.Equal(t, 3, report.Runtime.LiveSockets)
	assert.Equal(t, 200, HTTPStatus(report.Status))

	degraded := NewHealthService(f.db, nil, HealthOptions{RedisRequired: true}).Report(context.Background())
	assert.Equal(t, StatusDegraded, degraded.Status)
	assert.Equal(t, 200, HTTPStatus(degraded.Status))

	down := NewHealthService(nil, nil, HealthOptions{}).Report(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.Nil(t, down.Backlog)
	assert.Equal(t, 503, HTTPStatus(down.Status))
}

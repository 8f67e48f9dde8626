package notifications

import (
	"context"
	"sync"
	"testing"

	"educenter_go/database/dbtest"
	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu    sync.Mutex
	users []uint
}

func (h *recordingHub) BroadcastToUser(userID uint, _ interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users = append(h.users, userID)
	return 1
}

type recordingMailer struct {
	to []string
}

func (m *recordingMailer) Send(_, toAddress, _, _ string) error {
	m.to = append(m.to, toAddress)
	return nil
}

func TestNormalizeChannels(t *testing.T) {
	assert.Equal(t, []string{"normal"}, normalizeChannels(nil))
	assert.Equal(t, []string{"normal"}, normalizeChannels([]string{"sms"}))
	assert.Equal(t, []string{"popup", "email"}, normalizeChannels([]string{"popup", "email", "popup", "fax"}))
}

func TestEnqueueOrCreateWithoutRedis(t *testing.T) {
	db := dbtest.Open(t)
	w := dbtest.Seed(t, db)
	hub := &recordingHub{}
	mailer := &recordingMailer{}
	svc := New(db, nil, hub, mailer)

	recipients := []uint{w.DirectorA.ID, w.OrgAdmin.ID}
	err := svc.EnqueueOrCreate(context.Background(), recipients,
		Queued("Teacher changed", "Teacher for group Beginners A changed", "info", map[string]uint{"group_id": w.GroupA.ID}, "popup", "email"))
	require.NoError(t, err)

	var stored []models.Notification
	require.NoError(t, db.Order("user_id").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.JSONEq(t, `["popup","email"]`, string(stored[0].Channels))
	assert.JSONEq(t, `{"group_id":1}`, string(stored[0].Data))

	assert.ElementsMatch(t, recipients, hub.users)
	assert.ElementsMatch(t, []string{"director.a@example.com", "admin.org@example.com"}, mailer.to)
}

func TestEnqueueOrCreateRequiresRecipients(t *testing.T) {
	svc := New(nil, nil, nil, nil)
	assert.Error(t, svc.EnqueueOrCreate(context.Background(), nil, Queued("t", "m", "info", nil)))
}

package handlers

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"educenter_go/database/dbtest"
	"educenter_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory map[string]string

func (f fakeDirectory) Enabled() bool { return true }

func (f fakeDirectory) GroupName(groupID string) (string, error) {
	name, ok := f[groupID]
	if !ok {
		return "", fmt.Errorf("unknown group %s", groupID)
	}
	return name, nil
}

func event(typ, groupID string) string {
	return fmt.Sprintf(`{"events":[{"type":%q,"mode":"active","timestamp":1700000000000,"source":{"type":"group","groupId":%q},"webhookEventId":"e1","deliveryContext":{"isRedelivery":false}}]}`, typ, groupID)
}

func TestLineWebhookJoinAndLeave(t *testing.T) {
	db := dbtest.Open(t)
	w := dbtest.Seed(t, db)
	h := NewLineWebhookHandler(db, fakeDirectory{"C1": "  central "}, "secret")

	h.process([]byte(event("join", "C1")))

	var lg models.LineGroup
	require.NoError(t, db.Where("group_id = ?", "C1").First(&lg).Error)
	assert.True(t, lg.IsActive)
	require.NotNil(t, lg.BranchID)
	assert.Equal(t, w.BranchA.ID, *lg.BranchID)

	h.process([]byte(event("leave", "C1")))
	require.NoError(t, db.Where("group_id = ?", "C1").First(&lg).Error)
	assert.False(t, lg.IsActive)
	assert.NotNil(t, lg.LastLeftAt)

	h.process([]byte(event("join", "C1")))
	require.NoError(t, db.Where("group_id = ?", "C1").First(&lg).Error)
	assert.True(t, lg.IsActive)
	assert.Nil(t, lg.LastLeftAt)

	var count int64
	db.Model(&models.LineGroup{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLineWebhookSignature(t *testing.T) {
	db := dbtest.Open(t)
	app := fiber.New()
	app.Post("/line/webhook", NewLineWebhookHandler(db, fakeDirectory{}, "secret").Handle)

	body := `{"events":[]}`
	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{"missing", "", fiber.StatusBadRequest},
		{"wrong", "bogus", fiber.StatusUnauthorized},
		{"valid", computeSignature("secret", []byte(body)), fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/line/webhook", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set("X-Line-Signature", tt.signature)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

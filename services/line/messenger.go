// Package line wraps the LINE Messaging API: pushing branch alerts to the
// chat groups the bot was invited to and keeping those groups matched to
// branches.
package line

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// Messenger pushes text to LINE chat groups. A Messenger without
// credentials is disabled and every push is a no-op error.
type Messenger struct {
	bot    *linebot.Client
	secret string
}

// NewMessenger creates the bot client; missing credentials disable it.
func NewMessenger(channelSecret, channelToken string) *Messenger {
	if channelSecret == "" || channelToken == "" {
		logrus.Info("LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return &Messenger{}
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		logrus.WithError(err).Error("cannot create LINE bot client")
		return &Messenger{}
	}
	return &Messenger{bot: bot, secret: channelSecret}
}

func (m *Messenger) Enabled() bool { return m != nil && m.bot != nil }

// Secret is the channel secret used to verify webhook signatures.
func (m *Messenger) Secret() string { return m.secret }

// PushText sends message to a LINE group.
func (m *Messenger) PushText(groupID, message string) error {
	if !m.Enabled() {
		return fmt.Errorf("LINE bot client is not initialized")
	}
	if _, err := m.bot.PushMessage(groupID, linebot.NewTextMessage(message)).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %v", err)
	}
	return nil
}

// GroupName looks up the display name of a LINE group.
func (m *Messenger) GroupName(groupID string) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("LINE bot client is not initialized")
	}
	summary, err := m.bot.GetGroupSummary(groupID).Do()
	if err != nil {
		return "", err
	}
	return summary.GroupName, nil
}

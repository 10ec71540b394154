package alert

import (
	"fmt"

	"gopkg.in/telebot.v3"
)

// TelebotNotifier implements the alert.Notifier interface using the
// gopkg.in/telebot.v3 library. It only sends; no poller is started.
type TelebotNotifier struct {
	bot    *telebot.Bot
	chatID int64
}

func NewTelebotNotifier(token string, chatID int64) (*TelebotNotifier, error) {
	bot, err := telebot.NewBot(telebot.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create alert bot: %w", err)
	}
	return &TelebotNotifier{bot: bot, chatID: chatID}, nil
}

// EscalationRaised notifies the supervising partner chat that a client's
// rate-change notification was escalated.
func (n *TelebotNotifier) EscalationRaised(year int, clientID, escalatedBy string) error {
	text := fmt.Sprintf("Rate-change notification escalated: client %s (%d)", clientID, year)
	if escalatedBy != "" {
		text += fmt.Sprintf(" by %s", escalatedBy)
	}
	_, err := n.bot.Send(&telebot.Chat{ID: n.chatID}, text, &telebot.SendOptions{})
	return err
}

// Package notify surfaces human-readable status messages. The core decides
// content only; delivery is fire-and-forget with no confirmation.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sink receives a title and body for display to the local user
type Sink interface {
	Notify(title, body string)
}

// LogSink writes notifications to the application log
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(title, body string) {
	s.logger.WithField("title", title).Info(body)
}

// TelegramSink pushes notifications to a Telegram chat
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewTelegramSink creates a Telegram-backed sink
func NewTelegramSink(token string, chatID int64, logger *logrus.Logger) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Notification bot authorized on account %s", api.Self.UserName)

	return &TelegramSink{api: api, chatID: chatID, logger: logger}, nil
}

func (s *TelegramSink) Notify(title, body string) {
	msg := tgbotapi.NewMessage(s.chatID, fmt.Sprintf("*%s*\n%s", title, body))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := s.api.Send(msg); err != nil {
		s.logger.Errorf("Failed to send notification: %v", err)
	}
}

// Multi fans a notification out to several sinks
type Multi []Sink

func (m Multi) Notify(title, body string) {
	for _, s := range m {
		s.Notify(title, body)
	}
}

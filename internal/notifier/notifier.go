// Package notifier delivers reminder messages to users.
package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailminder/pkg/config"
)

// Notifier sends one plain-text message. A nil error means the message was
// accepted for delivery.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogNotifier 只写日志，用于本地开发
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("Reminder notification",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// New 按 driver 构造发信器：smtp 或 log
func New(cfg config.NotifierConfig, logger *zap.Logger) (Notifier, error) {
	switch cfg.Driver {
	case "log":
		return NewLogNotifier(logger), nil
	case "", "smtp":
		if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
			return nil, fmt.Errorf("notifier.smtp.host and notifier.smtp.from are required")
		}
		return NewSMTPNotifier(cfg.SMTP), nil
	}
	return nil, fmt.Errorf("unknown notifier driver %q", cfg.Driver)
}

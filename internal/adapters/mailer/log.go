package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/service"
)

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.With(zap.String("component", "log_mailer"))}
}

func (l *LogMailer) Deliver(_ context.Context, msg service.Mail) error {
	if err := validate(msg); err != nil {
		return err
	}
	l.logger.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)))
	return nil
}

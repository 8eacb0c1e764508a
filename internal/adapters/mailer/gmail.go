package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/service"
)

// GmailMailer sends from the support mailbox itself.
type GmailMailer struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

// NewGmailMailer creates the mailer on an authenticated service.
func NewGmailMailer(svc *gmail.Service, user string, logger *zap.Logger) *GmailMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if user == "" {
		user = "me"
	}
	return &GmailMailer{svc: svc, user: user, logger: logger.With(zap.String("component", "gmail_mailer"))}
}

// Deliver implements service.Mailer.
func (g *GmailMailer) Deliver(ctx context.Context, msg service.Mail) error {
	if err := validate(msg); err != nil {
		return err
	}
	raw := base64.URLEncoding.EncodeToString(buildMessage(msg, time.Now()))
	sent, err := g.svc.Users.Messages.Send(g.user, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w: %w", domain.ErrAdapter, err)
	}
	g.logger.Debug("message sent", zap.String("gmail_id", sent.Id), zap.String("to", msg.To))
	return nil
}

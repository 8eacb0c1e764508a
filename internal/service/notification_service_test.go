package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

func newNotification(t *testing.T, mailer Mailer) *NotificationService {
	t.Helper()
	settings := config.DefaultSettings()
	settings.FromName = "Acme Helpdesk"
	n, err := NewNotificationService(mailer, config.NotificationConfig{EmailFrom: "support@acme.test"}, settings, nil)
	require.NoError(t, err)
	return n
}

func TestNotificationRenderCreated(t *testing.T) {
	n := newNotification(t, &fakeMailer{})

	mail, err := n.Render(config.TemplateTicketCreated, map[string]string{
		"caller_name":       "Jane",
		"ticket_number":     "INC0012345",
		"short_description": "VPN down",
		"priority":          "2",
		"assigned_group":    "Network Ops",
	})
	require.NoError(t, err)

	assert.Equal(t, "Support Ticket Created - INC0012345", mail.Subject)
	assert.Contains(t, mail.Body, "Dear Jane,")
	assert.Contains(t, mail.Body, "Assigned to: Network Ops")
	assert.Contains(t, mail.Body, "Acme Helpdesk")
	assert.Equal(t, "support@acme.test", mail.From)
}

func TestNotificationMissingVarsRenderEmpty(t *testing.T) {
	n := newNotification(t, &fakeMailer{})

	mail, err := n.Render(config.TemplateTicketClosed, nil)
	require.NoError(t, err)
	assert.NotContains(t, mail.Body, "<no value>")
}

func TestNotificationSend(t *testing.T) {
	mailer := &fakeMailer{}
	n := newNotification(t, mailer)

	err := n.Send(context.Background(), config.TemplateTicketClosed, map[string]string{"ticket_number": "INC1"}, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, mailer.delivered, 1)
	assert.Equal(t, "jane@example.com", mailer.delivered[0].To)
	assert.Equal(t, "Support Ticket Resolved - INC1", mailer.delivered[0].Subject)
}

func TestNotificationSendErrors(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("421 try later")}
	n := newNotification(t, mailer)

	assert.Error(t, n.Send(context.Background(), config.TemplateTicketClosed, nil, "  "))
	assert.Error(t, n.Send(context.Background(), "nope", nil, "a@example.com"))

	err := n.Send(context.Background(), config.TemplateTicketClosed, nil, "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421 try later")
}

func TestNewNotificationServiceRejectsBrokenTemplate(t *testing.T) {
	settings := config.DefaultSettings()
	settings.EmailTemplates[config.TemplateTicketCreated] = config.TemplateSettings{Subject: "{{.ticket_number", Body: "x"}

	_, err := NewNotificationService(&fakeMailer{}, config.NotificationConfig{}, settings, nil)
	assert.Error(t, err)
}

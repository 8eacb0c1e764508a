package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

// NotificationService renders the configured email templates and hands the
// result to a Mailer. It implements Notifier.
type NotificationService struct {
	mailer    Mailer
	from      string
	fromName  string
	templates map[string]compiledTemplate
	logger    *zap.Logger
}

// NewNotificationService compiles every template up front so a broken
// settings file fails at startup.
func NewNotificationService(mailer Mailer, cfg config.NotificationConfig, settings *config.Settings, logger *zap.Logger) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make(map[string]compiledTemplate, len(settings.EmailTemplates))
	for name, t := range settings.EmailTemplates {
		subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(t.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(t.Body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		compiled[name] = compiledTemplate{subject: subject, body: body}
	}
	return &NotificationService{
		mailer:    mailer,
		from:      cfg.EmailFrom,
		fromName:  settings.FromName,
		templates: compiled,
		logger:    logger.With(zap.String("component", "notification")),
	}, nil
}

// Send renders templateName with vars and delivers it to to.
func (n *NotificationService) Send(ctx context.Context, templateName string, vars map[string]string, to string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send %s: empty recipient", templateName)
	}
	mail, err := n.Render(templateName, vars)
	if err != nil {
		return err
	}
	mail.To = to

	if err := n.mailer.Deliver(ctx, mail); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", templateName, to, err)
	}
	n.logger.Info("notification sent", zap.String("template", templateName), zap.String("to", to))
	return nil
}

// Render produces the subject and body without delivering.
func (n *NotificationService) Render(templateName string, vars map[string]string) (Mail, error) {
	t, ok := n.templates[templateName]
	if !ok {
		return Mail{}, fmt.Errorf("unknown template %q", templateName)
	}

	data := make(map[string]string, len(vars)+1)
	data["from_name"] = n.fromName
	for k, v := range vars {
		data[k] = v
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Mail{}, fmt.Errorf("render %s subject: %w", templateName, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Mail{}, fmt.Errorf("render %s body: %w", templateName, err)
	}
	return Mail{
		From:     n.from,
		FromName: n.fromName,
		Subject:  strings.TrimSpace(subject.String()),
		Body:     strings.TrimLeft(body.String(), "\n"),
	}, nil
}

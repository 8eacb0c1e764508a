package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// MailSource yields unseen support mailbox messages. Implementations mark
// what they return so the next fetch does not repeat it.
type MailSource interface {
	FetchCandidates(ctx context.Context, since time.Time) ([]domain.EmailCandidate, error)
}

// MailRequeuer is implemented by mail sources that can return messages to
// the unprocessed pool so a later fetch hands them out again.
type MailRequeuer interface {
	Requeue(ctx context.Context, messageIDs []string) error
}

// AutoReplyFilter detects out-of-office replies and delivery reports.
type AutoReplyFilter interface {
	IsAutoReply(email domain.EmailCandidate) bool
}

// Classifier wraps the AI calls. Every method fails with an error wrapping
// domain.ErrAdapter.
type Classifier interface {
	IsSupport(ctx context.Context, subject, preview string) (domain.ClassificationResult, error)
	Summarize(ctx context.Context, subject, preview string) (domain.Summary, error)
	Categorize(ctx context.Context, title, description string) (domain.Categorization, error)
}

// Ticketing is the helpdesk backend. Lookups return domain.ErrNotFound on a
// miss; other failures wrap domain.ErrAdapter.
type Ticketing interface {
	LookupUser(ctx context.Context, email string) (domain.UserRef, error)
	LookupGroup(ctx context.Context, category string) (domain.GroupRef, error)
	CreateTicket(ctx context.Context, draft domain.TicketDraft, caller domain.UserRef, group domain.GroupRef) (domain.CreatedTicket, error)
	GetStatus(ctx context.Context, ticketID string) (domain.TicketState, error)
}

// Notifier sends a templated email.
type Notifier interface {
	Send(ctx context.Context, template string, vars map[string]string, to string) error
}

// Mail is a rendered message handed to a Mailer.
type Mail struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
}

// Mailer delivers rendered mail.
type Mailer interface {
	Deliver(ctx context.Context, mail Mail) error
}

// Timeouts bounds each external call made by the services.
type Timeouts struct {
	Classify  time.Duration
	Ticketing time.Duration
	Create    time.Duration
	Notify    time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

const timeLayout = "2006-01-02 15:04:05 MST"

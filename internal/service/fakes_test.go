package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

type filterFunc func(domain.EmailCandidate) bool

func (f filterFunc) IsAutoReply(e domain.EmailCandidate) bool { return f(e) }

type fakeClassifier struct {
	mu             sync.Mutex
	support        func(ctx context.Context, subject string) (domain.ClassificationResult, error)
	summary        func(ctx context.Context, subject string) (domain.Summary, error)
	category       func(ctx context.Context, title string) (domain.Categorization, error)
	summarizeCalls int
}

func supportive() *fakeClassifier {
	return &fakeClassifier{
		support: func(context.Context, string) (domain.ClassificationResult, error) {
			return domain.ClassificationResult{IsSupport: true, Confidence: 0.9, Reasoning: "asks for help"}, nil
		},
		summary: func(_ context.Context, subject string) (domain.Summary, error) {
			return domain.Summary{Title: subject, Description: "Details for " + subject, Priority: domain.TicketPriorityMedium}, nil
		},
		category: func(context.Context, string) (domain.Categorization, error) {
			return domain.Categorization{Category: "IT", Subcategory: "Network", Confidence: 0.8}, nil
		},
	}
}

func (f *fakeClassifier) IsSupport(ctx context.Context, subject, _ string) (domain.ClassificationResult, error) {
	return f.support(ctx, subject)
}

func (f *fakeClassifier) Summarize(ctx context.Context, subject, _ string) (domain.Summary, error) {
	f.mu.Lock()
	f.summarizeCalls++
	f.mu.Unlock()
	return f.summary(ctx, subject)
}

func (f *fakeClassifier) Categorize(ctx context.Context, title, _ string) (domain.Categorization, error) {
	return f.category(ctx, title)
}

type createCall struct {
	Draft  domain.TicketDraft
	Caller domain.UserRef
	Group  domain.GroupRef
}

type fakeTicketing struct {
	mu          sync.Mutex
	users       map[string]domain.UserRef
	userErr     error
	groups      map[string]domain.GroupRef
	groupErr    error
	createErr   error
	onCreate    func(ctx context.Context)
	created     []createCall
	fixedID     string
	statuses    map[string]domain.TicketState
	statusErrs  map[string]error
	statusCalls map[string]int
}

func newFakeTicketing() *fakeTicketing {
	return &fakeTicketing{
		users:       map[string]domain.UserRef{},
		groups:      map[string]domain.GroupRef{},
		statuses:    map[string]domain.TicketState{},
		statusErrs:  map[string]error{},
		statusCalls: map[string]int{},
	}
}

func (f *fakeTicketing) LookupUser(_ context.Context, email string) (domain.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return domain.UserRef{}, f.userErr
	}
	u, ok := f.users[email]
	if !ok {
		return domain.UserRef{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeTicketing) LookupGroup(_ context.Context, category string) (domain.GroupRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return domain.GroupRef{}, f.groupErr
	}
	g, ok := f.groups[category]
	if !ok {
		return domain.GroupRef{}, domain.ErrNotFound
	}
	return g, nil
}

func (f *fakeTicketing) CreateTicket(ctx context.Context, draft domain.TicketDraft, caller domain.UserRef, group domain.GroupRef) (domain.CreatedTicket, error) {
	if f.onCreate != nil {
		f.onCreate(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.CreatedTicket{}, f.createErr
	}
	f.created = append(f.created, createCall{Draft: draft, Caller: caller, Group: group})
	id := f.fixedID
	if id == "" {
		id = fmt.Sprintf("sys-%03d", len(f.created))
	}
	return domain.CreatedTicket{ID: id, Number: fmt.Sprintf("INC%07d", len(f.created))}, nil
}

func (f *fakeTicketing) GetStatus(_ context.Context, id string) (domain.TicketState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[id]++
	if err := f.statusErrs[id]; err != nil {
		return domain.TicketState{}, err
	}
	st, ok := f.statuses[id]
	if !ok {
		return domain.TicketState{Status: domain.TicketStatusOpen, Label: "New"}, nil
	}
	return st, nil
}

func (f *fakeTicketing) createdCalls() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.created...)
}

func (f *fakeTicketing) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[id]
}

type sentMail struct {
	Template string
	Vars     map[string]string
	To       string
}

type fakeNotifier struct {
	mu   sync.Mutex
	errs map[string]error
	sent []sentMail
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{errs: map[string]error{}}
}

func (f *fakeNotifier) Send(_ context.Context, template string, vars map[string]string, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{Template: template, Vars: vars, To: to})
	return f.errs[template]
}

func (f *fakeNotifier) fail(template string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[template] = err
}

func (f *fakeNotifier) attempts(template string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.Template == template {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	mu        sync.Mutex
	err       error
	delivered []Mail
}

func (f *fakeMailer) Deliver(_ context.Context, m Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, m)
	return nil
}

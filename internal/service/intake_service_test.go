package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type intakeFixture struct {
	svc        *IntakeService
	store      *tracking.Store
	classifier *fakeClassifier
	ticketing  *fakeTicketing
	notifier   *fakeNotifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      *clock.Fake
}

func newIntakeFixture(t *testing.T, opts ...func(*IntakeConfig)) *intakeFixture {
	t.Helper()
	f := &intakeFixture{
		store:      tracking.NewStore(),
		classifier: supportive(),
		ticketing:  newFakeTicketing(),
		notifier:   newFakeNotifier(),
		dispatcher: events.NewInMemoryDispatcher(),
		metrics:    observability.NewMetrics(),
		clock:      clock.NewFake(testStart),
	}
	cfg := IntakeConfig{
		SupportThreshold:  0.7,
		CategoryThreshold: 0.6,
		DefaultCategory:   "General",
		Concurrency:       4,
		Timeouts:          Timeouts{Classify: time.Second, Ticketing: time.Second, Create: time.Second, Notify: time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	assignment := NewAssignmentService(AssignmentDependencies{
		Ticketing: f.ticketing,
		Fallback:  config.DefaultSettings().Fallback(),
		Timeout:   time.Second,
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	})
	f.svc = NewIntakeService(cfg, IntakeDependencies{
		Filter:     filterFunc(func(e domain.EmailCandidate) bool { return strings.HasPrefix(e.Subject, "Out of office") }),
		Classifier: f.classifier,
		Ticketing:  f.ticketing,
		Assignment: assignment,
		Notifier:   f.notifier,
		Store:      f.store,
		Dispatcher: f.dispatcher,
		Metrics:    f.metrics,
		Logger:     zap.NewNop(),
		Clock:      f.clock,
	})
	return f
}

func candidate(id, subject, sender string) domain.EmailCandidate {
	return domain.EmailCandidate{
		MessageID:  id,
		Subject:    subject,
		Preview:    "body of " + subject,
		Sender:     sender,
		ReceivedAt: testStart.Add(-time.Minute),
	}
}

func TestRunCycleEmptyInput(t *testing.T) {
	f := newIntakeFixture(t)

	report := f.svc.RunCycle(context.Background(), nil)

	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.TicketsCreated)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 0, f.store.Len())
}

func TestRunCycleNonSupportCreatesNothing(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.support = func(context.Context, string) (domain.ClassificationResult, error) {
		return domain.ClassificationResult{IsSupport: false, Confidence: 0.95, Reasoning: "newsletter"}, nil
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "Weekly digest", "news@example.com")})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.SkippedNonSupport)
	assert.Empty(t, f.ticketing.createdCalls())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.notifier.attempts(config.TemplateTicketCreated))
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, domain.ReasonNotSupport, report.Outcomes[0].Reason)
}

func TestRunCycleBelowThresholdIsNotSupport(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.support = func(context.Context, string) (domain.ClassificationResult, error) {
		return domain.ClassificationResult{IsSupport: true, Confidence: 0.5}, nil
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "maybe help?", "a@example.com")})

	assert.Equal(t, 1, report.SkippedNonSupport)
	assert.Empty(t, f.ticketing.createdCalls())
}

func TestRunCycleAutoReplySkippedBeforeClassification(t *testing.T) {
	f := newIntakeFixture(t)
	var classified atomic.Int32
	f.classifier.support = func(context.Context, string) (domain.ClassificationResult, error) {
		classified.Add(1)
		return domain.ClassificationResult{IsSupport: true, Confidence: 1}, nil
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "Out of office until Monday", "a@example.com")})

	assert.Equal(t, 1, report.SkippedAutoReply)
	assert.Equal(t, int32(0), classified.Load())
	assert.Equal(t, domain.ReasonAutoReply, report.Outcomes[0].Reason)
}

func TestRunCycleClassifyErrorFails(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.support = func(context.Context, string) (domain.ClassificationResult, error) {
		return domain.ClassificationResult{}, fmt.Errorf("llm down: %w", domain.ErrAdapter)
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, domain.ReasonClassifyError, report.Failures[0].Reason)
}

func TestRunCycleSummarizeErrorIsNotRetried(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.summary = func(context.Context, string) (domain.Summary, error) {
		return domain.Summary{}, fmt.Errorf("timeout: %w", domain.ErrAdapter)
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "printer jam", "a@example.com")})

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.ReasonSummarizeError, report.Outcomes[0].Reason)
	assert.Equal(t, 1, f.classifier.summarizeCalls)
	assert.Empty(t, f.ticketing.createdCalls())
	assert.Equal(t, 0, f.store.Len())
}

func TestRunCycleCategorizationFailureFallsBackToGeneral(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.category = func(context.Context, string) (domain.Categorization, error) {
		return domain.Categorization{}, fmt.Errorf("bad json: %w", domain.ErrAdapter)
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "desk is broken", "a@example.com")})

	assert.Equal(t, 1, report.TicketsCreated)
	calls := f.ticketing.createdCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "General", calls[0].Draft.Category)
	assert.Equal(t, "General", report.Outcomes[0].Category)
}

func TestRunCycleLowCategoryConfidenceUsesDefault(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.category = func(context.Context, string) (domain.Categorization, error) {
		return domain.Categorization{Category: "Finance", Confidence: 0.2}, nil
	}

	f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "question", "a@example.com")})

	calls := f.ticketing.createdCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "General", calls[0].Draft.Category)
}

func TestRunCycleCreatesTrackedTicket(t *testing.T) {
	f := newIntakeFixture(t)
	f.ticketing.users["jane@example.com"] = domain.UserRef{ID: "u-1", Name: "Jane Doe"}
	f.ticketing.groups["IT"] = domain.GroupRef{ID: "g-it", Name: "IT Support"}

	var created atomic.Int32
	f.dispatcher.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		created.Add(1)
		return nil
	})

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "Laptop will not boot", "jane@example.com")})

	assert.Equal(t, 1, report.TicketsCreated)
	assert.Empty(t, report.Failures)

	rec, ok := f.store.Get("sys-001")
	require.True(t, ok)
	assert.Equal(t, domain.TicketStatusOpen, rec.Status)
	assert.Equal(t, "INC0000001", rec.Number)
	assert.Equal(t, "jane@example.com", rec.RequesterEmail)
	assert.Equal(t, "Jane Doe", rec.RequesterName)
	assert.Equal(t, "IT Support", rec.AssignmentGroup)
	assert.Equal(t, testStart, rec.CreatedAt)

	calls := f.ticketing.createdCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "u-1", calls[0].Caller.ID)
	assert.Equal(t, "g-it", calls[0].Group.ID)
	assert.Equal(t, "m1", calls[0].Draft.SourceMessageID)

	require.Equal(t, 1, f.notifier.attempts(config.TemplateTicketCreated))
	sent := f.notifier.sent[0]
	assert.Equal(t, "jane@example.com", sent.To)
	assert.Equal(t, "INC0000001", sent.Vars["ticket_number"])
	assert.Equal(t, "Jane Doe", sent.Vars["caller_name"])
	assert.Equal(t, "IT Support", sent.Vars["assigned_group"])
	assert.Equal(t, int32(1), created.Load())
}

// A VPN request from a known caller whose group lookup fails still gets a
// ticket on the default group and a confirmation attempt.
func TestRunCycleVPNRequestWithGroupLookupFailure(t *testing.T) {
	f := newIntakeFixture(t)
	f.ticketing.users["sam@example.com"] = domain.UserRef{ID: "u-sam", Name: "Sam Lee"}
	f.ticketing.groupErr = fmt.Errorf("group table unavailable: %w", domain.ErrAdapter)
	f.classifier.summary = func(context.Context, string) (domain.Summary, error) {
		return domain.Summary{Title: "VPN connection failure", Description: "Cannot connect to VPN from home", Priority: domain.TicketPriorityHigh}, nil
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("vpn-1", "Can't connect to VPN", "sam@example.com")})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.TicketsCreated)
	assert.Empty(t, report.Failures)

	calls := f.ticketing.createdCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "IT", calls[0].Draft.Category)
	assert.Equal(t, "u-sam", calls[0].Caller.ID)
	assert.Equal(t, config.DefaultSettings().Fallbacks.DefaultAssignmentGroup, calls[0].Group)
	assert.Equal(t, domain.TicketPriorityHigh, calls[0].Draft.Priority)

	assert.Equal(t, 1, f.notifier.attempts(config.TemplateTicketCreated))
	assert.Equal(t, 1, f.store.OpenCount())
	assert.Equal(t, int64(1), f.metrics.Snapshot().AdapterFailures["ticketing|lookup_group"])
}

func TestRunCycleCreateErrorLeavesNoRecord(t *testing.T) {
	f := newIntakeFixture(t)
	f.ticketing.createErr = fmt.Errorf("500 from backend: %w", domain.ErrAdapter)

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.ReasonTicketCreateError, report.Failures[0].Reason)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.notifier.attempts(config.TemplateTicketCreated))
}

func TestRunCycleNotifyFailureKeepsTicket(t *testing.T) {
	f := newIntakeFixture(t)
	f.notifier.fail(config.TemplateTicketCreated, errors.New("smtp refused"))

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Equal(t, 1, report.TicketsCreated)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.NotificationFailures)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, domain.ReasonNotifyError, report.Failures[0].Reason)
	assert.Equal(t, 1, f.store.OpenCount())
}

func TestRunCycleTrackingErrorReportsTicket(t *testing.T) {
	f := newIntakeFixture(t)
	f.ticketing.fixedID = "sys-dup"
	require.NoError(t, f.store.Insert(domain.TicketRecord{ID: "sys-dup", CreatedAt: testStart}))

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.ReasonTrackingError, report.Outcomes[0].Reason)
	assert.Equal(t, "sys-dup", report.Outcomes[0].TicketID)
	assert.Equal(t, 1, f.store.Len())
}

func TestRunCycleDuplicateMessageIDsCreateOneTicket(t *testing.T) {
	f := newIntakeFixture(t)
	c := candidate("m1", "help", "a@example.com")

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{c, c})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.TicketsCreated)
	assert.Equal(t, 1, report.SkippedDuplicate)
	assert.Len(t, f.ticketing.createdCalls(), 1)
}

func TestRunCyclePanicIsolatedToCandidate(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.support = func(_ context.Context, subject string) (domain.ClassificationResult, error) {
		if subject == "boom" {
			panic("unexpected nil")
		}
		return domain.ClassificationResult{IsSupport: true, Confidence: 0.9}, nil
	}

	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{
		candidate("m1", "boom", "a@example.com"),
		candidate("m2", "printer", "b@example.com"),
	})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.TicketsCreated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.ReasonInternalError, report.Outcomes[0].Reason)
}

func TestRunCycleEveryCandidateResolvesOnce(t *testing.T) {
	f := newIntakeFixture(t)
	f.classifier.support = func(_ context.Context, subject string) (domain.ClassificationResult, error) {
		switch {
		case strings.HasSuffix(subject, "0"):
			return domain.ClassificationResult{IsSupport: false, Confidence: 0.9}, nil
		case strings.HasSuffix(subject, "1"):
			return domain.ClassificationResult{}, domain.ErrAdapter
		}
		return domain.ClassificationResult{IsSupport: true, Confidence: 0.9}, nil
	}

	var batch []domain.EmailCandidate
	for i := 0; i < 40; i++ {
		subject := fmt.Sprintf("request %d", i)
		if i%7 == 0 {
			subject = "Out of office " + subject
		}
		batch = append(batch, candidate(fmt.Sprintf("m%d", i), subject, fmt.Sprintf("user%d@example.com", i)))
	}

	report := f.svc.RunCycle(context.Background(), batch)

	assert.Equal(t, len(batch), report.Processed)
	assert.Equal(t, report.Processed,
		report.TicketsCreated+report.SkippedNonSupport+report.SkippedAutoReply+report.SkippedDuplicate+report.Failed)
	assert.Len(t, report.Outcomes, len(batch))
	assert.Equal(t, report.TicketsCreated, f.store.Len())
	for i, o := range report.Outcomes {
		assert.Equal(t, batch[i].MessageID, o.MessageID)
	}
}

func TestRunCycleCreateSurvivesCancellation(t *testing.T) {
	f := newIntakeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var createCtxErr error
	f.ticketing.onCreate = func(callCtx context.Context) {
		cancel()
		createCtxErr = callCtx.Err()
	}

	report := f.svc.RunCycle(ctx, []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.NoError(t, createCtxErr)
	assert.Equal(t, 1, report.TicketsCreated)
	assert.Equal(t, 1, f.store.OpenCount())
}

func TestRunCycleCancelledBeforeCreate(t *testing.T) {
	f := newIntakeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.classifier.category = func(context.Context, string) (domain.Categorization, error) {
		cancel()
		return domain.Categorization{Category: "IT", Confidence: 0.9}, nil
	}

	report := f.svc.RunCycle(ctx, []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.ReasonCancelled, report.Outcomes[0].Reason)
	assert.Empty(t, f.ticketing.createdCalls())
}

func TestRunCycleClassifierTimeoutIsBounded(t *testing.T) {
	f := newIntakeFixture(t, func(c *IntakeConfig) { c.Timeouts.Classify = 20 * time.Millisecond })
	f.classifier.support = func(ctx context.Context, _ string) (domain.ClassificationResult, error) {
		<-ctx.Done()
		return domain.ClassificationResult{}, fmt.Errorf("%w: %v", domain.ErrAdapter, ctx.Err())
	}

	start := time.Now()
	report := f.svc.RunCycle(context.Background(), []domain.EmailCandidate{candidate("m1", "help", "a@example.com")})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.ReasonClassifyError, report.Outcomes[0].Reason)
}

func TestCompleteSummaryFillsBlanks(t *testing.T) {
	c := domain.EmailCandidate{Subject: "  Monitor flickers  ", Sender: "a@example.com", Preview: "since Monday"}

	got := completeSummary(domain.Summary{Priority: 9}, c)

	assert.Equal(t, "Monitor flickers", got.Title)
	assert.Contains(t, got.Description, "a@example.com")
	assert.Contains(t, got.Description, "since Monday")
	assert.Equal(t, domain.TicketPriorityLow, got.Priority)

	long := completeSummary(domain.Summary{Title: strings.Repeat("x", 200), Description: "d", Priority: 2}, c)
	assert.Len(t, []rune(long.Title), maxTitleLen)
	assert.True(t, strings.HasSuffix(long.Title, "..."))
}

func TestGreetingName(t *testing.T) {
	c := domain.EmailCandidate{Sender: "pat.kim@example.com"}
	assert.Equal(t, "Pat", greetingName(Assignment{Caller: domain.UserRef{Name: "Pat"}}, c))
	assert.Equal(t, "pat.kim", greetingName(Assignment{Caller: domain.UserRef{Name: "Guest"}, CallerFallback: true}, c))
	c.SenderName = "Pat Kim"
	assert.Equal(t, "Pat Kim", greetingName(Assignment{CallerFallback: true}, c))
	assert.Equal(t, "there", greetingName(Assignment{CallerFallback: true}, domain.EmailCandidate{}))
}

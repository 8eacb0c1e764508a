package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
)

const (
	maxTitleLen       = 80
	maxDescriptionLen = 4000
)

// IntakeConfig tunes the per-email pipeline.
type IntakeConfig struct {
	SupportThreshold  float64
	CategoryThreshold float64
	DefaultCategory   string
	Concurrency       int
	Timeouts          Timeouts
}

// IntakeDependencies bundles collaborators.
type IntakeDependencies struct {
	Filter     AutoReplyFilter
	Classifier Classifier
	Ticketing  Ticketing
	Assignment *AssignmentService
	Notifier   Notifier
	Store      *tracking.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      clock.Clock
}

// IntakeService turns fetched emails into tracked tickets.
type IntakeService struct {
	cfg        IntakeConfig
	filter     AutoReplyFilter
	classifier Classifier
	ticketing  Ticketing
	assignment *AssignmentService
	notifier   Notifier
	store      *tracking.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      clock.Clock
}

// NewIntakeService creates the service.
func NewIntakeService(cfg IntakeConfig, deps IntakeDependencies) *IntakeService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "General"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &IntakeService{
		cfg:        cfg,
		filter:     deps.Filter,
		classifier: deps.Classifier,
		ticketing:  deps.Ticketing,
		assignment: deps.Assignment,
		notifier:   deps.Notifier,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "intake")),
		clock:      clk,
	}
}

// RunCycle processes every candidate and never fails: each one resolves to
// exactly one done, skipped or failed outcome. Candidates run in parallel up
// to the configured concurrency; a repeated message id within the batch is
// skipped as a duplicate.
func (s *IntakeService) RunCycle(ctx context.Context, candidates []domain.EmailCandidate) domain.CycleReport {
	report := domain.NewCycleReport()
	if len(candidates) == 0 {
		return report
	}

	outcomes := make([]domain.CandidateOutcome, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		if candidate.MessageID != "" {
			if _, dup := seen[candidate.MessageID]; dup {
				outcomes[i] = skipped(candidate, domain.ReasonDuplicate, "repeated message id in batch")
				continue
			}
			seen[candidate.MessageID] = struct{}{}
		}
		g.Go(func() error {
			outcomes[i] = s.processSafe(ctx, candidate)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		s.metrics.RecordOutcome(string(o.State), string(o.Reason))
		report.Add(o)
	}
	s.logger.Info("cycle processed",
		zap.Int("processed", report.Processed),
		zap.Int("tickets_created", report.TicketsCreated),
		zap.Int("skipped_non_support", report.SkippedNonSupport),
		zap.Int("skipped_auto_reply", report.SkippedAutoReply),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *IntakeService) processSafe(ctx context.Context, candidate domain.EmailCandidate) (out domain.CandidateOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline panic", zap.String("message_id", candidate.MessageID), zap.Any("panic", r))
			out = failed(candidate, domain.ReasonInternalError, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.process(ctx, candidate)
}

func (s *IntakeService) process(ctx context.Context, candidate domain.EmailCandidate) domain.CandidateOutcome {
	log := s.logger.With(zap.String("message_id", candidate.MessageID))

	if s.filter != nil && s.filter.IsAutoReply(candidate) {
		log.Debug("auto reply skipped", zap.String("subject", candidate.Subject))
		return skipped(candidate, domain.ReasonAutoReply, "")
	}

	verdict, err := s.classify(ctx, candidate)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		s.metrics.RecordAdapterFailure("classifier", "is_support")
		return failed(candidate, domain.ReasonClassifyError, err)
	}
	if !verdict.IsSupport || verdict.Confidence < s.cfg.SupportThreshold {
		log.Info("not a support request",
			zap.Bool("is_support", verdict.IsSupport),
			zap.Float64("confidence", verdict.Confidence))
		return skipped(candidate, domain.ReasonNotSupport, verdict.Reasoning)
	}

	summary, err := s.summarize(ctx, candidate)
	if err != nil {
		log.Warn("summarization failed", zap.Error(err))
		s.metrics.RecordAdapterFailure("classifier", "summarize")
		return failed(candidate, domain.ReasonSummarizeError, err)
	}

	category := s.categorize(ctx, summary, log)

	draft := domain.TicketDraft{
		Title:           summary.Title,
		Description:     summary.Description,
		Priority:        summary.Priority,
		Category:        category.Category,
		Subcategory:     category.Subcategory,
		RequesterEmail:  candidate.Sender,
		SourceMessageID: candidate.MessageID,
	}

	assignment := s.assignment.Resolve(ctx, candidate.Sender, draft.Category)

	if err := ctx.Err(); err != nil {
		return failed(candidate, domain.ReasonCancelled, err)
	}

	created, err := s.createTicket(ctx, draft, assignment)
	if err != nil {
		log.Error("ticket creation failed", zap.Error(err))
		s.metrics.RecordAdapterFailure("ticketing", "create_ticket")
		return failed(candidate, domain.ReasonTicketCreateError, err)
	}
	log = log.With(zap.String("ticket_id", created.ID))

	now := s.clock.Now()
	record := domain.TicketRecord{
		ID:              created.ID,
		Number:          created.Number,
		Title:           draft.Title,
		RequesterEmail:  candidate.Sender,
		RequesterName:   greetingName(assignment, candidate),
		Category:        draft.Category,
		AssignmentGroup: assignment.Group.Label(),
		CreatedAt:       now,
		LastCheckedAt:   now,
		Status:          domain.TicketStatusOpen,
	}
	if err := s.store.Insert(record); err != nil {
		log.Error("ticket created but not tracked", zap.Error(err))
		out := failed(candidate, domain.ReasonTrackingError, err)
		out.TicketID = created.ID
		return out
	}

	s.publish(ctx, events.New(events.EventTicketCreated, created.ID, now, events.TicketCreatedPayload{
		MessageID:       candidate.MessageID,
		Number:          created.Number,
		Category:        draft.Category,
		AssignmentGroup: record.AssignmentGroup,
		Priority:        draft.Priority,
		CallerFallback:  assignment.CallerFallback,
		GroupFallback:   assignment.GroupFallback,
	}))

	out := domain.CandidateOutcome{
		MessageID: candidate.MessageID,
		State:     domain.OutcomeDone,
		TicketID:  created.ID,
		Category:  draft.Category,
	}
	if err := s.notifyCreated(ctx, candidate, draft, record, assignment); err != nil {
		log.Warn("creation notification failed", zap.Error(err))
		s.metrics.RecordAdapterFailure("notifier", "ticket_created")
		out.NotifyError = err.Error()
	}
	log.Info("ticket created",
		zap.String("number", created.Number),
		zap.String("category", draft.Category),
		zap.String("group", record.AssignmentGroup))
	return out
}

func (s *IntakeService) classify(ctx context.Context, c domain.EmailCandidate) (domain.ClassificationResult, error) {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Classify)
	defer cancel()
	return s.classifier.IsSupport(callCtx, c.Subject, c.Preview)
}

func (s *IntakeService) summarize(ctx context.Context, c domain.EmailCandidate) (domain.Summary, error) {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Classify)
	defer cancel()
	summary, err := s.classifier.Summarize(callCtx, c.Subject, c.Preview)
	if err != nil {
		return domain.Summary{}, err
	}
	return completeSummary(summary, c), nil
}

// categorize never fails; errors and low confidence fall back to the
// default category.
func (s *IntakeService) categorize(ctx context.Context, summary domain.Summary, log *zap.Logger) domain.Categorization {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Classify)
	defer cancel()

	cat, err := s.classifier.Categorize(callCtx, summary.Title, summary.Description)
	switch {
	case err != nil:
		log.Warn("categorization failed, using default category", zap.Error(err))
		s.metrics.RecordAdapterFailure("classifier", "categorize")
		return domain.Categorization{Category: s.cfg.DefaultCategory}
	case strings.TrimSpace(cat.Category) == "":
		return domain.Categorization{Category: s.cfg.DefaultCategory}
	case cat.Confidence < s.cfg.CategoryThreshold:
		log.Info("low categorization confidence, using default category",
			zap.String("category", cat.Category), zap.Float64("confidence", cat.Confidence))
		return domain.Categorization{Category: s.cfg.DefaultCategory}
	}
	return cat
}

// createTicket must not be interrupted once started, so it runs detached from
// cycle cancellation under its own deadline.
func (s *IntakeService) createTicket(ctx context.Context, draft domain.TicketDraft, a Assignment) (domain.CreatedTicket, error) {
	callCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.cfg.Timeouts.Create)
	defer cancel()

	created, err := s.ticketing.CreateTicket(callCtx, draft, a.Caller, a.Group)
	if err != nil {
		return domain.CreatedTicket{}, err
	}
	if created.ID == "" {
		return domain.CreatedTicket{}, fmt.Errorf("create ticket: empty ticket id: %w", domain.ErrAdapter)
	}
	return created, nil
}

func (s *IntakeService) notifyCreated(ctx context.Context, c domain.EmailCandidate, draft domain.TicketDraft, rec domain.TicketRecord, a Assignment) error {
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Notify)
	defer cancel()

	vars := map[string]string{
		"caller_name":       rec.RequesterName,
		"ticket_number":     rec.DisplayNumber(),
		"short_description": draft.Title,
		"description":       draft.Description,
		"priority":          strconv.Itoa(int(draft.Priority)),
		"category":          draft.Category,
		"assigned_group":    rec.AssignmentGroup,
		"created_time":      rec.CreatedAt.Format(timeLayout),
	}
	return s.notifier.Send(callCtx, config.TemplateTicketCreated, vars, c.Sender)
}

func (s *IntakeService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

// completeSummary guarantees a non-empty title and description.
func completeSummary(summary domain.Summary, c domain.EmailCandidate) domain.Summary {
	summary.Title = strings.TrimSpace(summary.Title)
	if summary.Title == "" {
		summary.Title = strings.TrimSpace(c.Subject)
	}
	if summary.Title == "" {
		summary.Title = "Support request"
	}
	summary.Title = truncate(summary.Title, maxTitleLen)

	summary.Description = strings.TrimSpace(summary.Description)
	if summary.Description == "" {
		summary.Description = fmt.Sprintf("Support request from %s.\nOriginal subject: %s", c.Sender, c.Subject)
		if c.Preview != "" {
			summary.Description += "\n\n" + c.Preview
		}
	}
	summary.Description = truncate(summary.Description, maxDescriptionLen)

	summary.Priority = domain.ClampPriority(int(summary.Priority))
	return summary
}

func greetingName(a Assignment, c domain.EmailCandidate) string {
	if !a.CallerFallback && a.Caller.Name != "" {
		return a.Caller.Name
	}
	if c.SenderName != "" {
		return c.SenderName
	}
	if at := strings.Index(c.Sender, "@"); at > 0 {
		return c.Sender[:at]
	}
	return "there"
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

func skipped(c domain.EmailCandidate, reason domain.OutcomeReason, detail string) domain.CandidateOutcome {
	return domain.CandidateOutcome{MessageID: c.MessageID, State: domain.OutcomeSkipped, Reason: reason, Detail: detail}
}

func failed(c domain.EmailCandidate, reason domain.OutcomeReason, err error) domain.CandidateOutcome {
	return domain.CandidateOutcome{MessageID: c.MessageID, State: domain.OutcomeFailed, Reason: reason, Detail: err.Error()}
}

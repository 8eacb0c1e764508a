package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	"github.com/spec-kit/helpdesk-intake/internal/service"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
)

const auditTimeout = 5 * time.Second

// CycleRunner processes one batch of candidates.
type CycleRunner interface {
	RunCycle(ctx context.Context, candidates []domain.EmailCandidate) domain.CycleReport
}

// Sweeper reconciles tracked tickets.
type Sweeper interface {
	Sweep(ctx context.Context) domain.SweepReport
	CheckOne(ctx context.Context, id string) (domain.SweepReport, error)
}

// SchedulerConfig holds trigger intervals.
type SchedulerConfig struct {
	FetchInterval     time.Duration
	ReconcileInterval time.Duration
	// TickInterval is how often the loop checks whether a trigger is due.
	TickInterval    time.Duration
	InitialLookback time.Duration
	FetchTimeout    time.Duration
}

// SchedulerDependencies bundles collaborators.
type SchedulerDependencies struct {
	Source     service.MailSource
	Intake     CycleRunner
	Reconcile  Sweeper
	Store      *tracking.Store
	Runs       repository.CycleRunRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      clock.Clock
}

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	Running        bool       `json:"running"`
	CycleInFlight  bool       `json:"cycle_in_flight"`
	CycleStartedAt *time.Time `json:"cycle_started_at,omitempty"`
	SweepInFlight  bool       `json:"sweep_in_flight"`
	SweepStartedAt *time.Time `json:"sweep_started_at,omitempty"`
	OpenTickets    int        `json:"open_tickets"`
	Tracked        int        `json:"tracked"`
	LastFetchAt    *time.Time `json:"last_fetch_at,omitempty"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastSweepAt    *time.Time `json:"last_sweep_at,omitempty"`
	NextCycleAt    *time.Time `json:"next_cycle_at,omitempty"`
	NextSweepAt    *time.Time `json:"next_sweep_at,omitempty"`
}

// DueRuns reports what a RunDue call executed.
type DueRuns struct {
	Cycle *domain.CycleRun
	Sweep *domain.SweepReport
}

// Scheduler owns the fetch-and-process and reconciliation triggers. All
// trigger state lives here so tests can drive it with a fake clock.
type Scheduler struct {
	cfg        SchedulerConfig
	source     service.MailSource
	intake     CycleRunner
	reconcile  Sweeper
	store      *tracking.Store
	runs       repository.CycleRunRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      clock.Clock

	cycleGuard *RunGuard
	sweepGuard *RunGuard

	mu        sync.Mutex
	lastFetch time.Time
	lastCycle time.Time
	lastSweep time.Time
	base      context.Context
	stop      context.CancelFunc
	running   bool
	wg        sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig, deps SchedulerDependencies) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	return &Scheduler{
		cfg:        cfg,
		source:     deps.Source,
		intake:     deps.Intake,
		reconcile:  deps.Reconcile,
		store:      deps.Store,
		runs:       deps.Runs,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "scheduler")),
		clock:      clk,
		cycleGuard: NewRunGuard("cycle"),
		sweepGuard: NewRunGuard("sweep"),
		base:       context.Background(),
	}
}

// Start launches the tick loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.base, s.stop = context.WithCancel(ctx)
	s.running = true
	base := s.base
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		zap.Duration("fetch_interval", s.cfg.FetchInterval),
		zap.Duration("reconcile_interval", s.cfg.ReconcileInterval))

	s.wg.Add(1)
	go s.loop(base)
}

// Stop cancels in-flight runs and waits for them to finish. An in-flight
// create-ticket call still completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.running = false
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.cycleGuard.Cancel()
	s.sweepGuard.Cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.fireDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue starts each due trigger on its own goroutine so a slow cycle does
// not delay the sweep.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clock.Now()
	if s.cycleDue(now) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduledCycle(ctx)
		}()
	}
	if s.sweepDue(now) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduledSweep(ctx)
		}()
	}
}

// RunDue synchronously executes whichever triggers are due at the current
// clock time.
func (s *Scheduler) RunDue(ctx context.Context) DueRuns {
	var out DueRuns
	now := s.clock.Now()
	if s.cycleDue(now) {
		if run, ok := s.scheduledCycle(ctx); ok {
			out.Cycle = &run
		}
	}
	if s.sweepDue(now) {
		if report, ok := s.scheduledSweep(ctx); ok {
			out.Sweep = &report
		}
	}
	return out
}

func (s *Scheduler) cycleDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle.IsZero() || now.Sub(s.lastCycle) >= s.cfg.FetchInterval
}

func (s *Scheduler) sweepDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep.IsZero() || now.Sub(s.lastSweep) >= s.cfg.ReconcileInterval
}

func (s *Scheduler) scheduledCycle(ctx context.Context) (domain.CycleRun, bool) {
	run, err := s.TriggerCycle(ctx, domain.TriggerScheduled)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		s.logger.Debug("cycle skipped, previous run still active")
		return run, false
	case err != nil:
		s.logger.Warn("cycle failed, waiting for next tick", zap.Error(err))
	}
	return run, true
}

func (s *Scheduler) scheduledSweep(ctx context.Context) (domain.SweepReport, bool) {
	report, err := s.TriggerSweep(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Debug("sweep skipped, previous run still active")
		return report, false
	}
	return report, true
}

// TriggerCycle fetches new mail and runs it through the intake pipeline. It
// fails fast with domain.ErrRunInProgress when a cycle is already active. A
// fetch failure returns the recorded run together with the error.
func (s *Scheduler) TriggerCycle(ctx context.Context, trigger domain.Trigger) (domain.CycleRun, error) {
	started := s.clock.Now()
	runCtx, release, err := s.cycleGuard.Acquire(ctx, started)
	if err != nil {
		return domain.CycleRun{Trigger: trigger, Report: domain.NewCycleReport()}, err
	}
	defer release()
	stopOnShutdown := context.AfterFunc(s.baseContext(), s.cycleGuard.Cancel)
	defer stopOnShutdown()

	s.mu.Lock()
	s.lastCycle = started
	since := s.lastFetch
	s.mu.Unlock()
	if since.IsZero() {
		since = started.Add(-s.cfg.InitialLookback)
	}

	run := domain.CycleRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Since:     since,
		StartedAt: started,
		Report:    domain.NewCycleReport(),
	}
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("trigger", string(trigger)))

	candidates, fetchErr := s.fetch(runCtx, since)
	if fetchErr != nil {
		run.Error = fetchErr.Error()
		log.Warn("mail fetch failed", zap.Error(fetchErr))
	} else {
		run.Fetched = len(candidates)
		run.Report = s.intake.RunCycle(runCtx, candidates)
		retry := retryableCandidates(candidates, run.Report)
		s.requeue(runCtx, retry, log)

		s.mu.Lock()
		s.lastFetch = nextWindow(since, started, retry)
		s.mu.Unlock()
	}
	run.FinishedAt = s.clock.Now()

	s.record(runCtx, run, log)
	log.Info("cycle finished",
		zap.Int("fetched", run.Fetched),
		zap.Int("tickets_created", run.Report.TicketsCreated),
		zap.Int("failed", run.Report.Failed),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))

	if fetchErr != nil {
		return run, fmt.Errorf("fetch candidates: %w", fetchErr)
	}
	return run, nil
}

func (s *Scheduler) fetch(ctx context.Context, since time.Time) ([]domain.EmailCandidate, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	candidates, err := s.source.FetchCandidates(ctx, since)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAdapterFailure("mailbox", "fetch")
		}
		if !errors.Is(err, domain.ErrAdapter) {
			err = fmt.Errorf("%w: %w", domain.ErrAdapter, err)
		}
		return nil, err
	}
	return candidates, nil
}

// requeue returns transiently failed candidates to the source so the next
// cycle retries them. It runs detached from cancellation so candidates
// interrupted by shutdown are not lost.
func (s *Scheduler) requeue(ctx context.Context, retry []domain.EmailCandidate, log *zap.Logger) {
	if len(retry) == 0 {
		return
	}
	rq, ok := s.source.(service.MailRequeuer)
	if !ok {
		log.Warn("mail source cannot requeue, failed candidates will not be retried", zap.Int("failed", len(retry)))
		return
	}
	ids := make([]string, 0, len(retry))
	for _, c := range retry {
		ids = append(ids, c.MessageID)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := rq.Requeue(ctx, ids); err != nil {
		log.Error("failed to requeue candidates", zap.Strings("message_ids", ids), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordAdapterFailure("mailbox", "requeue")
		}
		return
	}
	log.Info("failed candidates requeued", zap.Strings("message_ids", ids))
}

func retryableCandidates(candidates []domain.EmailCandidate, report domain.CycleReport) []domain.EmailCandidate {
	failed := make(map[string]struct{})
	for _, o := range report.Outcomes {
		if o.Retryable() {
			failed[o.MessageID] = struct{}{}
		}
	}
	var out []domain.EmailCandidate
	for _, c := range candidates {
		if _, ok := failed[c.MessageID]; ok {
			out = append(out, c)
			delete(failed, c.MessageID)
		}
	}
	return out
}

// nextWindow advances the fetch window to started, but never past a
// requeued candidate. A candidate without a receive time holds the window
// at since.
func nextWindow(since, started time.Time, retry []domain.EmailCandidate) time.Time {
	next := started
	for _, c := range retry {
		from := since
		if !c.ReceivedAt.IsZero() {
			from = c.ReceivedAt.Add(-time.Second)
		}
		if from.Before(next) {
			next = from
		}
	}
	return next
}

// record persists the run and publishes it. It runs detached from
// cancellation so interrupted cycles are still audited.
func (s *Scheduler) record(ctx context.Context, run domain.CycleRun, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	if s.runs != nil {
		if err := s.runs.Create(ctx, &run); err != nil {
			log.Error("failed to save cycle run", zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		event := events.New(events.EventCycleCompleted, "", run.FinishedAt, events.CycleCompletedPayload{Run: run})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			log.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
		}
	}
}

// TriggerSweep runs one reconciliation sweep, failing fast with
// domain.ErrRunInProgress when a sweep or single-ticket check is active.
func (s *Scheduler) TriggerSweep(ctx context.Context) (domain.SweepReport, error) {
	started := s.clock.Now()
	runCtx, release, err := s.sweepGuard.Acquire(ctx, started)
	if err != nil {
		return domain.SweepReport{Evicted: []string{}}, err
	}
	defer release()
	stopOnShutdown := context.AfterFunc(s.baseContext(), s.sweepGuard.Cancel)
	defer stopOnShutdown()

	s.mu.Lock()
	s.lastSweep = started
	s.mu.Unlock()

	report := s.reconcile.Sweep(runCtx)
	s.logger.Info("sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("closed", report.Closed),
		zap.Int("notified", report.Notified),
		zap.Int("query_failures", report.QueryFailures),
		zap.Int("evicted", len(report.Evicted)))

	if s.dispatcher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), auditTimeout)
		defer cancel()
		event := events.New(events.EventSweepCompleted, "", s.clock.Now(), events.SweepCompletedPayload{Report: report})
		if err := s.dispatcher.Publish(pubCtx, event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
		}
	}
	return report, nil
}

// CheckTicket reconciles one tracked ticket under the sweep guard.
func (s *Scheduler) CheckTicket(ctx context.Context, id string) (domain.SweepReport, error) {
	runCtx, release, err := s.sweepGuard.Acquire(ctx, s.clock.Now())
	if err != nil {
		return domain.SweepReport{Evicted: []string{}}, err
	}
	defer release()
	return s.reconcile.CheckOne(runCtx, id)
}

// Status never fails; it reports whatever state is readable.
func (s *Scheduler) Status() Status {
	var st Status

	if held, since := s.cycleGuard.Held(); held {
		st.CycleInFlight = true
		st.CycleStartedAt = &since
	}
	if held, since := s.sweepGuard.Held(); held {
		st.SweepInFlight = true
		st.SweepStartedAt = &since
	}
	if s.store != nil {
		st.OpenTickets = s.store.OpenCount()
		st.Tracked = s.store.Len()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.running
	st.LastFetchAt = timePtr(s.lastFetch)
	st.LastCycleAt = timePtr(s.lastCycle)
	st.LastSweepAt = timePtr(s.lastSweep)
	if !s.lastCycle.IsZero() {
		next := s.lastCycle.Add(s.cfg.FetchInterval)
		st.NextCycleAt = &next
	}
	if !s.lastSweep.IsZero() {
		next := s.lastSweep.Add(s.cfg.ReconcileInterval)
		st.NextSweepAt = &next
	}
	return st
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

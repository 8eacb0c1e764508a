package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
)

// ReconcileConfig tunes the reconciliation sweep.
type ReconcileConfig struct {
	Retention         time.Duration
	SendStatusUpdates bool
	Timeouts          Timeouts
}

// ReconcileDependencies bundles collaborators.
type ReconcileDependencies struct {
	Ticketing  Ticketing
	Notifier   Notifier
	Store      *tracking.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      clock.Clock
}

// ReconcileService re-queries tracked tickets and notifies requesters of
// closure.
type ReconcileService struct {
	cfg        ReconcileConfig
	ticketing  Ticketing
	notifier   Notifier
	store      *tracking.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      clock.Clock
}

// NewReconcileService creates the service.
func NewReconcileService(cfg ReconcileConfig, deps ReconcileDependencies) *ReconcileService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &ReconcileService{
		cfg:        cfg,
		ticketing:  deps.Ticketing,
		notifier:   deps.Notifier,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "reconcile")),
		clock:      clk,
	}
}

// Sweep retries pending closure notifications, re-queries every open record
// oldest first, then evicts expired records. A failed status query marks the
// record unknown until the next sweep; a closed ticket whose notification
// fails stays in the store as closed and is only re-notified later.
func (s *ReconcileService) Sweep(ctx context.Context) domain.SweepReport {
	report := domain.SweepReport{Evicted: []string{}}

	for _, rec := range s.store.ListClosed() {
		if ctx.Err() != nil {
			break
		}
		s.deliverClosure(ctx, rec, &report)
	}

	for _, rec := range s.store.ListOpen() {
		if ctx.Err() != nil {
			s.logger.Info("sweep cancelled", zap.Error(ctx.Err()))
			break
		}
		s.reconcile(ctx, rec, &report)
	}

	now := s.clock.Now()
	report.Evicted = append(report.Evicted, s.store.EvictExpired(s.cfg.Retention, now)...)
	for _, id := range report.Evicted {
		s.logger.Info("tracked ticket evicted", zap.String("ticket_id", id), zap.Duration("retention", s.cfg.Retention))
		s.publish(ctx, events.New(events.EventTicketEvicted, id, now, events.TicketEvictedPayload{Retention: s.cfg.Retention}))
	}

	return report
}

// CheckOne runs the sweep step for a single tracked ticket.
func (s *ReconcileService) CheckOne(ctx context.Context, id string) (domain.SweepReport, error) {
	report := domain.SweepReport{Evicted: []string{}}
	rec, ok := s.store.Get(id)
	if !ok {
		return report, fmt.Errorf("tracked ticket %s: %w", id, domain.ErrNotFound)
	}
	if rec.Status == domain.TicketStatusClosed {
		s.deliverClosure(ctx, rec, &report)
	} else {
		s.reconcile(ctx, rec, &report)
	}
	return report, nil
}

func (s *ReconcileService) reconcile(ctx context.Context, rec domain.TicketRecord, report *domain.SweepReport) {
	log := s.logger.With(zap.String("ticket_id", rec.ID))
	report.Checked++

	state, err := s.getStatus(ctx, rec.ID)
	now := s.clock.Now()
	if err != nil {
		log.Warn("status query failed", zap.Error(err))
		s.metrics.RecordAdapterFailure("ticketing", "get_status")
		s.store.UpdateStatus(rec.ID, domain.TicketStatusUnknown, now)
		report.QueryFailures++
		return
	}

	change, changed := s.store.RecordState(rec.ID, state, now)
	if changed {
		s.publish(ctx, events.New(events.EventTicketStatusChanged, rec.ID, now, events.TicketStatusChangedPayload{Change: change}))
	}

	updated, ok := s.store.Get(rec.ID)
	if !ok {
		return
	}

	if state.Status == domain.TicketStatusClosed {
		report.Closed++
		log.Info("ticket closed", zap.String("state", state.Label))
		s.deliverClosure(ctx, updated, report)
		return
	}

	if changed && change.LabelChanged() && s.cfg.SendStatusUpdates {
		if err := s.notifyUpdated(ctx, updated, state); err != nil {
			log.Warn("status update notification failed", zap.Error(err))
			s.metrics.RecordAdapterFailure("notifier", "ticket_updated")
			return
		}
		report.Updates++
	}
}

func (s *ReconcileService) getStatus(ctx context.Context, id string) (domain.TicketState, error) {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Ticketing)
	defer cancel()

	state, err := s.ticketing.GetStatus(callCtx, id)
	if err != nil {
		return domain.TicketState{}, err
	}
	if state.Status == "" {
		state.Status = domain.TicketStatusUnknown
	}
	return state, nil
}

// deliverClosure sends the closure notice and drops the record on success.
func (s *ReconcileService) deliverClosure(ctx context.Context, rec domain.TicketRecord, report *domain.SweepReport) {
	log := s.logger.With(zap.String("ticket_id", rec.ID))
	now := s.clock.Now()

	if rec.RequesterEmail == "" {
		log.Warn("closed ticket has no requester address, dropping")
		s.store.Remove(rec.ID)
		return
	}

	err := s.notifyClosed(ctx, rec, now)
	payload := events.TicketClosedPayload{Notified: err == nil}
	if err != nil {
		payload.Error = err.Error()
		report.NotificationFailures++
		s.metrics.RecordAdapterFailure("notifier", "ticket_closed")
		log.Warn("closure notification failed, will retry next sweep", zap.Error(err))
	} else {
		report.Notified++
		s.store.Remove(rec.ID)
	}
	s.publish(ctx, events.New(events.EventTicketClosed, rec.ID, now, payload))
}

func (s *ReconcileService) notifyClosed(ctx context.Context, rec domain.TicketRecord, now time.Time) error {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Notify)
	defer cancel()

	notes := rec.ResolutionNotes
	if notes == "" {
		notes = "Ticket resolved"
	}
	vars := map[string]string{
		"caller_name":       requesterName(rec),
		"ticket_number":     rec.DisplayNumber(),
		"short_description": rec.Title,
		"resolution_notes":  notes,
		"status":            rec.StateLabel,
		"closed_time":       now.Format(timeLayout),
	}
	return s.notifier.Send(callCtx, config.TemplateTicketClosed, vars, rec.RequesterEmail)
}

func (s *ReconcileService) notifyUpdated(ctx context.Context, rec domain.TicketRecord, state domain.TicketState) error {
	callCtx, cancel := withTimeout(ctx, s.cfg.Timeouts.Notify)
	defer cancel()

	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = s.clock.Now()
	}
	vars := map[string]string{
		"caller_name":       requesterName(rec),
		"ticket_number":     rec.DisplayNumber(),
		"short_description": rec.Title,
		"status":            state.Label,
		"updated_time":      updated.Format(timeLayout),
	}
	return s.notifier.Send(callCtx, config.TemplateTicketUpdated, vars, rec.RequesterEmail)
}

func (s *ReconcileService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func requesterName(rec domain.TicketRecord) string {
	if rec.RequesterName != "" {
		return rec.RequesterName
	}
	return greetingName(Assignment{CallerFallback: true}, domain.EmailCandidate{Sender: rec.RequesterEmail})
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
)

// AuditService turns domain events into log lines and counters.
type AuditService struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "audit")),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handleTicketStatusChanged)
	a.dispatcher.Subscribe(events.EventTicketClosed, a.handleTicketClosed)
	a.dispatcher.Subscribe(events.EventTicketEvicted, a.count)
	a.dispatcher.Subscribe(events.EventCycleCompleted, a.handleCycleCompleted)
	a.dispatcher.Subscribe(events.EventSweepCompleted, a.count)
}

func (a *AuditService) count(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketCreatedPayload)
	a.logger.Info("TicketCreated",
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("message_id", payload.MessageID),
		zap.String("category", payload.Category),
		zap.Bool("caller_fallback", payload.CallerFallback),
		zap.Bool("group_fallback", payload.GroupFallback))
	if payload.CallerFallback {
		a.metrics.RecordEvent("fallback_caller")
	}
	if payload.GroupFallback {
		a.metrics.RecordEvent("fallback_group")
	}
	return a.count(ctx, event)
}

func (a *AuditService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketStatusChangedPayload)
	a.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("from", string(payload.Change.FromStatus)),
		zap.String("to", string(payload.Change.ToStatus)),
		zap.String("label", payload.Change.ToLabel))
	return a.count(ctx, event)
}

func (a *AuditService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClosedPayload)
	a.logger.Info("TicketClosed",
		zap.String("ticket_id", event.TicketID),
		zap.Bool("notified", payload.Notified))
	return a.count(ctx, event)
}

func (a *AuditService) handleCycleCompleted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CycleCompletedPayload)
	a.logger.Info("CycleCompleted",
		zap.String("run_id", payload.Run.ID),
		zap.String("trigger", string(payload.Run.Trigger)),
		zap.Int("fetched", payload.Run.Fetched),
		zap.Int("tickets_created", payload.Run.Report.TicketsCreated),
		zap.Int("failed", payload.Run.Report.Failed))
	return a.count(ctx, event)
}

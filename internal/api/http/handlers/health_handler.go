package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/worker"
)

// Pinger is an optional backing service checked by the health endpoint.
type Pinger interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// StatusSource reports scheduler state.
type StatusSource interface {
	Status() worker.Status
}

// HealthHandler responds to liveness and health probes.
type HealthHandler struct {
	serviceName string
	version     string
	scheduler   StatusSource
	deps        map[string]Pinger
	logger      *zap.Logger
}

// NewHealthHandler returns a new handler instance. deps maps a dependency
// name to its pinger; nil entries are ignored.
func NewHealthHandler(serviceName, version string, scheduler StatusSource, deps map[string]Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{serviceName: serviceName, version: version, scheduler: scheduler, deps: deps, logger: logger}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Health reports whether a cycle is in flight and how many tickets are open.
// It always answers 200; failures degrade the snapshot instead.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":  "ok",
		"service": h.serviceName,
		"version": h.version,
	}

	if st, ok := h.schedulerStatus(); ok {
		body["cycle_in_progress"] = st.CycleInFlight
		body["sweep_in_progress"] = st.SweepInFlight
		body["open_tickets"] = st.OpenTickets
		body["scheduler"] = st
	} else {
		body["status"] = "degraded"
		body["scheduler"] = "unavailable"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	depStatus := fiber.Map{}
	for name, dep := range h.deps {
		switch {
		case dep == nil || !dep.Enabled():
			depStatus[name] = "disabled"
		default:
			if err := dep.Ping(ctx); err != nil {
				depStatus[name] = err.Error()
				body["status"] = "degraded"
			} else {
				depStatus[name] = "ok"
			}
		}
	}
	body["dependencies"] = depStatus

	return c.JSON(body)
}

func (h *HealthHandler) schedulerStatus() (st worker.Status, ok bool) {
	if h.scheduler == nil {
		return st, false
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("health snapshot panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	return h.scheduler.Status(), true
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// Triggers runs cycles and sweeps on demand.
type Triggers interface {
	TriggerCycle(ctx context.Context, trigger domain.Trigger) (domain.CycleRun, error)
	TriggerSweep(ctx context.Context) (domain.SweepReport, error)
	CheckTicket(ctx context.Context, id string) (domain.SweepReport, error)
}

// CyclesHandler exposes manual triggers and the cycle audit trail.
type CyclesHandler struct {
	triggers Triggers
	runs     repository.CycleRunRepository
}

// NewCyclesHandler constructs handler.
func NewCyclesHandler(triggers Triggers, runs repository.CycleRunRepository) *CyclesHandler {
	return &CyclesHandler{triggers: triggers, runs: runs}
}

// TriggerCycle POST /cycles/trigger. A cycle already in flight is reported
// as run_in_progress with an empty report, not as an error. The run is not
// bound to the request deadline; scheduler shutdown still cancels it.
func (h *CyclesHandler) TriggerCycle(c *fiber.Ctx) error {
	run, err := h.triggers.TriggerCycle(context.WithoutCancel(c.UserContext()), domain.TriggerManual)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		return c.JSON(fiber.Map{"data": dto.CycleTriggerResponse{
			Status: dto.TriggerStatusRunInProgress,
			Report: domain.NewCycleReport(),
		}})
	case err != nil:
		return apperrors.NewDomainError("FETCH_FAILED", "mail fetch failed", http.StatusBadGateway, map[string]any{
			"run_id": run.ID,
			"error":  run.Error,
		})
	}
	return c.JSON(fiber.Map{"data": dto.CycleTriggerResponse{
		Status:  dto.TriggerStatusCompleted,
		RunID:   run.ID,
		Fetched: run.Fetched,
		Report:  run.Report,
	}})
}

// TriggerSweep POST /reconcile/trigger.
func (h *CyclesHandler) TriggerSweep(c *fiber.Ctx) error {
	report, err := h.triggers.TriggerSweep(context.WithoutCancel(c.UserContext()))
	if errors.Is(err, domain.ErrRunInProgress) {
		return c.JSON(fiber.Map{"data": dto.SweepTriggerResponse{
			Status: dto.TriggerStatusRunInProgress,
			Report: domain.SweepReport{Evicted: []string{}},
		}})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepTriggerResponse{Status: dto.TriggerStatusCompleted, Report: report}})
}

// ListCycles GET /cycles.
func (h *CyclesHandler) ListCycles(c *fiber.Ctx) error {
	var q dto.CycleListQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	filter := repository.CycleRunFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Trigger != "" {
		trigger := domain.Trigger(q.Trigger)
		switch trigger {
		case domain.TriggerScheduled, domain.TriggerManual, domain.TriggerCLI:
			filter.Trigger = &trigger
		default:
			return apperrors.NewValidationError("unknown trigger", map[string]any{"trigger": q.Trigger})
		}
	}
	runs, err := h.runs.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []domain.CycleRun{}
	}
	return c.JSON(fiber.Map{"data": runs})
}

// GetCycle GET /cycles/:id.
func (h *CyclesHandler) GetCycle(c *fiber.Ctx) error {
	run, err := h.runs.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NewNotFound("cycle run", map[string]any{"id": c.Params("id")})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": run})
}

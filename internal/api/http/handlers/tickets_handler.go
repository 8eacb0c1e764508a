package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// TicketsHandler exposes the tracking store to operators.
type TicketsHandler struct {
	store    *tracking.Store
	triggers Triggers
	clock    clock.Clock
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(store *tracking.Store, triggers Triggers, clk clock.Clock) *TicketsHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &TicketsHandler{store: store, triggers: triggers, clock: clk}
}

// ListTickets GET /tickets, optionally filtered by ?status=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	status := domain.TicketStatus(c.Query("status"))
	switch status {
	case "", domain.TicketStatusOpen, domain.TicketStatusClosed, domain.TicketStatusUnknown:
	default:
		return apperrors.NewValidationError("unknown status", map[string]any{"status": string(status)})
	}

	records := h.store.List()
	items := make([]dto.TrackedTicket, 0, len(records))
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		items = append(items, dto.NewTrackedTicket(rec))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Summary GET /tickets/summary.
func (h *TicketsHandler) Summary(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.NewTrackingSummary(h.store.Summary(h.clock.Now()))})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	rec, ok := h.store.Get(c.Params("id"))
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketHistory(rec)})
}

// Check POST /tickets/:id/check reconciles one ticket now.
func (h *TicketsHandler) Check(c *fiber.Ctx) error {
	id := c.Params("id")
	report, err := h.triggers.CheckTicket(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return err
	}
	resp := fiber.Map{"report": report}
	if rec, ok := h.store.Get(id); ok {
		resp["ticket"] = dto.NewTrackedTicket(rec)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Delete DELETE /tickets/:id stops tracking a ticket. Removing an untracked
// id succeeds with removed=false.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	removed := h.store.Remove(c.Params("id"))
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "removed": removed}})
}

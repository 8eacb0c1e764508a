package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
)

// TrackedTicket response.
type TrackedTicket struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	Title           string              `json:"title"`
	RequesterEmail  string              `json:"requester_email"`
	Category        string              `json:"category"`
	AssignmentGroup string              `json:"assignment_group"`
	Status          domain.TicketStatus `json:"status"`
	StateLabel      string              `json:"state_label,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	LastCheckedAt   *time.Time          `json:"last_checked_at,omitempty"`
}

// TicketHistory response.
type TicketHistory struct {
	ID      string                `json:"id"`
	Number  string                `json:"number"`
	Status  domain.TicketStatus   `json:"status"`
	Changes []domain.StatusChange `json:"changes"`
}

// TrackingSummary response.
type TrackingSummary struct {
	Total                int                         `json:"total"`
	ByStatus             map[domain.TicketStatus]int `json:"by_status"`
	ByCategory           map[string]int              `json:"by_category"`
	PendingNotifications int                         `json:"pending_notifications"`
	Oldest               *TrackedTicket              `json:"oldest,omitempty"`
	Newest               *TrackedTicket              `json:"newest,omitempty"`
	OldestAgeHours       float64                     `json:"oldest_age_hours"`
}

// NewTrackedTicket maps a store record.
func NewTrackedTicket(rec domain.TicketRecord) TrackedTicket {
	out := TrackedTicket{
		ID:              rec.ID,
		Number:          rec.DisplayNumber(),
		Title:           rec.Title,
		RequesterEmail:  rec.RequesterEmail,
		Category:        rec.Category,
		AssignmentGroup: rec.AssignmentGroup,
		Status:          rec.Status,
		StateLabel:      rec.StateLabel,
		CreatedAt:       rec.CreatedAt,
	}
	if !rec.LastCheckedAt.IsZero() {
		checked := rec.LastCheckedAt
		out.LastCheckedAt = &checked
	}
	return out
}

// NewTicketHistory maps a record's transitions.
func NewTicketHistory(rec domain.TicketRecord) TicketHistory {
	changes := rec.History
	if changes == nil {
		changes = []domain.StatusChange{}
	}
	return TicketHistory{ID: rec.ID, Number: rec.DisplayNumber(), Status: rec.Status, Changes: changes}
}

// NewTrackingSummary maps the store summary.
func NewTrackingSummary(sum tracking.Summary) TrackingSummary {
	out := TrackingSummary{
		Total:                sum.Total,
		ByStatus:             sum.ByStatus,
		ByCategory:           sum.ByCategory,
		PendingNotifications: sum.PendingNotifications,
		OldestAgeHours:       sum.OldestAge.Hours(),
	}
	if sum.Oldest != nil {
		t := NewTrackedTicket(*sum.Oldest)
		out.Oldest = &t
	}
	if sum.Newest != nil {
		t := NewTrackedTicket(*sum.Newest)
		out.Newest = &t
	}
	return out
}

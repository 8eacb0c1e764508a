package domain

import "time"

// TicketStatus is the reconciliation state tracked for a helpdesk ticket.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClosed  TicketStatus = "closed"
	TicketStatusUnknown TicketStatus = "unknown"
)

// TicketPriority follows the helpdesk 1 (critical) to 4 (low) scale.
type TicketPriority int

const (
	TicketPriorityCritical TicketPriority = 1
	TicketPriorityHigh     TicketPriority = 2
	TicketPriorityMedium   TicketPriority = 3
	TicketPriorityLow      TicketPriority = 4
)

// ClampPriority maps any integer onto the supported priority range.
// Zero means "not provided" and becomes medium.
func ClampPriority(p int) TicketPriority {
	switch {
	case p == 0:
		return TicketPriorityMedium
	case p < int(TicketPriorityCritical):
		return TicketPriorityCritical
	case p > int(TicketPriorityLow):
		return TicketPriorityLow
	}
	return TicketPriority(p)
}

// TicketDraft is the transient input to ticket creation.
type TicketDraft struct {
	Title           string
	Description     string
	Priority        TicketPriority
	Category        string
	Subcategory     string
	RequesterEmail  string
	SourceMessageID string
}

// CreatedTicket identifies a ticket issued by the ticketing system.
// ID is the stable key used for tracking; Number is what requesters see.
type CreatedTicket struct {
	ID     string
	Number string
}

// TicketState is a status observation returned by the ticketing system.
type TicketState struct {
	Status          TicketStatus
	Label           string
	ResolutionNotes string
	UpdatedAt       time.Time
}

// TicketRecord is the tracked unit owned by the tracking store.
type TicketRecord struct {
	ID              string
	Number          string
	Title           string
	RequesterEmail  string
	RequesterName   string
	Category        string
	AssignmentGroup string
	CreatedAt       time.Time
	LastCheckedAt   time.Time
	Status          TicketStatus
	StateLabel      string
	ResolutionNotes string
	History         []StatusChange
}

// DisplayNumber falls back to the ID for backends without separate numbers.
func (r TicketRecord) DisplayNumber() string {
	if r.Number != "" {
		return r.Number
	}
	return r.ID
}

// Clone returns a copy that shares no slices with r.
func (r TicketRecord) Clone() TicketRecord {
	if r.History != nil {
		r.History = append([]StatusChange(nil), r.History...)
	}
	return r
}

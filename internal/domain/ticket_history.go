package domain

import "time"

// StatusChange is one observed transition of a tracked ticket.
type StatusChange struct {
	FromStatus TicketStatus `json:"from_status"`
	ToStatus   TicketStatus `json:"to_status"`
	FromLabel  string       `json:"from_label,omitempty"`
	ToLabel    string       `json:"to_label,omitempty"`
	ObservedAt time.Time    `json:"observed_at"`
}

// StatusChanged reports whether the tracked status moved.
func (c StatusChange) StatusChanged() bool {
	return c.FromStatus != c.ToStatus
}

// LabelChanged reports whether the backend state label moved.
func (c StatusChange) LabelChanged() bool {
	return c.FromLabel != c.ToLabel
}

package dto

import "github.com/spec-kit/helpdesk-intake/internal/domain"

// Trigger statuses returned by the manual trigger endpoints.
const (
	TriggerStatusCompleted     = "completed"
	TriggerStatusRunInProgress = "run_in_progress"
)

// CycleTriggerResponse is returned by POST /cycles/trigger.
type CycleTriggerResponse struct {
	Status  string             `json:"status"`
	RunID   string             `json:"run_id,omitempty"`
	Fetched int                `json:"fetched"`
	Error   string             `json:"error,omitempty"`
	Report  domain.CycleReport `json:"report"`
}

// SweepTriggerResponse is returned by the reconciliation endpoints.
type SweepTriggerResponse struct {
	Status string             `json:"status"`
	Report domain.SweepReport `json:"report"`
}

// CycleListQuery filters GET /cycles.
type CycleListQuery struct {
	Trigger string `query:"trigger"`
	Limit   int    `query:"limit"`
	Offset  int    `query:"offset"`
}

package domain

import "time"

// OutcomeState is the terminal state of one candidate's pipeline.
type OutcomeState string

const (
	OutcomeDone    OutcomeState = "done"
	OutcomeSkipped OutcomeState = "skipped"
	OutcomeFailed  OutcomeState = "failed"
)

// OutcomeReason explains skipped and failed outcomes.
type OutcomeReason string

const (
	ReasonAutoReply         OutcomeReason = "auto_reply"
	ReasonNotSupport        OutcomeReason = "not_support"
	ReasonDuplicate         OutcomeReason = "duplicate"
	ReasonClassifyError     OutcomeReason = "classify_error"
	ReasonSummarizeError    OutcomeReason = "summarize_error"
	ReasonTicketCreateError OutcomeReason = "ticket_create_error"
	ReasonTrackingError     OutcomeReason = "tracking_error"
	ReasonCancelled         OutcomeReason = "cancelled"
	ReasonInternalError     OutcomeReason = "internal_error"
	ReasonNotifyError       OutcomeReason = "notify_error"
)

// CandidateOutcome is the resolution of one EmailCandidate.
type CandidateOutcome struct {
	MessageID   string        `json:"message_id"`
	State       OutcomeState  `json:"state"`
	Reason      OutcomeReason `json:"reason,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	TicketID    string        `json:"ticket_id,omitempty"`
	Category    string        `json:"category,omitempty"`
	NotifyError string        `json:"notify_error,omitempty"`
}

// Retryable reports whether the candidate should be handed out again on a
// later cycle. A failure after the ticket exists is never retried.
func (o CandidateOutcome) Retryable() bool {
	if o.State != OutcomeFailed || o.TicketID != "" || o.MessageID == "" {
		return false
	}
	switch o.Reason {
	case ReasonClassifyError, ReasonSummarizeError, ReasonTicketCreateError, ReasonCancelled, ReasonInternalError:
		return true
	}
	return false
}

// Failure is one entry of the report's failure list.
type Failure struct {
	MessageID string        `json:"message_id"`
	Reason    OutcomeReason `json:"reason"`
	Detail    string        `json:"detail,omitempty"`
}

// CycleReport summarizes one fetch-and-process cycle.
type CycleReport struct {
	Processed            int                `json:"processed"`
	TicketsCreated       int                `json:"tickets_created"`
	SkippedNonSupport    int                `json:"skipped_non_support"`
	SkippedAutoReply     int                `json:"skipped_auto_reply"`
	SkippedDuplicate     int                `json:"skipped_duplicate"`
	Failed               int                `json:"failed"`
	NotificationFailures int                `json:"notification_failures"`
	Failures             []Failure          `json:"failures"`
	Outcomes             []CandidateOutcome `json:"outcomes"`
}

// NewCycleReport returns a report with non-nil lists.
func NewCycleReport() CycleReport {
	return CycleReport{Failures: []Failure{}, Outcomes: []CandidateOutcome{}}
}

// Add folds one outcome into the counters.
func (r *CycleReport) Add(o CandidateOutcome) {
	r.Processed++
	r.Outcomes = append(r.Outcomes, o)

	switch o.State {
	case OutcomeDone:
		r.TicketsCreated++
	case OutcomeSkipped:
		switch o.Reason {
		case ReasonAutoReply:
			r.SkippedAutoReply++
		case ReasonDuplicate:
			r.SkippedDuplicate++
		default:
			r.SkippedNonSupport++
		}
	case OutcomeFailed:
		r.Failed++
		r.Failures = append(r.Failures, Failure{MessageID: o.MessageID, Reason: o.Reason, Detail: o.Detail})
	}

	if o.NotifyError != "" {
		r.NotificationFailures++
		r.Failures = append(r.Failures, Failure{MessageID: o.MessageID, Reason: ReasonNotifyError, Detail: o.NotifyError})
	}
}

// SweepReport summarizes one reconciliation sweep.
type SweepReport struct {
	Checked              int      `json:"checked"`
	QueryFailures        int      `json:"query_failures"`
	Closed               int      `json:"closed"`
	Notified             int      `json:"notified"`
	NotificationFailures int      `json:"notification_failures"`
	Updates              int      `json:"updates"`
	Evicted              []string `json:"evicted"`
}

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerCLI       Trigger = "cli"
)

// CycleRun is the audit entry persisted for every cycle.
type CycleRun struct {
	ID         string      `json:"id"`
	Trigger    Trigger     `json:"trigger"`
	Since      time.Time   `json:"since"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Fetched    int         `json:"fetched"`
	Error      string      `json:"error,omitempty"`
	Report     CycleReport `json:"report"`
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateLabel colours an outcome state.
func stateLabel(o domain.CandidateOutcome) string {
	label := fmt.Sprintf("%-7s", o.State)
	switch o.State {
	case domain.OutcomeDone:
		return Success.Render(label)
	case domain.OutcomeFailed:
		return ErrStyle.Render(label)
	default:
		return Muted.Render(label)
	}
}

func renderCycleRun(run domain.CycleRun) string {
	var b strings.Builder
	r := run.Report

	fmt.Fprintf(&b, "%s %s\n", Bold.Render("Cycle"), Muted.Render(run.ID))
	fmt.Fprintf(&b, "  trigger %s, since %s, took %s\n",
		run.Trigger, run.Since.Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.Error != "" {
		fmt.Fprintf(&b, "  %s %s\n", ErrStyle.Render("fetch failed:"), run.Error)
		return b.String()
	}
	fmt.Fprintf(&b, "  fetched %d, processed %d, %s, skipped %d non-support / %d auto-reply / %d duplicate, %s\n",
		run.Fetched, r.Processed,
		Success.Render(fmt.Sprintf("%d created", r.TicketsCreated)),
		r.SkippedNonSupport, r.SkippedAutoReply, r.SkippedDuplicate,
		failedLabel(r.Failed))
	if r.NotificationFailures > 0 {
		fmt.Fprintf(&b, "  %s\n", Warn.Render(fmt.Sprintf("%d notification(s) failed", r.NotificationFailures)))
	}

	for _, o := range r.Outcomes {
		detail := o.TicketID
		if o.Reason != "" {
			detail = string(o.Reason)
			if o.Detail != "" {
				detail += ": " + o.Detail
			}
		}
		fmt.Fprintf(&b, "  %s %-24s %s\n", stateLabel(o), truncate(o.MessageID, 24), detail)
	}
	return b.String()
}

func failedLabel(n int) string {
	label := fmt.Sprintf("%d failed", n)
	if n > 0 {
		return ErrStyle.Render(label)
	}
	return label
}

func renderSweep(r domain.SweepReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", Bold.Render("Reconciliation"))
	fmt.Fprintf(&b, "  checked %d, closed %d, notified %d, query failures %d, evicted %d\n",
		r.Checked, r.Closed, r.Notified, r.QueryFailures, len(r.Evicted))
	if r.NotificationFailures > 0 {
		fmt.Fprintf(&b, "  %s\n", Warn.Render(fmt.Sprintf("%d closure notification(s) failed, will retry", r.NotificationFailures)))
	}
	return b.String()
}

func renderRuns(runs []domain.CycleRun) string {
	if len(runs) == 0 {
		return Muted.Render("no cycle runs recorded") + "\n"
	}
	var b strings.Builder
	for _, run := range runs {
		status := Success.Render("ok  ")
		if run.Error != "" {
			status = ErrStyle.Render("fail")
		} else if run.Report.Failed > 0 {
			status = Warn.Render("part")
		}
		fmt.Fprintf(&b, "%s %s %-9s fetched %3d  created %3d  failed %3d\n",
			status, run.StartedAt.Local().Format("2006-01-02 15:04"), run.Trigger,
			run.Fetched, run.Report.TicketsCreated, run.Report.Failed)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

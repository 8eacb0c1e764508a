package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
)

var (
	runsLimit   int
	runsTrigger string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent intake cycle runs from the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, logger, err := buildApp(cmd.Context())
		if logger != nil {
			defer logger.Sync() //nolint:errcheck
		}
		if err != nil {
			return err
		}
		defer app.Close()

		filter := repository.CycleRunFilter{Limit: runsLimit}
		if runsTrigger != "" {
			trigger := domain.Trigger(runsTrigger)
			filter.Trigger = &trigger
		}
		runs, err := app.Runs.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(runs)
		}
		fmt.Print(renderRuns(runs))
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
	runsCmd.Flags().StringVar(&runsTrigger, "trigger", "", "only runs started by this trigger (scheduled, manual, cli)")
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

var reconcileAfter bool

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Fetch new support mail and run one intake cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, logger, err := buildApp(cmd.Context())
		if logger != nil {
			defer logger.Sync() //nolint:errcheck
		}
		if err != nil {
			return err
		}
		defer app.Close()

		run, err := app.Scheduler.TriggerCycle(cmd.Context(), domain.TriggerCLI)
		if errors.Is(err, domain.ErrRunInProgress) {
			return err
		}
		if jsonOutput {
			if perr := printJSON(run); perr != nil {
				return perr
			}
		} else {
			fmt.Print(renderCycleRun(run))
		}
		if err != nil {
			return err
		}

		if reconcileAfter {
			report, err := app.Scheduler.TriggerSweep(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(report)
			}
			fmt.Print(renderSweep(report))
		}
		return nil
	},
}

func init() {
	runOnceCmd.Flags().BoolVar(&reconcileAfter, "reconcile", false, "run a reconciliation sweep after the cycle")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation sweep over the tickets tracked by this process",
	Long: "Run one reconciliation sweep. The tracking store lives in memory, so a fresh\n" +
		"process only sees tickets it created itself; use run-once --reconcile to\n" +
		"create and reconcile in one invocation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, logger, err := buildApp(cmd.Context())
		if logger != nil {
			defer logger.Sync() //nolint:errcheck
		}
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.Scheduler.TriggerSweep(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Print(renderSweep(report))
		return nil
	},
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/display"
	"github.com/daviddao/mailtasks/internal/processor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process unprocessed threads once",
	Long: `Process every thread carrying the unprocessed label.

Threads with no mail newer than their task are relabeled without an AI
call. The rest are sent to the AI model in one batch and the resulting
plans are applied to the task service. Exits non-zero when any thread
failed; failed threads keep the unprocessed label and get the error label.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, runErr := a.processor.Run(cmd.Context())

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			return runErr
		}

		if !quietFlag {
			display.Summary(cmd.OutOrStdout(), summary)
		}
		var failed *processor.RunError
		if errors.As(runErr, &failed) {
			return fmt.Errorf("%d thread(s) need attention, look for the %q label", len(failed.ThreadIDs), cfg.ProcessingFailedLabel)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/display"
	"github.com/daviddao/mailtasks/internal/types"
)

var statsLimit int

type statsOutput struct {
	Totals *db.Totals         `json:"totals"`
	Runs   []*types.RunRecord `json:"runs"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recent processing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()

		runs, err := store.RecentRuns(cmd.Context(), statsLimit)
		if err != nil {
			return err
		}
		totals, err := store.RunTotals(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statsOutput{Totals: totals, Runs: runs})
		}

		display.Header("Mailtasks Statistics")
		fmt.Println()
		display.Runs(cmd.OutOrStdout(), runs)
		fmt.Println()
		display.Totals(cmd.OutOrStdout(), totals)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 10, "Number of runs to show")
	rootCmd.AddCommand(statsCmd)
}

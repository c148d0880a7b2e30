package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/auth"
	"github.com/daviddao/mailtasks/internal/display"
	"github.com/daviddao/mailtasks/internal/gmail"
)

var labelsCreate bool

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Check the Gmail labels mailtasks uses",
	Long: `Check that the unprocessed, processed and error labels exist.

Add the unprocessed label to threads (by hand or with a Gmail filter) to
queue them for processing. Use --create to create missing labels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := auth.LoadGmailService(ctx, cfg.CredentialsPath)
		if err != nil {
			return fmt.Errorf("connect to gmail: %w", err)
		}
		mailbox := gmail.New(svc)

		missing := 0
		for _, name := range []string{cfg.UnprocessedLabel, cfg.ProcessedLabel, cfg.ProcessingFailedLabel} {
			if name == "" {
				continue
			}
			id, err := mailbox.LabelID(ctx, name)
			if err != nil {
				return err
			}
			switch {
			case id != "":
				display.SuccessMsg("%s %s", name, display.Dim.Render(id))
			case labelsCreate:
				id, err := mailbox.CreateLabel(ctx, name)
				if err != nil {
					return err
				}
				display.SuccessMsg("%s created %s", name, display.Dim.Render(id))
			default:
				display.ErrorMsg("%s is missing", name)
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d label(s) missing, rerun with --create", missing)
		}
		return nil
	},
}

func init() {
	labelsCmd.Flags().BoolVar(&labelsCreate, "create", false, "Create missing labels")
	rootCmd.AddCommand(labelsCmd)
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/display"
	"github.com/daviddao/mailtasks/internal/scheduler"
	"github.com/daviddao/mailtasks/internal/server"
)

var (
	watchServe bool
	watchAddr  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process threads on a schedule",
	Long: `Run the processor every processing_frequency_in_minutes minutes until
interrupted. With --serve, also expose an HTTP API:

  GET  /api/health   liveness
  GET  /api/runs     recent runs and totals
  POST /api/run      trigger a run now (409 when one is already active)

Scheduled and triggered runs share the database lock, so they never overlap.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := scheduler.New(a.processor, cfg.ProcessingFrequencyMinutes, slog.Default())
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		if !quietFlag {
			display.SuccessMsg("Processing every %d minute(s), Ctrl-C to stop", cfg.ProcessingFrequencyMinutes)
		}

		// First run right away instead of waiting a full interval.
		sched.Trigger(ctx)

		var srv *server.Server
		errCh := make(chan error, 1)
		if watchServe {
			addr := watchAddr
			if addr == "" {
				addr = cfg.ServerAddr
			}
			srv = server.New(addr, a.processor, a.store, slog.Default())
			go func() { errCh <- srv.Start() }()
		}

		select {
		case <-ctx.Done():
		case err = <-errCh:
		}

		// In-flight runs finish before the database closes, so their lock is
		// released rather than left to expire.
		if srv != nil {
			if serr := srv.Shutdown(context.Background()); serr != nil {
				slog.Warn("server shutdown", "error", serr)
			}
		}
		if !quietFlag {
			display.SubHeader("Stopping, waiting for any active run...")
		}
		<-sched.Stop().Done()
		return err
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "Also serve the HTTP trigger API")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "HTTP listen address (default: server_addr from config)")
	rootCmd.AddCommand(watchCmd)
}

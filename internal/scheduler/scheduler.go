// Package scheduler triggers processing runs on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/daviddao/mailtasks/internal/types"
)

// Runner performs one processing run.
type Runner interface {
	Run(ctx context.Context) (*types.RunSummary, error)
}

// Every returns the cron spec for a run every n minutes.
func Every(minutes int) string {
	return fmt.Sprintf("@every %dm", minutes)
}

// Scheduler fires Runner on a cron schedule. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	entry  cron.EntryID
	log    *slog.Logger

	// extra tracks runs started outside the cron loop.
	extra sync.WaitGroup
}

// New returns a scheduler running runner every interval minutes.
func New(runner Runner, minutes int, logger *slog.Logger) (*Scheduler, error) {
	if minutes < 1 {
		return nil, fmt.Errorf("processing frequency must be at least 1 minute, got %d", minutes)
	}
	return newWithSpec(runner, Every(minutes), logger)
}

func newWithSpec(runner Runner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		spec:   spec,
		log:    logger,
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start registers the run job and starts the cron loop. Runs keep ctx's
// values but not its cancellation: a run that has begun always completes.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		s.RunNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.log.Info("scheduler started", "schedule", s.spec)
	return nil
}

// Trigger starts a run in the background. Stop waits for it.
func (s *Scheduler) Trigger(ctx context.Context) {
	s.extra.Add(1)
	go func() {
		defer s.extra.Done()
		s.RunNow(ctx)
	}()
}

// Stop halts the schedule and returns a context that is done once every
// running job, scheduled or triggered, has finished.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.extra.Wait()
		s.log.Info("scheduler stopped")
		cancel()
	}()
	return ctx
}

// Next returns the next planned activation, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunNow performs one run and logs its outcome. Cancelling ctx does not
// interrupt the run.
func (s *Scheduler) RunNow(ctx context.Context) (*types.RunSummary, error) {
	summary, err := s.runner.Run(context.WithoutCancel(ctx))
	switch {
	case err != nil:
		s.log.Error("scheduled run failed", "error", err)
	case summary != nil && summary.Locked:
		s.log.Info("scheduled run skipped, another run holds the lock")
	case summary != nil:
		s.log.Info("scheduled run finished",
			"run_id", summary.RunID,
			"threads", summary.Threads,
			"processed", summary.Processed(),
			"skipped", summary.Skipped)
	}
	return summary, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daviddao/mailtasks/internal/types"
)

type countingRunner struct {
	calls  atomic.Int32
	locked bool
	err    error
}

func (r *countingRunner) Run(ctx context.Context) (*types.RunSummary, error) {
	r.calls.Add(1)
	return &types.RunSummary{RunID: "r", Locked: r.locked, Threads: 1, Created: 1}, r.err
}

func TestEvery(t *testing.T) {
	if got := Every(5); got != "@every 5m" {
		t.Errorf("Every(5) = %q", got)
	}
}

func TestNewRejectsZeroInterval(t *testing.T) {
	if _, err := New(&countingRunner{}, 0, nil); err == nil {
		t.Fatal("expected error for 0 minutes")
	}
}

func TestNewWithSpecRejectsBadSpec(t *testing.T) {
	if _, err := newWithSpec(&countingRunner{}, "not a schedule", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunNowPassesThrough(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	s, err := New(runner, 5, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := s.RunNow(context.Background())
	if err == nil || summary == nil {
		t.Fatalf("RunNow: summary=%v err=%v", summary, err)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("calls: %d", runner.calls.Load())
	}
}

func TestNextBeforeStart(t *testing.T) {
	s, err := New(&countingRunner{}, 5, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Next().IsZero() {
		t.Error("Next should be zero before Start")
	}
}

func TestScheduleFires(t *testing.T) {
	runner := &countingRunner{locked: true}
	s, err := newWithSpec(runner, "@every 1s", nil)
	if err != nil {
		t.Fatalf("newWithSpec: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for runner.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	<-s.Stop().Done()

	if runner.calls.Load() == 0 {
		t.Fatal("scheduled job never ran")
	}
}

// blockingRunner holds each run until release is closed.
type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
	ctxErr   error
}

func (r *blockingRunner) Run(ctx context.Context) (*types.RunSummary, error) {
	close(r.started)
	<-r.release
	r.ctxErr = ctx.Err()
	r.finished.Store(true)
	return &types.RunSummary{}, nil
}

func TestTriggeredRunSurvivesCancelAndStopWaits(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(runner, 60, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Trigger(ctx)
	<-runner.started
	cancel()

	stopped := s.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("Stop returned while a run was still active")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never finished")
	}
	if !runner.finished.Load() {
		t.Fatal("run did not complete")
	}
	if runner.ctxErr != nil {
		t.Errorf("run saw a cancelled context: %v", runner.ctxErr)
	}
}

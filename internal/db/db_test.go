package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/mailtasks/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "sub", "mailtasks.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRecordAndListRuns(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	runs := []*types.RunRecord{
		{ID: "r1", StartedAt: "2025-07-08T10:00:00Z", FinishedAt: "2025-07-08T10:00:05Z", Threads: 3, Processed: 3},
		{ID: "r2", StartedAt: "2025-07-08T11:00:00Z", FinishedAt: "2025-07-08T11:00:09Z", Threads: 4, Processed: 2, Skipped: 1, Failed: 1, Error: "1 thread failed"},
	}
	for _, r := range runs {
		if err := d.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	got, err := d.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r2" {
		t.Fatalf("RecentRuns: got %+v", got)
	}
	if got[0].Failed != 1 || got[0].Error != "1 thread failed" {
		t.Errorf("unexpected row: %+v", got[0])
	}

	totals, err := d.RunTotals(ctx)
	if err != nil {
		t.Fatalf("RunTotals: %v", err)
	}
	if totals.Runs != 2 || totals.Threads != 7 || totals.Processed != 5 || totals.LastRun != "2025-07-08T11:00:00Z" {
		t.Errorf("RunTotals: got %+v", totals)
	}
}

func TestRunTotalsEmpty(t *testing.T) {
	d := openTestDB(t)
	totals, err := d.RunTotals(context.Background())
	if err != nil {
		t.Fatalf("RunTotals: %v", err)
	}
	if totals.Runs != 0 || totals.LastRun != "" {
		t.Errorf("RunTotals: got %+v", totals)
	}
}

func TestLeaseExclusive(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	a := d.NewLease(RunLockName, time.Minute, 0)
	b := d.NewLease(RunLockName, time.Minute, 0)

	ok, err := a.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("a.TryLock: %v, %v", ok, err)
	}
	ok, err = b.TryLock(ctx)
	if err != nil || ok {
		t.Fatalf("b.TryLock while held: %v, %v", ok, err)
	}

	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = b.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("b.TryLock after release: %v, %v", ok, err)
	}
}

func TestLeaseWaitsForRelease(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	a := d.NewLease(RunLockName, time.Minute, 0)
	if ok, _ := a.TryLock(ctx); !ok {
		t.Fatal("a.TryLock failed")
	}
	go func() {
		time.Sleep(300 * time.Millisecond)
		a.Unlock(ctx)
	}()

	b := d.NewLease(RunLockName, time.Minute, 5*time.Second)
	ok, err := b.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("b.TryLock: %v, %v", ok, err)
	}
}

func TestLeaseExpiredIsTakenOver(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	stale := d.NewLease(RunLockName, time.Minute, 0)
	stale.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	if ok, _ := stale.TryLock(ctx); !ok {
		t.Fatal("stale.TryLock failed")
	}

	fresh := d.NewLease(RunLockName, time.Minute, 0)
	ok, err := fresh.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("fresh.TryLock over expired lease: %v, %v", ok, err)
	}

	// The stale owner must not release the new owner's lock.
	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale.Unlock: %v", err)
	}
	other := d.NewLease(RunLockName, time.Minute, 0)
	if ok, _ := other.TryLock(ctx); ok {
		t.Error("lock should still be held by fresh owner")
	}
}

func TestLeaseNotReentrant(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	l := d.NewLease(RunLockName, time.Minute, 0)
	if ok, _ := l.TryLock(ctx); !ok {
		t.Fatal("first TryLock failed")
	}
	if ok, err := l.TryLock(ctx); err != nil || ok {
		t.Fatalf("second TryLock by the same owner: %v, %v", ok, err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if ok, _ := l.TryLock(ctx); !ok {
		t.Fatal("TryLock after Unlock failed")
	}
}

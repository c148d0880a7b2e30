// Package tasks defines the backend-agnostic task store used by the
// processor and the helpers shared by its implementations.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/daviddao/mailtasks/internal/types"
)

// Store is implemented by every task backend. Records are correlated to
// threads through the marker in their notes.
type Store interface {
	// UpsertTask creates a task for the thread, or updates the correlated
	// one. It returns false when the backend has nowhere to put the task
	// (for example a missing task list); the caller retries on a later run.
	UpsertTask(ctx context.Context, thread *types.Thread, task *types.Task, permalink string) (bool, error)

	// FindTask returns the correlated task, or nil when there is none.
	FindTask(ctx context.Context, threadID string) (*types.TaskRecord, error)

	// FindCheckpoint returns the latest updated/completed timestamp across
	// all correlated records, active and completed. Backend failures are
	// reported as no checkpoint.
	FindCheckpoint(ctx context.Context, threadID string) (time.Time, bool)

	// ReopenTask flips a completed task back to needsAction.
	ReopenTask(ctx context.Context, taskID string) (bool, error)
}

// Resetter is implemented by stores that memoize backend lookups for the
// duration of a run.
type Resetter interface {
	Reset()
}

// ListCache memoizes task-list ids by name. It is cleared at the start of
// every run.
type ListCache struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewListCache returns an empty cache.
func NewListCache() *ListCache {
	return &ListCache{ids: make(map[string]string)}
}

// Get returns the cached id for name.
func (c *ListCache) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[name]
	return id, ok
}

// Put records the id for name.
func (c *ListCache) Put(name, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[name] = id
}

// Reset drops every cached entry.
func (c *ListCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]string)
}

// LatestCheckpoint returns the maximum LastTouched across records.
func LatestCheckpoint(records []*types.TaskRecord) (time.Time, bool) {
	var latest time.Time
	for _, r := range records {
		if t := r.LastTouched(); t.After(latest) {
			latest = t
		}
	}
	return latest, !latest.IsZero()
}

// PickCorrelated chooses the record FindTask reports when several records
// carry the same marker: an active record beats a completed one, then the
// most recently touched wins.
func PickCorrelated(records []*types.TaskRecord) *types.TaskRecord {
	var best *types.TaskRecord
	for _, r := range records {
		switch {
		case best == nil:
			best = r
		case best.IsCompleted() && !r.IsCompleted():
			best = r
		case best.IsCompleted() == r.IsCompleted() && r.LastTouched().After(best.LastTouched()):
			best = r
		}
	}
	return best
}

package googletasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gt "google.golang.org/api/tasks/v1"

	"github.com/daviddao/mailtasks/internal/correlation"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/types"
)

// Store is the Google Tasks implementation of tasks.Store.
type Store struct {
	client   Client
	listName string
	cache    *tasks.ListCache
	log      *slog.Logger
}

// New returns a Store writing into the task list titled listName.
func New(client Client, listName string, cache *tasks.ListCache, logger *slog.Logger) *Store {
	if cache == nil {
		cache = tasks.NewListCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, listName: listName, cache: cache, log: logger}
}

// Reset clears the task-list id cache.
func (s *Store) Reset() {
	s.cache.Reset()
}

// listID resolves the configured list title. An empty id with a nil error
// means the list does not exist.
func (s *Store) listID(ctx context.Context) (string, error) {
	if id, ok := s.cache.Get(s.listName); ok {
		return id, nil
	}
	lists, err := s.client.ListTaskLists(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lists {
		if l.Title == s.listName {
			s.cache.Put(s.listName, l.Id)
			return l.Id, nil
		}
	}
	return "", nil
}

func (s *Store) correlated(ctx context.Context, listID, threadID string) ([]*gt.Task, error) {
	all, err := s.client.ListTasks(ctx, listID)
	if err != nil {
		return nil, err
	}
	var out []*gt.Task
	for _, t := range all {
		if t.Deleted {
			continue
		}
		if correlation.Matches(t.Notes, threadID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) UpsertTask(ctx context.Context, thread *types.Thread, task *types.Task, permalink string) (bool, error) {
	listID, err := s.listID(ctx)
	if err != nil {
		return false, err
	}
	if listID == "" {
		s.log.Warn("task list not found", "list", s.listName, "thread_id", thread.ID)
		return false, nil
	}

	matches, err := s.correlated(ctx, listID, thread.ID)
	if err != nil {
		return false, err
	}

	notes := composeNotes(task.Notes, permalink, thread.ID)
	due := s.dueDate(task.DueDate)

	if existing := pickTask(matches); existing != nil {
		existing.Title = task.Title
		existing.Notes = notes
		if due != "" {
			existing.Due = due
		}
		if _, err := s.client.UpdateTask(ctx, listID, existing); err != nil {
			return false, err
		}
		s.log.Debug("task updated", "thread_id", thread.ID, "task_id", existing.Id)
		return true, nil
	}

	created, err := s.client.InsertTask(ctx, listID, &gt.Task{
		Title: task.Title,
		Notes: notes,
		Due:   due,
	})
	if err != nil {
		return false, err
	}
	s.log.Debug("task created", "thread_id", thread.ID, "task_id", created.Id)
	return true, nil
}

func (s *Store) FindTask(ctx context.Context, threadID string) (*types.TaskRecord, error) {
	listID, err := s.listID(ctx)
	if err != nil || listID == "" {
		return nil, err
	}
	matches, err := s.correlated(ctx, listID, threadID)
	if err != nil {
		return nil, err
	}
	return tasks.PickCorrelated(toRecords(matches)), nil
}

func (s *Store) FindCheckpoint(ctx context.Context, threadID string) (time.Time, bool) {
	listID, err := s.listID(ctx)
	if err != nil || listID == "" {
		if err != nil {
			s.log.Warn("checkpoint lookup failed", "thread_id", threadID, "error", err)
		}
		return time.Time{}, false
	}
	matches, err := s.correlated(ctx, listID, threadID)
	if err != nil {
		s.log.Warn("checkpoint lookup failed", "thread_id", threadID, "error", err)
		return time.Time{}, false
	}
	return tasks.LatestCheckpoint(toRecords(matches))
}

func (s *Store) ReopenTask(ctx context.Context, taskID string) (bool, error) {
	listID, err := s.listID(ctx)
	if err != nil {
		return false, err
	}
	if listID == "" {
		return false, nil
	}
	t, err := s.client.GetTask(ctx, listID, taskID)
	if err != nil {
		return false, err
	}
	t.Status = types.StatusNeedsAction
	t.Completed = nil
	t.NullFields = append(t.NullFields, "Completed")
	if _, err := s.client.UpdateTask(ctx, listID, t); err != nil {
		return false, fmt.Errorf("reopen task %s: %w", taskID, err)
	}
	return true, nil
}

// dueDate converts a YYYY-MM-DD plan date into the RFC3339 timestamp the
// Tasks API expects. Anything else is dropped.
func (s *Store) dueDate(d string) string {
	if d == "" {
		return ""
	}
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		s.log.Debug("dropping unparsable due date", "due", d)
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func composeNotes(notes, permalink, threadID string) string {
	out := notes
	if permalink != "" {
		out += "\n\nLink to email: " + permalink
	}
	return out + "\n\n" + correlation.Marker(threadID)
}

func pickTask(matches []*gt.Task) *gt.Task {
	rec := tasks.PickCorrelated(toRecords(matches))
	if rec == nil {
		return nil
	}
	for _, t := range matches {
		if t.Id == rec.ID {
			return t
		}
	}
	return nil
}

func toRecords(ts []*gt.Task) []*types.TaskRecord {
	out := make([]*types.TaskRecord, 0, len(ts))
	for _, t := range ts {
		out = append(out, toRecord(t))
	}
	return out
}

func toRecord(t *gt.Task) *types.TaskRecord {
	r := &types.TaskRecord{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Due:    t.Due,
		Status: t.Status,
	}
	if u, err := time.Parse(time.RFC3339, t.Updated); err == nil {
		r.Updated = u
	}
	if t.Completed != nil {
		if c, err := time.Parse(time.RFC3339, *t.Completed); err == nil {
			r.Completed = c
		}
	}
	return r
}

package todoist

import (
	"context"
	"html"
	"log/slog"
	"time"

	"github.com/daviddao/mailtasks/internal/correlation"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/types"
)

// completedMonths bounds how far back completed tasks are scanned. The
// by_completion_date endpoint rejects ranges longer than three months.
const completedMonths = 3

// Store is the Todoist implementation of tasks.Store.
type Store struct {
	client    *Client
	projectID string
	log       *slog.Logger
	now       func() time.Time
}

// New returns a Store creating tasks in projectID (empty means Inbox).
func New(client *Client, projectID string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, projectID: projectID, log: logger, now: time.Now}
}

func searchQuery(threadID string) string {
	return `search: "` + correlation.Marker(threadID) + `"`
}

// active returns open tasks whose description carries exactly threadID.
// Todoist search is a substring match, so results are re-checked.
func (s *Store) active(ctx context.Context, threadID string) ([]*Task, error) {
	found, err := s.client.FilterTasks(ctx, searchQuery(threadID))
	if err != nil {
		return nil, err
	}
	return onlyCorrelated(found, threadID), nil
}

func (s *Store) completed(ctx context.Context, threadID string) ([]*Task, error) {
	now := s.now()
	found, err := s.client.CompletedTasks(ctx, now.AddDate(0, -completedMonths, 0), now, searchQuery(threadID))
	if err != nil {
		return nil, err
	}
	return onlyCorrelated(found, threadID), nil
}

func (s *Store) all(ctx context.Context, threadID string) ([]*types.TaskRecord, error) {
	act, err := s.active(ctx, threadID)
	if err != nil {
		return nil, err
	}
	done, err := s.completed(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.TaskRecord, 0, len(act)+len(done))
	for _, t := range act {
		out = append(out, toRecord(t))
	}
	for _, t := range done {
		r := toRecord(t)
		r.Status = types.StatusCompleted
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) UpsertTask(ctx context.Context, thread *types.Thread, task *types.Task, permalink string) (bool, error) {
	existing, err := s.active(ctx, thread.ID)
	if err != nil {
		return false, err
	}

	payload := &TaskPayload{
		Content:     html.EscapeString(task.Title),
		Description: description(task.Notes, permalink, thread.ID),
		Priority:    toTodoistPriority(task.Priority),
	}
	if task.DueDate != "" {
		if _, err := time.Parse(time.DateOnly, task.DueDate); err == nil {
			payload.DueDate = task.DueDate
		} else {
			payload.DueString = task.DueDate
		}
	}

	if len(existing) == 0 {
		// A completed correlate is updated in place, not duplicated.
		done, err := s.completed(ctx, thread.ID)
		if err != nil {
			return false, err
		}
		existing = latestCompleted(done)
	}

	if len(existing) > 0 {
		if len(existing) > 1 {
			s.log.Warn("multiple tasks for thread, updating the first",
				"thread_id", thread.ID, "count", len(existing), "task_id", existing[0].ID)
		}
		if _, err := s.client.UpdateTask(ctx, existing[0].ID, payload); err != nil {
			return false, err
		}
		s.log.Debug("task updated", "thread_id", thread.ID, "task_id", existing[0].ID)
		return true, nil
	}

	payload.ProjectID = s.projectID
	created, err := s.client.CreateTask(ctx, payload)
	if err != nil {
		return false, err
	}
	s.log.Debug("task created", "thread_id", thread.ID, "task_id", created.ID)
	return true, nil
}

func (s *Store) FindTask(ctx context.Context, threadID string) (*types.TaskRecord, error) {
	records, err := s.all(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return tasks.PickCorrelated(records), nil
}

func (s *Store) FindCheckpoint(ctx context.Context, threadID string) (time.Time, bool) {
	records, err := s.all(ctx, threadID)
	if err != nil {
		s.log.Warn("checkpoint lookup failed", "thread_id", threadID, "error", err)
		return time.Time{}, false
	}
	return tasks.LatestCheckpoint(records)
}

func (s *Store) ReopenTask(ctx context.Context, taskID string) (bool, error) {
	if err := s.client.ReopenTask(ctx, taskID); err != nil {
		return false, err
	}
	return true, nil
}

// latestCompleted returns the most recently completed task, if any.
func latestCompleted(done []*Task) []*Task {
	var best *types.TaskRecord
	var pick *Task
	for _, t := range done {
		r := toRecord(t)
		if best == nil || r.LastTouched().After(best.LastTouched()) {
			best, pick = r, t
		}
	}
	if pick == nil {
		return nil
	}
	return []*Task{pick}
}

func description(notes, permalink, threadID string) string {
	body := html.EscapeString(notes)
	if permalink != "" {
		body += "\n\n[View in Gmail](" + permalink + ")"
	}
	return correlation.Encode(body, threadID)
}

// toTodoistPriority maps plan priority 1 (urgent) .. 4 (normal) onto
// Todoist's 4 (urgent) .. 1 (normal). Zero leaves the backend default.
func toTodoistPriority(p int) int {
	if p < 1 || p > 4 {
		return 0
	}
	return 5 - p
}

func onlyCorrelated(in []*Task, threadID string) []*Task {
	var out []*Task
	for _, t := range in {
		if correlation.Matches(t.Description, threadID) {
			out = append(out, t)
		}
	}
	return out
}

func toRecord(t *Task) *types.TaskRecord {
	r := &types.TaskRecord{
		ID:     t.ID,
		Title:  t.Content,
		Notes:  t.Description,
		Status: types.StatusNeedsAction,
	}
	if t.Priority >= 1 && t.Priority <= 4 {
		r.Priority = 5 - t.Priority
	}
	if t.Due != nil {
		r.Due = t.Due.Date
	}
	if u, err := time.Parse(time.RFC3339, t.UpdatedAt); err == nil {
		r.Updated = u
	}
	if t.CompletedAt != "" {
		if c, err := time.Parse(time.RFC3339, t.CompletedAt); err == nil {
			r.Completed = c
		}
	}
	if t.Checked || !r.Completed.IsZero() {
		r.Status = types.StatusCompleted
	}
	return r
}

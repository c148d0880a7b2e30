// Package types defines core data structures for mailtasks.
package types

import (
	"strings"
	"time"
)

// Message is a single email inside a thread.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Body    string    `json:"body,omitempty"`
}

// Thread is a Gmail conversation. Messages are ordered by Date, oldest first.
type Thread struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Messages  []*Message `json:"messages"`
	Permalink string     `json:"permalink"`
	Unread    bool       `json:"unread"`
	LabelIDs  []string   `json:"label_ids,omitempty"`
}

// MessagesAfter returns the messages strictly newer than checkpoint. A zero
// checkpoint returns every message.
func (t *Thread) MessagesAfter(checkpoint time.Time) []*Message {
	if checkpoint.IsZero() {
		return t.Messages
	}
	var out []*Message
	for _, m := range t.Messages {
		if m.Date.After(checkpoint) {
			out = append(out, m)
		}
	}
	return out
}

// Task status values, shared by every backend.
const (
	StatusNeedsAction = "needsAction"
	StatusCompleted   = "completed"
)

// TaskRecord is a transient copy of a task held by a task backend.
type TaskRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes"`
	Due       string    `json:"due,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Status    string    `json:"status"`
	Updated   time.Time `json:"updated"`
	Completed time.Time `json:"completed,omitempty"`
}

// IsCompleted reports whether the record is closed in its backend.
func (r *TaskRecord) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// LastTouched is the latest of the updated and completed timestamps.
func (r *TaskRecord) LastTouched() time.Time {
	if r.Completed.After(r.Updated) {
		return r.Completed
	}
	return r.Updated
}

// Task is the task content proposed by the planner.
type Task struct {
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	DueDate  string `json:"due_date,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// Action is the coarse decision attached to a plan.
type Action string

const (
	ActionCreateTask          Action = "CREATE_TASK"
	ActionUpdateTask          Action = "UPDATE_TASK"
	ActionReopenAndUpdateTask Action = "REOPEN_AND_UPDATE_TASK"
	ActionDoNothing           Action = "DO_NOTHING"
)

// ValidActions is the set of allowed action values.
var ValidActions = []Action{ActionCreateTask, ActionUpdateTask, ActionReopenAndUpdateTask, ActionDoNothing}

// IsValidAction checks if an action string is valid.
func IsValidAction(a Action) bool {
	for _, v := range ValidActions {
		if v == a {
			return true
		}
	}
	return false
}

// Confidence explains how sure the planner is about creating a task.
type Confidence struct {
	Score              float64 `json:"score"`
	Reasoning          string  `json:"reasoning"`
	NotHigherReasoning string  `json:"not_higher_reasoning"`
	NotLowerReasoning  string  `json:"not_lower_reasoning"`
}

// PlanOfAction is the planner's decision for one thread.
type PlanOfAction struct {
	Action     Action      `json:"action,omitempty"`
	Task       *Task       `json:"task,omitempty"`
	Confidence *Confidence `json:"confidence,omitempty"`
}

// EffectiveAction resolves the action to execute. A plan without a task never
// touches a backend; a plan with a task but no explicit action creates or
// updates depending on whether a correlated task already exists.
func (p *PlanOfAction) EffectiveAction(hasExisting bool) Action {
	if p.Task == nil || p.Action == ActionDoNothing {
		return ActionDoNothing
	}
	if p.Action == "" {
		if hasExisting {
			return ActionUpdateTask
		}
		return ActionCreateTask
	}
	return p.Action
}

// Validate checks the plan invariants.
func (p *PlanOfAction) Validate() error {
	if p.Action != "" && !IsValidAction(p.Action) {
		return &InvalidPlanError{Reason: "unknown action " + string(p.Action)}
	}
	if p.Task == nil {
		return nil
	}
	if strings.TrimSpace(p.Task.Title) == "" {
		return &InvalidPlanError{Reason: "task title is empty"}
	}
	if strings.TrimSpace(p.Task.Notes) == "" {
		return &InvalidPlanError{Reason: "task notes are empty"}
	}
	if p.Task.Priority != 0 && (p.Task.Priority < 1 || p.Task.Priority > 4) {
		return &InvalidPlanError{Reason: "task priority out of range"}
	}
	return nil
}

// InvalidPlanError reports a plan that violates its invariants.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return "invalid plan: " + e.Reason
}

// ExistingTask is the view of a correlated task handed to the planner.
type ExistingTask struct {
	Title  string `json:"title"`
	Notes  string `json:"notes"`
	Status string `json:"status"`
}

// ThreadInput is one entry of a batched plan request.
type ThreadInput struct {
	Thread       *Thread       `json:"thread"`
	Messages     []*Message    `json:"messages"`
	ExistingTask *ExistingTask `json:"existing_task,omitempty"`
}

// RunRecord is the persisted statistics row for one processing run.
type RunRecord struct {
	ID         string `json:"id" db:"id"`
	StartedAt  string `json:"started_at" db:"started_at"`
	FinishedAt string `json:"finished_at" db:"finished_at"`
	Threads    int    `json:"threads" db:"threads"`
	Processed  int    `json:"processed" db:"processed"`
	Skipped    int    `json:"skipped" db:"skipped"`
	Failed     int    `json:"failed" db:"failed"`
	Error      string `json:"error,omitempty" db:"error"`
}

// RunSummary holds the outcome of one processing run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Locked    bool      `json:"locked"`
	Threads   int       `json:"threads"`
	// Unchanged counts threads marked processed without an AI call.
	Unchanged int `json:"unchanged"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Reopened  int `json:"reopened"`
	Ignored   int `json:"ignored"`
	// Skipped counts threads left unprocessed for the next run.
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

// Processed is the number of threads that left the unprocessed state.
func (s *RunSummary) Processed() int {
	return s.Unchanged + s.Created + s.Updated + s.Reopened + s.Ignored
}

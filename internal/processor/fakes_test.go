package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daviddao/mailtasks/internal/correlation"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/types"
)

var (
	msgTime   = time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC)
	storeTime = time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)
)

// fakeMailbox keeps per-thread label sets.
type fakeMailbox struct {
	labelIDs map[string]string
	threads  []*types.Thread
	labels   map[string]map[string]bool

	read     []string
	unread   []string
	inbox    []string
	modifies int
	fetches  int
}

func newMailbox(threads ...*types.Thread) *fakeMailbox {
	m := &fakeMailbox{
		labelIDs: map[string]string{"unprocessed": "L_unprocessed", "processed": "L_processed", "error": "L_error"},
		threads:  threads,
		labels:   map[string]map[string]bool{},
	}
	for _, t := range threads {
		m.labels[t.ID] = map[string]bool{"L_unprocessed": true}
	}
	return m
}

func (m *fakeMailbox) has(threadID, labelID string) bool {
	return m.labels[threadID][labelID]
}

func (m *fakeMailbox) LabelID(ctx context.Context, name string) (string, error) {
	return m.labelIDs[name], nil
}

func (m *fakeMailbox) UnprocessedThreads(ctx context.Context, labelID string, limit int) ([]*types.Thread, error) {
	m.fetches++
	var out []*types.Thread
	for _, t := range m.threads {
		if m.has(t.ID, labelID) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *fakeMailbox) MarkRead(ctx context.Context, threadID string) error {
	m.read = append(m.read, threadID)
	return nil
}

func (m *fakeMailbox) MarkUnread(ctx context.Context, threadID string) error {
	m.unread = append(m.unread, threadID)
	return nil
}

func (m *fakeMailbox) ModifyLabels(ctx context.Context, threadID string, add, remove []string) error {
	m.modifies++
	for _, l := range remove {
		delete(m.labels[threadID], l)
	}
	for _, l := range add {
		m.labels[threadID][l] = true
	}
	return nil
}

func (m *fakeMailbox) MoveToInbox(ctx context.Context, threadID string) error {
	m.inbox = append(m.inbox, threadID)
	return nil
}

// fakeStore correlates records through the notes marker.
type fakeStore struct {
	records   []*types.TaskRecord
	upserts   []*types.Task
	reopens   []string
	upsertErr map[string]error
	findErr   map[string]error
	decline   bool
	resets    int
	nextID    int
}

var _ tasks.Store = (*fakeStore)(nil)

func (s *fakeStore) Reset() { s.resets++ }

func (s *fakeStore) correlated(threadID string) []*types.TaskRecord {
	var out []*types.TaskRecord
	for _, r := range s.records {
		if correlation.Matches(r.Notes, threadID) {
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeStore) UpsertTask(ctx context.Context, thread *types.Thread, task *types.Task, permalink string) (bool, error) {
	if err := s.upsertErr[thread.ID]; err != nil {
		return false, err
	}
	if s.decline {
		return false, nil
	}
	s.upserts = append(s.upserts, task)
	if existing := tasks.PickCorrelated(s.correlated(thread.ID)); existing != nil {
		existing.Title = task.Title
		existing.Notes = correlation.Encode(task.Notes, thread.ID)
		existing.Updated = storeTime
		return true, nil
	}
	s.nextID++
	s.records = append(s.records, &types.TaskRecord{
		ID:      fmt.Sprintf("task-%d", s.nextID),
		Title:   task.Title,
		Notes:   correlation.Encode(task.Notes, thread.ID),
		Status:  types.StatusNeedsAction,
		Updated: storeTime,
	})
	return true, nil
}

func (s *fakeStore) FindTask(ctx context.Context, threadID string) (*types.TaskRecord, error) {
	if err := s.findErr[threadID]; err != nil {
		return nil, err
	}
	return tasks.PickCorrelated(s.correlated(threadID)), nil
}

func (s *fakeStore) FindCheckpoint(ctx context.Context, threadID string) (time.Time, bool) {
	return tasks.LatestCheckpoint(s.correlated(threadID))
}

func (s *fakeStore) ReopenTask(ctx context.Context, taskID string) (bool, error) {
	s.reopens = append(s.reopens, taskID)
	for _, r := range s.records {
		if r.ID == taskID {
			r.Status = types.StatusNeedsAction
			r.Completed = time.Time{}
			return true, nil
		}
	}
	return false, errors.New("task not found")
}

// fakePlanner returns canned plans.
type fakePlanner struct {
	plans       []types.PlanOfAction
	err         error
	reopen      bool
	planCalls   int
	reopenCalls int
	inputs      []types.ThreadInput
}

func (p *fakePlanner) GeneratePlans(ctx context.Context, inputs []types.ThreadInput, userContext string) ([]types.PlanOfAction, error) {
	p.planCalls++
	p.inputs = inputs
	return p.plans, p.err
}

func (p *fakePlanner) ShouldReopenTask(ctx context.Context, existing *types.ExistingTask, newMessages []*types.Message, userContext string) (bool, error) {
	p.reopenCalls++
	return p.reopen, nil
}

type fakeLocker struct {
	held    bool
	locks   int
	unlocks int
	lockErr error
}

func (l *fakeLocker) TryLock(ctx context.Context) (bool, error) {
	if l.lockErr != nil {
		return false, l.lockErr
	}
	if l.held {
		return false, nil
	}
	l.locks++
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context) error {
	l.unlocks++
	return nil
}

type fakeRecorder struct {
	runs []*types.RunRecord
}

func (r *fakeRecorder) RecordRun(ctx context.Context, rec *types.RunRecord) error {
	r.runs = append(r.runs, rec)
	return nil
}

type fakeNotifier struct {
	bodies []string
}

func (n *fakeNotifier) SendFailureReport(ctx context.Context, subject, body string) error {
	n.bodies = append(n.bodies, body)
	return nil
}

func newThread(id string, unread bool) *types.Thread {
	return &types.Thread{
		ID:        id,
		Subject:   "Subject " + id,
		Permalink: "https://mail.google.com/mail/u/0/#inbox/" + id,
		Unread:    unread,
		Messages:  []*types.Message{{ID: id + "-m1", From: "jane@example.com", Subject: "Subject " + id, Date: msgTime, Body: "hi"}},
	}
}

func createPlan(title string) types.PlanOfAction {
	return types.PlanOfAction{
		Action: types.ActionCreateTask,
		Task:   &types.Task{Title: title, Notes: "notes for " + title},
		Confidence: &types.Confidence{
			Score: 85, Reasoning: "r", NotHigherReasoning: "h", NotLowerReasoning: "l",
		},
	}
}

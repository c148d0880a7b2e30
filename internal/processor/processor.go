// Package processor runs the triage loop: it pulls unprocessed Gmail
// threads, asks the planner what to do with the ones that changed, applies
// the plans to the task store and relabels the threads.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/mailtasks/internal/config"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/types"
)

var (
	// ErrLabelNotFound is returned when a configured Gmail label is missing.
	ErrLabelNotFound = errors.New("label not found")
	// ErrPlanCountMismatch is returned when the planner does not return
	// exactly one plan per thread.
	ErrPlanCountMismatch = errors.New("plan count does not match thread count")
)

// Mailbox is the Gmail side of a run.
type Mailbox interface {
	// LabelID returns "" when the label does not exist.
	LabelID(ctx context.Context, name string) (string, error)
	UnprocessedThreads(ctx context.Context, labelID string, limit int) ([]*types.Thread, error)
	MarkRead(ctx context.Context, threadID string) error
	MarkUnread(ctx context.Context, threadID string) error
	ModifyLabels(ctx context.Context, threadID string, add, remove []string) error
	MoveToInbox(ctx context.Context, threadID string) error
}

// PlanGenerator decides what to do with threads.
type PlanGenerator interface {
	GeneratePlans(ctx context.Context, inputs []types.ThreadInput, userContext string) ([]types.PlanOfAction, error)
	ShouldReopenTask(ctx context.Context, existing *types.ExistingTask, newMessages []*types.Message, userContext string) (bool, error)
}

// Locker serializes runs. TryLock returns false when another run holds it.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Recorder persists run statistics.
type Recorder interface {
	RecordRun(ctx context.Context, r *types.RunRecord) error
}

// Notifier delivers the run failure summary to the user.
type Notifier interface {
	SendFailureReport(ctx context.Context, subject, body string) error
}

// RunError is returned after a run in which some threads failed. Every other
// thread was still processed.
type RunError struct {
	ThreadIDs []string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%d thread(s) failed to process, see the error label: %s",
		len(e.ThreadIDs), strings.Join(e.ThreadIDs, ", "))
}

func (e *RunError) Unwrap() error { return e.Err }

// Deps are the collaborators of a Processor. Recorder and Notifier are
// optional.
type Deps struct {
	Mailbox  Mailbox
	Store    tasks.Store
	Planner  PlanGenerator
	Locker   Locker
	Recorder Recorder
	Notifier Notifier
	// Context is the user's guideline table passed to the planner.
	Context string
	Logger  *slog.Logger
}

// Processor executes processing runs against one configuration snapshot.
type Processor struct {
	cfg      *config.Config
	mail     Mailbox
	store    tasks.Store
	planner  PlanGenerator
	lock     Locker
	recorder Recorder
	notifier Notifier
	context  string
	log      *slog.Logger
	now      func() time.Time
}

// New returns a Processor.
func New(cfg *config.Config, deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		mail:     deps.Mailbox,
		store:    deps.Store,
		planner:  deps.Planner,
		lock:     deps.Locker,
		recorder: deps.Recorder,
		notifier: deps.Notifier,
		context:  deps.Context,
		log:      logger,
		now:      time.Now,
	}
}

// labels holds the resolved label ids for one run.
type labels struct {
	unprocessed string
	processed   string
	failed      string
}

// work is a thread that needs a plan.
type work struct {
	thread   *types.Thread
	messages []*types.Message
	existing *types.TaskRecord
}

// run is the mutable state of a single run.
type run struct {
	summary *types.RunSummary
	labels  labels
	errs    []error
	log     *slog.Logger
}

// ProcessAllUnprocessedThreads performs one run and reports only its error.
func (p *Processor) ProcessAllUnprocessedThreads(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}

// Run performs one processing run. When another run holds the lock it
// returns a summary with Locked set and no error.
func (p *Processor) Run(ctx context.Context) (*types.RunSummary, error) {
	summary := &types.RunSummary{RunID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := p.log.With("run_id", summary.RunID)

	ok, err := p.lock.TryLock(ctx)
	if err != nil {
		return summary, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		log.Info("could not obtain lock, another run is likely active")
		summary.Locked = true
		return summary, nil
	}
	defer func() {
		if err := p.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release run lock", "error", err)
		}
	}()

	r := &run{summary: summary, log: log}
	err = p.execute(ctx, r)
	switch {
	case err != nil && len(r.errs) > 0:
		// Threads that failed before the abort are still reported.
		err = errors.Join(append([]error{err}, r.errs...)...)
	case len(r.errs) > 0:
		err = &RunError{ThreadIDs: summary.Failed, Err: errors.Join(r.errs...)}
	}
	if summary.Threads > 0 {
		p.record(ctx, r, err)
	}
	if err != nil {
		p.notify(ctx, r, err)
	}
	return summary, err
}

func (p *Processor) execute(ctx context.Context, r *run) error {
	var err error
	r.labels, err = p.resolveLabels(ctx)
	if err != nil {
		return err
	}

	if rs, ok := p.store.(tasks.Resetter); ok {
		rs.Reset()
	}

	threads, err := p.mail.UnprocessedThreads(ctx, r.labels.unprocessed, p.cfg.MaxThreads)
	if err != nil {
		return fmt.Errorf("fetch unprocessed threads: %w", err)
	}
	r.summary.Threads = len(threads)
	r.log.Info("found unprocessed threads", "count", len(threads))
	if len(threads) == 0 {
		return nil
	}

	var pending []*work
	for _, t := range threads {
		if w := p.prepare(ctx, r, t); w != nil {
			pending = append(pending, w)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	inputs := make([]types.ThreadInput, len(pending))
	for i, w := range pending {
		inputs[i] = types.ThreadInput{Thread: w.thread, Messages: w.messages}
		if w.existing != nil {
			inputs[i].ExistingTask = &types.ExistingTask{
				Title:  w.existing.Title,
				Notes:  w.existing.Notes,
				Status: w.existing.Status,
			}
		}
	}

	plans, err := p.planner.GeneratePlans(ctx, inputs, p.context)
	if err != nil {
		return fmt.Errorf("generate plans: %w", err)
	}
	if len(plans) != len(pending) {
		return fmt.Errorf("%w: %d threads, %d plans", ErrPlanCountMismatch, len(pending), len(plans))
	}

	for i, w := range pending {
		if err := p.apply(ctx, r, w, &plans[i]); err != nil {
			p.fail(ctx, r, w.thread, err)
		}
	}
	return nil
}

func (p *Processor) resolveLabels(ctx context.Context) (labels, error) {
	var l labels
	lookup := func(name string) (string, error) {
		id, err := p.mail.LabelID(ctx, name)
		if err != nil {
			return "", fmt.Errorf("look up label %q: %w", name, err)
		}
		return id, nil
	}

	id, err := lookup(p.cfg.UnprocessedLabel)
	if err != nil {
		return l, err
	}
	if id == "" {
		return l, fmt.Errorf("%w: %q, please create it", ErrLabelNotFound, p.cfg.UnprocessedLabel)
	}
	l.unprocessed = id

	if p.cfg.ProcessedLabel != "" {
		id, err := lookup(p.cfg.ProcessedLabel)
		if err != nil {
			return l, err
		}
		if id == "" {
			return l, fmt.Errorf("%w: %q, please create it", ErrLabelNotFound, p.cfg.ProcessedLabel)
		}
		l.processed = id
	}

	if p.cfg.ProcessingFailedLabel != "" {
		id, err := lookup(p.cfg.ProcessingFailedLabel)
		if err != nil {
			return l, err
		}
		if id == "" {
			p.log.Warn("error label not found, failed threads will not be tagged", "label", p.cfg.ProcessingFailedLabel)
		}
		l.failed = id
	}
	return l, nil
}

// prepare resolves the checkpoint and existing task of a thread. It returns
// nil when the thread was settled without a plan or failed.
func (p *Processor) prepare(ctx context.Context, r *run, t *types.Thread) *work {
	log := r.log.With("thread_id", t.ID)

	checkpoint, _ := p.store.FindCheckpoint(ctx, t.ID)
	fresh := t.MessagesAfter(checkpoint)
	if len(fresh) == 0 {
		log.Debug("no messages newer than checkpoint", "checkpoint", checkpoint)
		if err := p.markProcessed(ctx, r, t); err != nil {
			p.fail(ctx, r, t, err)
			return nil
		}
		r.summary.Unchanged++
		return nil
	}

	existing, err := p.store.FindTask(ctx, t.ID)
	if err != nil {
		p.fail(ctx, r, t, fmt.Errorf("find task: %w", err))
		return nil
	}

	if existing != nil && existing.IsCompleted() && p.cfg.ReopenCheck {
		reopen, err := p.planner.ShouldReopenTask(ctx, &types.ExistingTask{
			Title:  existing.Title,
			Notes:  existing.Notes,
			Status: existing.Status,
		}, fresh, p.context)
		if err != nil {
			p.fail(ctx, r, t, err)
			return nil
		}
		if !reopen {
			log.Info("new messages not substantial, task stays completed", "task_id", existing.ID)
			if err := p.markProcessed(ctx, r, t); err != nil {
				p.fail(ctx, r, t, err)
				return nil
			}
			r.summary.Unchanged++
			return nil
		}
	}

	return &work{thread: t, messages: fresh, existing: existing}
}

func (p *Processor) apply(ctx context.Context, r *run, w *work, plan *types.PlanOfAction) error {
	t := w.thread
	log := r.log.With("thread_id", t.ID)

	if err := plan.Validate(); err != nil {
		return err
	}
	action := plan.EffectiveAction(w.existing != nil)
	log.Info("executing plan", "action", action)

	switch action {
	case types.ActionDoNothing:
		if !t.Unread {
			if err := p.mail.MarkUnread(ctx, t.ID); err != nil {
				return err
			}
		}
		if err := p.markProcessed(ctx, r, t); err != nil {
			return err
		}
		r.summary.Ignored++
		return nil

	case types.ActionReopenAndUpdateTask:
		reopened := false
		switch {
		case w.existing == nil || w.existing.ID == "":
			log.Info("no task to reopen, creating a new one")
		case !w.existing.IsCompleted():
			log.Info("task is already open, updating it", "task_id", w.existing.ID)
		default:
			ok, err := p.store.ReopenTask(ctx, w.existing.ID)
			if err != nil {
				return fmt.Errorf("reopen task %s: %w", w.existing.ID, err)
			}
			reopened = ok
		}
		done, err := p.upsert(ctx, r, w, plan.Task)
		if err != nil || !done {
			return err
		}
		switch {
		case reopened:
			r.summary.Reopened++
		case w.existing != nil:
			r.summary.Updated++
		default:
			r.summary.Created++
		}
		return nil

	default:
		done, err := p.upsert(ctx, r, w, plan.Task)
		if err != nil || !done {
			return err
		}
		if w.existing != nil {
			r.summary.Updated++
		} else {
			r.summary.Created++
		}
		return nil
	}
}

// upsert writes the task and, on success, marks the thread read and
// processed. A store that declines leaves the thread untouched for the next
// run.
func (p *Processor) upsert(ctx context.Context, r *run, w *work, task *types.Task) (bool, error) {
	ok, err := p.store.UpsertTask(ctx, w.thread, task, w.thread.Permalink)
	if err != nil {
		return false, fmt.Errorf("upsert task: %w", err)
	}
	if !ok {
		r.log.Warn("task store declined the task, thread left unprocessed", "thread_id", w.thread.ID)
		r.summary.Skipped++
		return false, nil
	}
	if err := p.mail.MarkRead(ctx, w.thread.ID); err != nil {
		return false, err
	}
	if err := p.markProcessed(ctx, r, w.thread); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) markProcessed(ctx context.Context, r *run, t *types.Thread) error {
	var add []string
	if r.labels.processed != "" {
		add = []string{r.labels.processed}
	}
	return p.mail.ModifyLabels(ctx, t.ID, add, []string{r.labels.unprocessed})
}

// fail tags a thread that could not be processed. The thread keeps its
// unprocessed label so the next run retries it.
func (p *Processor) fail(ctx context.Context, r *run, t *types.Thread, err error) {
	r.log.Error("failed to process thread", "thread_id", t.ID, "error", err)
	r.summary.Failed = append(r.summary.Failed, t.ID)
	r.errs = append(r.errs, fmt.Errorf("thread %s: %w", t.ID, err))

	if r.labels.failed != "" {
		if lerr := p.mail.ModifyLabels(ctx, t.ID, []string{r.labels.failed}, nil); lerr != nil {
			r.log.Warn("could not apply error label", "thread_id", t.ID, "error", lerr)
		}
	}
	if merr := p.mail.MoveToInbox(ctx, t.ID); merr != nil {
		r.log.Warn("could not move thread to inbox", "thread_id", t.ID, "error", merr)
	}
}

func (p *Processor) record(ctx context.Context, r *run, runErr error) {
	if p.recorder == nil {
		return
	}
	s := r.summary
	rec := &types.RunRecord{
		ID:         s.RunID,
		StartedAt:  s.StartedAt.Format(time.RFC3339),
		FinishedAt: p.now().UTC().Format(time.RFC3339),
		Threads:    s.Threads,
		Processed:  s.Processed(),
		Skipped:    s.Skipped,
		Failed:     len(s.Failed),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := p.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("could not record run statistics", "error", err)
	}
}

func (p *Processor) notify(ctx context.Context, r *run, runErr error) {
	if p.notifier == nil || !p.cfg.NotifyOnFailure {
		return
	}
	body := fmt.Sprintf("mailtasks run %s started at %s failed:\n\n%v\n",
		r.summary.RunID, r.summary.StartedAt.Format(time.RFC1123), runErr)
	if err := p.notifier.SendFailureReport(context.WithoutCancel(ctx), "mailtasks: processing failed", body); err != nil {
		r.log.Warn("could not send failure report", "error", err)
	}
}

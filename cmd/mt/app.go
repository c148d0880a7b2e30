package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daviddao/mailtasks/internal/auth"
	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/gmail"
	"github.com/daviddao/mailtasks/internal/planner"
	"github.com/daviddao/mailtasks/internal/processor"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/tasks/backend"
)

// app holds everything a processing run needs.
type app struct {
	store     *db.DB
	mailbox   *gmail.Mailbox
	processor *processor.Processor
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// newApp validates the loaded configuration and wires the processor.
func newApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := slog.Default()

	svc, err := auth.LoadGmailService(ctx, cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("connect to gmail: %w", err)
	}
	mailbox := gmail.New(svc)

	taskStore, err := backend.New(ctx, cfg, backend.Options{Cache: tasks.NewListCache(), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect to task service: %w", err)
	}

	plan, err := planner.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	userContext, err := planner.LoadContext(cfg.ContextFile)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	lease := cfg.LockLease
	if lease <= 0 {
		lease = 30 * time.Minute
	}

	p := processor.New(cfg, processor.Deps{
		Mailbox:  mailbox,
		Store:    taskStore,
		Planner:  plan,
		Locker:   store.NewLease(db.RunLockName, lease, cfg.LockTimeout),
		Recorder: store,
		Notifier: mailbox,
		Context:  userContext,
		Logger:   logger,
	})
	return &app{store: store, mailbox: mailbox, processor: p}, nil
}

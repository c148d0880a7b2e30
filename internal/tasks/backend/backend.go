// Package backend selects the task store implementation from configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/daviddao/mailtasks/internal/auth"
	"github.com/daviddao/mailtasks/internal/config"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/tasks/googletasks"
	"github.com/daviddao/mailtasks/internal/tasks/todoist"
)

// Options carries the pieces a backend may need besides the config.
type Options struct {
	// GoogleClient overrides the Google Tasks API client, mainly for tests.
	GoogleClient googletasks.Client
	// TodoistBaseURL overrides the Todoist API root.
	TodoistBaseURL string
	Cache          *tasks.ListCache
	Logger         *slog.Logger
}

// New returns the task store selected by cfg.TaskService. An unrecognized
// selector is an error wrapping config.ErrUnknownTaskService.
func New(ctx context.Context, cfg *config.Config, opts Options) (tasks.Store, error) {
	svc, err := cfg.Service()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("task_service", string(svc))

	switch svc {
	case config.GoogleTasks:
		client := opts.GoogleClient
		if client == nil {
			api, err := auth.LoadTasksService(ctx, cfg.CredentialsPath)
			if err != nil {
				return nil, fmt.Errorf("load tasks service: %w", err)
			}
			client = googletasks.NewAPIClient(api)
		}
		return googletasks.New(client, cfg.DefaultTaskListName, opts.Cache, logger), nil
	case config.Todoist:
		if cfg.TodoistAPIKey == "" {
			return nil, fmt.Errorf("todoist_api_key is not configured")
		}
		client := todoist.NewClient(opts.TodoistBaseURL, cfg.TodoistAPIKey)
		return todoist.New(client, cfg.TodoistProjectID, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownTaskService, cfg.TaskService)
}

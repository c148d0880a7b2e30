package backend

import (
	"context"
	"errors"
	"testing"

	gt "google.golang.org/api/tasks/v1"

	"github.com/daviddao/mailtasks/internal/config"
	"github.com/daviddao/mailtasks/internal/tasks"
	"github.com/daviddao/mailtasks/internal/tasks/googletasks"
	"github.com/daviddao/mailtasks/internal/tasks/todoist"
)

type nopClient struct{}

func (nopClient) ListTaskLists(context.Context) ([]*gt.TaskList, error) { return nil, nil }
func (nopClient) ListTasks(context.Context, string) ([]*gt.Task, error) { return nil, nil }
func (nopClient) GetTask(context.Context, string, string) (*gt.Task, error) {
	return nil, errors.New("not found")
}
func (nopClient) InsertTask(_ context.Context, _ string, t *gt.Task) (*gt.Task, error) {
	return t, nil
}
func (nopClient) UpdateTask(_ context.Context, _ string, t *gt.Task) (*gt.Task, error) {
	return t, nil
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, &config.Config{TaskService: "google_tasks", DefaultTaskListName: "My Tasks"},
		Options{GoogleClient: nopClient{}})
	if err != nil {
		t.Fatalf("New(google): %v", err)
	}
	if _, ok := store.(*googletasks.Store); !ok {
		t.Errorf("expected *googletasks.Store, got %T", store)
	}
	if _, ok := store.(tasks.Resetter); !ok {
		t.Error("google store should reset its list cache")
	}

	store, err = New(ctx, &config.Config{TaskService: "Todoist", TodoistAPIKey: "k"}, Options{})
	if err != nil {
		t.Fatalf("New(todoist): %v", err)
	}
	if _, ok := store.(*todoist.Store); !ok {
		t.Errorf("expected *todoist.Store, got %T", store)
	}
}

func TestNewUnknownService(t *testing.T) {
	_, err := New(context.Background(), &config.Config{TaskService: "Asana"}, Options{})
	if !errors.Is(err, config.ErrUnknownTaskService) {
		t.Fatalf("expected ErrUnknownTaskService, got %v", err)
	}
}

func TestNewTodoistWithoutKey(t *testing.T) {
	if _, err := New(context.Background(), &config.Config{TaskService: "Todoist"}, Options{}); err == nil {
		t.Fatal("expected error without todoist key")
	}
}

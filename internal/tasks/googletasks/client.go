// Package googletasks implements the task store on top of the Google Tasks API.
package googletasks

import (
	"context"
	"fmt"

	gt "google.golang.org/api/tasks/v1"
)

// Client is the subset of the Google Tasks API used by Store.
type Client interface {
	ListTaskLists(ctx context.Context) ([]*gt.TaskList, error)
	// ListTasks returns every task in the list, completed and hidden ones
	// included.
	ListTasks(ctx context.Context, listID string) ([]*gt.Task, error)
	GetTask(ctx context.Context, listID, taskID string) (*gt.Task, error)
	InsertTask(ctx context.Context, listID string, task *gt.Task) (*gt.Task, error)
	UpdateTask(ctx context.Context, listID string, task *gt.Task) (*gt.Task, error)
}

// APIClient is a Client backed by the generated tasks/v1 service.
type APIClient struct {
	svc *gt.Service
}

// NewAPIClient wraps an authenticated tasks service.
func NewAPIClient(svc *gt.Service) *APIClient {
	return &APIClient{svc: svc}
}

func (c *APIClient) ListTaskLists(ctx context.Context) ([]*gt.TaskList, error) {
	var out []*gt.TaskList
	err := c.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(page *gt.TaskLists) error {
		out = append(out, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list task lists: %w", err)
	}
	return out, nil
}

func (c *APIClient) ListTasks(ctx context.Context, listID string) ([]*gt.Task, error) {
	var out []*gt.Task
	err := c.svc.Tasks.List(listID).
		ShowCompleted(true).
		ShowHidden(true).
		MaxResults(100).
		Pages(ctx, func(page *gt.Tasks) error {
			out = append(out, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list tasks in %s: %w", listID, err)
	}
	return out, nil
}

func (c *APIClient) GetTask(ctx context.Context, listID, taskID string) (*gt.Task, error) {
	t, err := c.svc.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return t, nil
}

func (c *APIClient) InsertTask(ctx context.Context, listID string, task *gt.Task) (*gt.Task, error) {
	t, err := c.svc.Tasks.Insert(listID, task).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (c *APIClient) UpdateTask(ctx context.Context, listID string, task *gt.Task) (*gt.Task, error) {
	t, err := c.svc.Tasks.Update(listID, task.Id, task).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", task.Id, err)
	}
	return t, nil
}

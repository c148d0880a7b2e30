// Package todoist implements the task store on top of the Todoist REST API.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Todoist unified API root.
const DefaultBaseURL = "https://api.todoist.com/api/v1"

// APIError is a non-2xx response from Todoist.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todoist %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Due is the due block of a Todoist task.
type Due struct {
	Date   string `json:"date"`
	String string `json:"string,omitempty"`
}

// Task is a Todoist task as returned by the API.
type Task struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	ProjectID   string `json:"project_id,omitempty"`
	Due         *Due   `json:"due,omitempty"`
	Checked     bool   `json:"checked"`
	CompletedAt string `json:"completed_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// TaskPayload is the body of create and update requests.
type TaskPayload struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	DueString   string `json:"due_string,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
}

type pagedTasks struct {
	Results    []*Task `json:"results"`
	NextCursor string  `json:"next_cursor"`
}

type completedTasks struct {
	Items      []*Task `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Client is a thin HTTP client for the Todoist API. It handles Bearer
// authentication, JSON marshaling, and retries on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Todoist client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// FilterTasks returns all active tasks matching a Todoist filter query.
func (c *Client) FilterTasks(ctx context.Context, query string) ([]*Task, error) {
	var out []*Task
	cursor := ""
	for {
		q := url.Values{"query": {query}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page pagedTasks
		if err := c.do(ctx, http.MethodGet, "/tasks/filter?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// CompletedTasks returns tasks completed between since and until that match
// filterQuery.
func (c *Client) CompletedTasks(ctx context.Context, since, until time.Time, filterQuery string) ([]*Task, error) {
	var out []*Task
	cursor := ""
	for {
		q := url.Values{
			"since": {since.UTC().Format(time.RFC3339)},
			"until": {until.UTC().Format(time.RFC3339)},
		}
		if filterQuery != "" {
			q.Set("filter_query", filterQuery)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page completedTasks
		if err := c.do(ctx, http.MethodGet, "/tasks/completed/by_completion_date?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, p *TaskPayload) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/tasks", p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask updates a task in place.
func (c *Client) UpdateTask(ctx context.Context, id string, p *TaskPayload) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ReopenTask marks a completed task active again.
func (c *Client) ReopenTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/reopen", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
		}

		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header, falling back to
// exponential backoff capped at 30s.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

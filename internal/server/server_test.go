package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/processor"
	"github.com/daviddao/mailtasks/internal/types"
)

type stubRunner struct {
	summary *types.RunSummary
	err     error
	calls   int
}

func (r *stubRunner) Run(ctx context.Context) (*types.RunSummary, error) {
	r.calls++
	return r.summary, r.err
}

type stubHistory struct {
	runs  []*types.RunRecord
	limit int
	err   error
}

func (h *stubHistory) RecentRuns(ctx context.Context, limit int) ([]*types.RunRecord, error) {
	h.limit = limit
	return h.runs, h.err
}

func (h *stubHistory) RunTotals(ctx context.Context) (*db.Totals, error) {
	return &db.Totals{Runs: len(h.runs)}, h.err
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s := New("127.0.0.1:0", &stubRunner{}, &stubHistory{}, nil)
	w := serve(t, s, http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestHandleRuns(t *testing.T) {
	h := &stubHistory{runs: []*types.RunRecord{{ID: "r1", Threads: 2, Processed: 2}}}
	s := New("127.0.0.1:0", &stubRunner{}, h, nil)

	w := serve(t, s, http.MethodGet, "/api/runs?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if h.limit != 5 {
		t.Errorf("limit: got %d", h.limit)
	}
	var body runsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != "r1" || body.Totals.Runs != 1 {
		t.Errorf("body: %+v", body)
	}
}

func TestHandleRunsEmptyIsArray(t *testing.T) {
	s := New("127.0.0.1:0", &stubRunner{}, &stubHistory{}, nil)
	w := serve(t, s, http.MethodGet, "/api/runs")
	var body map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(body["runs"]) != "[]" {
		t.Errorf("runs: got %s", body["runs"])
	}
}

func TestHandleRunsBadLimit(t *testing.T) {
	s := New("127.0.0.1:0", &stubRunner{}, &stubHistory{}, nil)
	if w := serve(t, s, http.MethodGet, "/api/runs?limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRunsError(t *testing.T) {
	s := New("127.0.0.1:0", &stubRunner{}, &stubHistory{err: errors.New("db closed")}, nil)
	if w := serve(t, s, http.MethodGet, "/api/runs"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHandleRun(t *testing.T) {
	tests := []struct {
		name   string
		runner *stubRunner
		status int
		failed int
	}{
		{"ran", &stubRunner{summary: &types.RunSummary{RunID: "r", Threads: 1, Created: 1}}, http.StatusAccepted, 0},
		{"locked", &stubRunner{summary: &types.RunSummary{Locked: true}}, http.StatusConflict, 0},
		{"partial failure", &stubRunner{
			summary: &types.RunSummary{Threads: 2, Created: 1, Failed: []string{"t2"}},
			err:     &processor.RunError{ThreadIDs: []string{"t2"}, Err: errors.New("boom")},
		}, http.StatusInternalServerError, 1},
		{"fatal", &stubRunner{summary: &types.RunSummary{}, err: processor.ErrLabelNotFound}, http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("127.0.0.1:0", tt.runner, &stubHistory{}, nil)
			w := serve(t, s, http.MethodPost, "/api/run")
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			var body runResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if len(body.Failed) != tt.failed {
				t.Errorf("failed threads: %v", body.Failed)
			}
			if tt.runner.calls != 1 {
				t.Errorf("runner calls: %d", tt.runner.calls)
			}
		})
	}
}

func TestRunRequiresPost(t *testing.T) {
	s := New("127.0.0.1:0", &stubRunner{}, &stubHistory{}, nil)
	if w := serve(t, s, http.MethodGet, "/api/run"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

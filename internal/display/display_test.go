package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/types"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{now.Format(time.RFC3339), "just now"},
		{now.Add(-5 * time.Minute).Format(time.RFC3339), "5m ago"},
		{now.Add(-3 * time.Hour).Format(time.RFC3339), "3h ago"},
		{now.Add(-50 * time.Hour).Format(time.RFC3339), "2d ago"},
		{"garbage-date-value", "garbage-da"},
	}
	for _, tt := range tests {
		if got := TimeAgo(tt.in); got != tt.want {
			t.Errorf("TimeAgo(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, &types.RunSummary{
		RunID: "0123456789", Threads: 3, Created: 2, Failed: []string{"t9"},
	})
	out := buf.String()
	for _, want := range []string{"3 thread(s)", "01234567", "created", "failed", "t9"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "updated") {
		t.Errorf("zero counters should be omitted:\n%s", out)
	}
}

func TestSummaryLockedAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, &types.RunSummary{Locked: true})
	if !strings.Contains(buf.String(), "another run is active") {
		t.Errorf("locked: %q", buf.String())
	}
	buf.Reset()
	Summary(&buf, &types.RunSummary{})
	if !strings.Contains(buf.String(), "no unprocessed threads") {
		t.Errorf("empty: %q", buf.String())
	}
}

func TestRunsAndTotals(t *testing.T) {
	var buf bytes.Buffer
	Runs(&buf, nil)
	if !strings.Contains(buf.String(), "no runs recorded") {
		t.Errorf("empty runs: %q", buf.String())
	}

	buf.Reset()
	Runs(&buf, []*types.RunRecord{{ID: "r1", StartedAt: time.Now().UTC().Format(time.RFC3339), Threads: 4, Processed: 3, Failed: 1, Error: "1 thread(s) failed"}})
	if !strings.Contains(buf.String(), "1 thread(s) failed") {
		t.Errorf("runs: %q", buf.String())
	}

	buf.Reset()
	Totals(&buf, &db.Totals{Runs: 2, Threads: 7, Processed: 5})
	if !strings.Contains(buf.String(), "2 runs, 7 threads, 5 processed") {
		t.Errorf("totals: %q", buf.String())
	}
}

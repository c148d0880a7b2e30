// Package display provides terminal formatting for mailtasks output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.RFC3339Nano} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// WarnMsg prints an amber bang + message.
func WarnMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Warn.Render("!") + " " + msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// SubHeader prints a dim subsection label.
func SubHeader(title string) {
	fmt.Println(Muted.Render(title))
}

// Summary writes the outcome of one run.
func Summary(w io.Writer, s *types.RunSummary) {
	if s == nil {
		return
	}
	if s.Locked {
		fmt.Fprintln(w, Warn.Render("!")+" another run is active, nothing done")
		return
	}
	if s.Threads == 0 {
		fmt.Fprintln(w, Success.Render("✓")+" no unprocessed threads")
		return
	}

	mark := Success.Render("✓")
	if len(s.Failed) > 0 {
		mark = ErrStyle.Render("✗")
	}
	fmt.Fprintf(w, "%s %d thread(s) %s\n", mark, s.Threads, Dim.Render("run "+shortID(s.RunID)))

	rows := []struct {
		label string
		n     int
	}{
		{"created", s.Created},
		{"updated", s.Updated},
		{"reopened", s.Reopened},
		{"ignored", s.Ignored},
		{"unchanged", s.Unchanged},
		{"skipped", s.Skipped},
	}
	for _, r := range rows {
		if r.n == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s %d\n", Muted.Render(fmt.Sprintf("%-10s", r.label)), r.n)
	}
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "  %s %d  %s\n",
			ErrStyle.Render(fmt.Sprintf("%-10s", "failed")), len(s.Failed),
			Dim.Render(strings.Join(s.Failed, ", ")))
	}
}

// Runs writes a table of recorded runs, newest first.
func Runs(w io.Writer, runs []*types.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, Dim.Render("no runs recorded yet"))
		return
	}
	for _, r := range runs {
		status := Success.Render("●")
		switch {
		case r.Error != "":
			status = ErrStyle.Render("●")
		case r.Skipped > 0:
			status = Warn.Render("●")
		}
		fmt.Fprintf(w, "%s %-10s %3d threads  %3d done  %2d skipped  %2d failed",
			status, TimeAgo(r.StartedAt), r.Threads, r.Processed, r.Skipped, r.Failed)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s", Dim.Render(Truncate(r.Error, 60)))
		}
		fmt.Fprintln(w)
	}
}

// Totals writes aggregate statistics.
func Totals(w io.Writer, t *db.Totals) {
	if t == nil {
		return
	}
	fmt.Fprintf(w, "%s %d runs, %d threads, %d processed, %d skipped, %d failed\n",
		Bold.Render("Total:"), t.Runs, t.Threads, t.Processed, t.Skipped, t.Failed)
	if t.LastRun != "" {
		fmt.Fprintf(w, "%s %s\n", Muted.Render("Last run:"), TimeAgo(t.LastRun))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Guideline is one row of the user's AI context file.
type Guideline struct {
	Category  string `yaml:"category"`
	Guideline string `yaml:"guideline"`
}

// LoadContext reads a YAML list of guidelines and renders it as a
// markdown table. A missing file yields an empty context.
func LoadContext(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read context %s: %w", path, err)
	}
	var rows []Guideline
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("parse context %s: %w", path, err)
	}
	return RenderContext(rows), nil
}

// RenderContext formats guidelines as a two-column markdown table.
func RenderContext(rows []Guideline) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| Category | Guideline |\n|---|---|")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n| %s | %s |", cell(r.Category), cell(r.Guideline))
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(strings.ReplaceAll(s, "|", `\|`))
}

// ContextTemplate is written by `mt init` next to the config file.
const ContextTemplate = `# Rows describing how to triage your email.
- category: Work
  guideline: Anything from my manager or about a deadline needs a task.
- category: Newsletters
  guideline: Never create tasks for newsletters or marketing mail.
`

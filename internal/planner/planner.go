// Package planner asks a generative model what to do with each email thread.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/daviddao/mailtasks/internal/config"
	"github.com/daviddao/mailtasks/internal/types"
)

var (
	// ErrMissingAPIKey is returned when the selected provider has no key.
	ErrMissingAPIKey = errors.New("missing AI API key")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty AI response")
	// ErrMalformedResponse is returned when the model output is not the
	// expected JSON.
	ErrMalformedResponse = errors.New("malformed AI response")
)

// Request is one structured-output call to a model.
type Request struct {
	System string
	Parts  []string
	Schema *genai.Schema
}

// Completer runs a Request against a model and returns its raw JSON text.
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
	Name() string
}

// Planner implements plan generation and the reopen decision on top of a
// Completer.
type Planner struct {
	backend Completer
	log     *slog.Logger
}

// New builds a Planner for cfg.AIProvider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Planner, error) {
	var (
		backend Completer
		err     error
	)
	switch cfg.AIProvider {
	case config.ProviderGemini, "":
		backend, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderOpenAI:
		backend, err = NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown ai_provider %q", cfg.AIProvider)
	}
	if err != nil {
		return nil, err
	}
	return NewWithCompleter(backend, logger), nil
}

// NewWithCompleter returns a Planner over an existing backend.
func NewWithCompleter(backend Completer, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{backend: backend, log: logger.With("ai_provider", backend.Name())}
}

// GeneratePlans returns one plan per input, in input order. The caller
// checks the length; a mismatch is returned as-is.
func (p *Planner) GeneratePlans(ctx context.Context, inputs []types.ThreadInput, userContext string) ([]types.PlanOfAction, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	parts := make([]string, 0, len(inputs))
	for i, in := range inputs {
		parts = append(parts, formatThread(i+1, in))
	}

	start := time.Now()
	text, err := p.backend.Complete(ctx, &Request{
		System: plansPrompt(userContext),
		Parts:  parts,
		Schema: plansSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate plans: %w", err)
	}
	plans, err := ParsePlans(text)
	if err != nil {
		return nil, err
	}
	p.log.Debug("plans generated", "threads", len(inputs), "plans", len(plans), "duration", time.Since(start))
	return plans, nil
}

// ShouldReopenTask asks whether newMessages carry enough new information to
// reopen a completed task.
func (p *Planner) ShouldReopenTask(ctx context.Context, existing *types.ExistingTask, newMessages []*types.Message, userContext string) (bool, error) {
	text, err := p.backend.Complete(ctx, &Request{
		System: reopenPrompt(userContext),
		Parts:  []string{formatExisting(existing) + "\n" + formatMessages(newMessages)},
		Schema: reopenSchema(),
	})
	if err != nil {
		return false, fmt.Errorf("reopen decision: %w", err)
	}
	decision, err := ParseReopen(text)
	if err != nil {
		return false, err
	}
	p.log.Debug("reopen decision", "reopen", decision.Reopen, "reason", decision.Reason)
	return decision.Reopen, nil
}

// wirePlan tolerates numbers the model emits as floats.
type wirePlan struct {
	Action string `json:"action"`
	Task   *struct {
		Title    string  `json:"title"`
		Notes    string  `json:"notes"`
		DueDate  string  `json:"due_date"`
		Priority float64 `json:"priority"`
	} `json:"task"`
	Confidence *types.Confidence `json:"confidence"`
}

// ParsePlans decodes model output: either a bare JSON array of plans or an
// object with a "plans" array. Code fences are ignored.
func ParsePlans(text string) ([]types.PlanOfAction, error) {
	text = stripFences(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var raw []wirePlan
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		var wrapped struct {
			Plans *[]wirePlan `json:"plans"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapped); err2 != nil || wrapped.Plans == nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		raw = *wrapped.Plans
	}

	plans := make([]types.PlanOfAction, 0, len(raw))
	for _, w := range raw {
		plan := types.PlanOfAction{
			Action:     types.Action(strings.ToUpper(strings.TrimSpace(w.Action))),
			Confidence: w.Confidence,
		}
		if w.Task != nil {
			plan.Task = &types.Task{
				Title:    w.Task.Title,
				Notes:    w.Task.Notes,
				DueDate:  strings.TrimSpace(w.Task.DueDate),
				Priority: int(w.Task.Priority),
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ReopenDecision is the model's answer to the reopen question.
type ReopenDecision struct {
	Reopen bool   `json:"reopen"`
	Reason string `json:"reason"`
}

// ParseReopen decodes a reopen decision.
func ParseReopen(text string) (*ReopenDecision, error) {
	text = stripFences(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var d ReopenDecision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &d, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

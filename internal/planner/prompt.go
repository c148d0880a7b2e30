package planner

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/daviddao/mailtasks/internal/types"
)

func plansPrompt(userContext string) string {
	var b strings.Builder
	b.WriteString("You help me triage my email. For every email thread you receive, return one Plan of Action.\n")
	b.WriteString("Return a JSON array with exactly one plan per thread, in the order the threads were given.\n\n")
	if userContext != "" {
		b.WriteString("MY CONTEXT:\n---\n")
		b.WriteString(userContext)
		b.WriteString("\n---\n\n")
	}
	b.WriteString("Pick one action per thread:\n")
	b.WriteString("1. CREATE_TASK: the thread is actionable and there is no existing task.\n")
	b.WriteString("2. UPDATE_TASK: there is an open task and the new messages change it.\n")
	b.WriteString("3. REOPEN_AND_UPDATE_TASK: the existing task is completed and the new messages need action again.\n")
	b.WriteString("4. DO_NOTHING: nothing to act on, or only a minor follow-up such as \"Thanks!\".\n\n")
	b.WriteString("When the action is DO_NOTHING, task must be null. Otherwise title and notes are required.\n")
	b.WriteString("Priority runs from 1 (urgent) to 4 (normal). due_date is YYYY-MM-DD when you know it.\n")
	return b.String()
}

func reopenPrompt(userContext string) string {
	var b strings.Builder
	b.WriteString("A task I already completed has new email replies. Decide whether the replies contain substantial new information that needs action from me.\n")
	b.WriteString("Short acknowledgements, thanks and pleasantries are not substantial.\n")
	if userContext != "" {
		b.WriteString("\nMY CONTEXT:\n---\n")
		b.WriteString(userContext)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nAnswer with JSON {\"reopen\": true|false, \"reason\": \"...\"}.\n")
	return b.String()
}

func formatThread(n int, in types.ThreadInput) string {
	subject := ""
	if in.Thread != nil {
		subject = in.Thread.Subject
	}
	msgs := in.Messages
	if msgs == nil && in.Thread != nil {
		msgs = in.Thread.Messages
	}
	var b strings.Builder
	fmt.Fprintf(&b, "EMAIL THREAD %d: %s\n---\n", n, subject)
	b.WriteString(formatMessages(msgs))
	b.WriteString("\n---\n")
	if in.ExistingTask != nil {
		b.WriteString(formatExisting(in.ExistingTask))
	}
	return b.String()
}

func formatExisting(t *types.ExistingTask) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("EXISTING TASK:\n---\nTitle: %s\nNotes: %s\nStatus: %s\n---\n", t.Title, t.Notes, t.Status)
}

func formatMessages(msgs []*types.Message) string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nDate: %s\n\n%s",
			m.From, m.To, m.Subject, m.Date.Format(time.RFC1123Z), m.Body))
	}
	return strings.Join(out, "\n\n---\n\n")
}

func plansSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:        genai.TypeObject,
			Title:       "Plan of Action",
			Description: "The decision for one email thread, with a task when one is needed.",
			Properties: map[string]*genai.Schema{
				"action": {
					Type: genai.TypeString,
					Enum: []string{
						string(types.ActionCreateTask),
						string(types.ActionUpdateTask),
						string(types.ActionReopenAndUpdateTask),
						string(types.ActionDoNothing),
					},
				},
				"task": {
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":    {Type: genai.TypeString, Description: "Short, glanceable summary of the required action."},
						"notes":    {Type: genai.TypeString, Description: "Markdown notes with the details needed to act."},
						"due_date": {Type: genai.TypeString, Description: "YYYY-MM-DD or natural language."},
						"priority": {Type: genai.TypeInteger, Description: "1 (urgent) to 4 (normal)."},
					},
					Required: []string{"title", "notes"},
				},
				"confidence": {
					Type:        genai.TypeObject,
					Description: "How sure you are that a task is needed.",
					Properties: map[string]*genai.Schema{
						"score":                {Type: genai.TypeNumber, Description: "0 means ignore, 100 means certainly create a task."},
						"reasoning":            {Type: genai.TypeString},
						"not_higher_reasoning": {Type: genai.TypeString},
						"not_lower_reasoning":  {Type: genai.TypeString},
					},
					Required: []string{"score", "reasoning", "not_higher_reasoning", "not_lower_reasoning"},
				},
			},
			Required: []string{"action", "confidence"},
		},
	}
}

func reopenSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"reopen": {Type: genai.TypeBoolean},
			"reason": {Type: genai.TypeString},
		},
		Required: []string{"reopen", "reason"},
	}
}

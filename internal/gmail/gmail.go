// Package gmail provides the Gmail side of mailtasks: label lookup, thread
// retrieval and the label/read-state mutations applied after processing.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailtasks/internal/types"
)

const (
	labelUnread = "UNREAD"
	labelInbox  = "INBOX"
	user        = "me"
)

// Mailbox wraps an authenticated Gmail API service.
type Mailbox struct {
	svc *gm.Service
}

// New returns a Mailbox over svc.
func New(svc *gm.Service) *Mailbox {
	return &Mailbox{svc: svc}
}

// Permalink returns the web URL of a thread.
func Permalink(threadID string) string {
	return "https://mail.google.com/mail/u/0/#inbox/" + threadID
}

// LabelID returns the id of the user label with the given name, or "" when
// no such label exists.
func (m *Mailbox) LabelID(ctx context.Context, name string) (string, error) {
	resp, err := m.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range resp.Labels {
		if l.Name == name {
			return l.Id, nil
		}
	}
	return "", nil
}

// CreateLabel creates a visible user label and returns its id.
func (m *Mailbox) CreateLabel(ctx context.Context, name string) (string, error) {
	l, err := m.svc.Users.Labels.Create(user, &gm.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	return l.Id, nil
}

// UnprocessedThreads returns up to limit threads carrying labelID, with
// every message decoded and ordered oldest first.
func (m *Mailbox) UnprocessedThreads(ctx context.Context, labelID string, limit int) ([]*types.Thread, error) {
	resp, err := m.svc.Users.Threads.List(user).
		LabelIds(labelID).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]*types.Thread, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		full, err := m.svc.Users.Threads.Get(user, t.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get thread %s: %w", t.Id, err)
		}
		threads = append(threads, convertThread(full))
	}
	return threads, nil
}

// MarkRead removes the UNREAD label from every message in the thread.
func (m *Mailbox) MarkRead(ctx context.Context, threadID string) error {
	return m.ModifyLabels(ctx, threadID, nil, []string{labelUnread})
}

// MarkUnread adds the UNREAD label to the thread.
func (m *Mailbox) MarkUnread(ctx context.Context, threadID string) error {
	return m.ModifyLabels(ctx, threadID, []string{labelUnread}, nil)
}

// MoveToInbox puts the thread back into the inbox.
func (m *Mailbox) MoveToInbox(ctx context.Context, threadID string) error {
	return m.ModifyLabels(ctx, threadID, []string{labelInbox}, nil)
}

// ModifyLabels adds and removes label ids on a thread in one call.
func (m *Mailbox) ModifyLabels(ctx context.Context, threadID string, add, remove []string) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	_, err := m.svc.Users.Threads.Modify(user, threadID, &gm.ModifyThreadRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify thread %s: %w", threadID, err)
	}
	return nil
}

// SendFailureReport mails subject/body to the account owner.
func (m *Mailbox) SendFailureReport(ctx context.Context, subject, body string) error {
	profile, err := m.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	raw := buildRawMessage(profile.EmailAddress, subject, body)
	_, err = m.svc.Users.Messages.Send(user, &gm.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send failure report: %w", err)
	}
	return nil
}

func buildRawMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func convertThread(t *gm.Thread) *types.Thread {
	out := &types.Thread{
		ID:        t.Id,
		Permalink: Permalink(t.Id),
	}
	labels := map[string]bool{}
	for _, msg := range t.Messages {
		for _, l := range msg.LabelIds {
			if l == labelUnread {
				out.Unread = true
			}
			if !labels[l] {
				labels[l] = true
				out.LabelIDs = append(out.LabelIDs, l)
			}
		}
		out.Messages = append(out.Messages, convertMessage(msg))
	}
	sort.SliceStable(out.Messages, func(i, j int) bool {
		return out.Messages[i].Date.Before(out.Messages[j].Date)
	})
	if len(out.Messages) > 0 {
		out.Subject = out.Messages[0].Subject
	}
	return out
}

func convertMessage(msg *gm.Message) *types.Message {
	var headers map[string]string
	var body string
	if msg.Payload != nil {
		headers = headerMap(msg.Payload.Headers)
		body = extractBody(msg.Payload)
	}
	return &types.Message{
		ID:      msg.Id,
		From:    headers["From"],
		To:      headers["To"],
		Subject: defaultStr(headers["Subject"], "(no subject)"),
		Date:    time.UnixMilli(msg.InternalDate).UTC(),
		Body:    body,
	}
}

// extractBody gets the plain text body from a message payload.
// Handles multipart messages recursively, preferring text/plain over text/html.
func extractBody(payload *gm.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			return decoded
		}
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return decoded
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}

	// Second pass: fall back to HTML.
	for _, part := range payload.Parts {
		if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return "(HTML content)\n" + decoded
			}
		}
	}

	return ""
}

func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url-encoded content, which may come
// with or without padding.
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

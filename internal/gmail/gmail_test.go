package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecodeBase64URL(t *testing.T) {
	for _, in := range []string{b64("hello world?"), base64.URLEncoding.EncodeToString([]byte("hello world?"))} {
		got, err := decodeBase64URL(in)
		if err != nil {
			t.Fatalf("decodeBase64URL(%q): %v", in, err)
		}
		if got != "hello world?" {
			t.Errorf("decodeBase64URL: got %q", got)
		}
	}
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	payload := &gm.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gm.MessagePart{
			{MimeType: "text/html", Body: &gm.MessagePartBody{Data: b64("<p>hi</p>")}},
			{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: b64("hi")}},
		},
	}
	if got := extractBody(payload); got != "hi" {
		t.Errorf("extractBody: got %q", got)
	}
}

func TestExtractBodyHTMLFallback(t *testing.T) {
	payload := &gm.MessagePart{
		Parts: []*gm.MessagePart{
			{MimeType: "text/html", Body: &gm.MessagePartBody{Data: b64("<p>hi</p>")}},
		},
	}
	if got := extractBody(payload); got != "(HTML content)\n<p>hi</p>" {
		t.Errorf("extractBody: got %q", got)
	}
}

func TestConvertThreadOrdersMessages(t *testing.T) {
	later := time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)
	thread := &gm.Thread{
		Id: "t1",
		Messages: []*gm.Message{
			{
				Id:           "m2",
				InternalDate: later.UnixMilli(),
				LabelIds:     []string{"UNREAD", "INBOX"},
				Payload: &gm.MessagePart{
					Headers: []*gm.MessagePartHeader{{Name: "Subject", Value: "Re: Lunch"}},
					Body:    &gm.MessagePartBody{Data: b64("sure")},
				},
			},
			{
				Id:           "m1",
				InternalDate: earlier.UnixMilli(),
				LabelIds:     []string{"INBOX"},
				Payload: &gm.MessagePart{
					Headers: []*gm.MessagePartHeader{
						{Name: "Subject", Value: "Lunch"},
						{Name: "From", Value: "jane@example.com"},
					},
					Body: &gm.MessagePartBody{Data: b64("lunch?")},
				},
			},
		},
	}

	got := convertThread(thread)
	if got.ID != "t1" || got.Permalink != "https://mail.google.com/mail/u/0/#inbox/t1" {
		t.Errorf("unexpected id/permalink: %q %q", got.ID, got.Permalink)
	}
	if !got.Unread {
		t.Error("expected thread to be unread")
	}
	if len(got.Messages) != 2 || got.Messages[0].ID != "m1" {
		t.Fatalf("messages not ordered: %+v", got.Messages)
	}
	if !got.Messages[0].Date.Equal(earlier) {
		t.Errorf("Date: got %v, want %v", got.Messages[0].Date, earlier)
	}
	if got.Subject != "Lunch" {
		t.Errorf("Subject: got %q", got.Subject)
	}
	if got.Messages[0].From != "jane@example.com" || got.Messages[0].Body != "lunch?" {
		t.Errorf("unexpected first message: %+v", got.Messages[0])
	}
	if len(got.LabelIDs) != 2 {
		t.Errorf("LabelIDs: got %v", got.LabelIDs)
	}
}

func TestBuildRawMessage(t *testing.T) {
	raw := buildRawMessage("me@example.com", "Run failed", "details")
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "To: me@example.com\r\n") || !strings.HasSuffix(s, "\r\n\r\ndetails") {
		t.Errorf("unexpected message: %q", s)
	}
}

// newTestMailbox serves a minimal Gmail API over httptest.
func newTestMailbox(t *testing.T, handler http.HandlerFunc) *Mailbox {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gm.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(svc)
}

func TestLabelID(t *testing.T) {
	mb := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/labels") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"labels": []map[string]string{
				{"id": "Label_1", "name": "unprocessed"},
				{"id": "Label_2", "name": "processed"},
			},
		})
	})

	id, err := mb.LabelID(context.Background(), "processed")
	if err != nil {
		t.Fatalf("LabelID: %v", err)
	}
	if id != "Label_2" {
		t.Errorf("LabelID: got %q", id)
	}

	id, err = mb.LabelID(context.Background(), "missing")
	if err != nil || id != "" {
		t.Errorf("LabelID(missing): got %q, %v", id, err)
	}
}

func TestModifyLabels(t *testing.T) {
	var got gm.ModifyThreadRequest
	var path string
	mb := newTestMailbox(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.NewEncoder(w).Encode(map[string]string{"id": "t1"})
	})

	if err := mb.MarkRead(context.Background(), "t1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !strings.HasSuffix(path, "/users/me/threads/t1/modify") {
		t.Errorf("path: got %q", path)
	}
	if len(got.RemoveLabelIds) != 1 || got.RemoveLabelIds[0] != "UNREAD" {
		t.Errorf("RemoveLabelIds: got %v", got.RemoveLabelIds)
	}
}

package outlook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(endpoint string) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		endpoint:   endpoint,
	}
}

// TestSearchUserEmails_Success は検索パラメータの組み立てとレスポンスのパースを確認する。
func TestSearchUserEmails_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/me/messages")
		}
		q := r.URL.Query()
		if q.Get("$search") != `"meeting"` {
			t.Errorf("$search = %q, want %q", q.Get("$search"), `"meeting"`)
		}
		if q.Get("$top") != "25" {
			t.Errorf("$top = %q, want %q", q.Get("$top"), "25")
		}
		if got := r.Header.Get("Prefer"); got != `outlook.timezone="UTC"` {
			t.Errorf("Prefer header = %q, want %q", got, `outlook.timezone="UTC"`)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"value": [
				{
					"id": "msg-1",
					"subject": "Weekly sync",
					"receivedDateTime": "2026-03-01T09:00:00Z",
					"from": {"emailAddress": {"address": "taro@example.com"}}
				}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	emails, err := client.SearchUserEmails(context.Background(), "meeting")
	if err != nil {
		t.Fatalf("SearchUserEmails() error = %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("len(emails) = %d, want 1", len(emails))
	}
	if emails[0].ID != "msg-1" {
		t.Errorf("ID = %q, want %q", emails[0].ID, "msg-1")
	}
	if emails[0].Subject != "Weekly sync" {
		t.Errorf("Subject = %q, want %q", emails[0].Subject, "Weekly sync")
	}
	if emails[0].From != "taro@example.com" {
		t.Errorf("From = %q, want %q", emails[0].From, "taro@example.com")
	}
	if emails[0].ReceivedAt != "2026-03-01T09:00:00Z" {
		t.Errorf("ReceivedAt = %q, want %q", emails[0].ReceivedAt, "2026-03-01T09:00:00Z")
	}
}

// TestSearchUserEmails_NonOKStatus はGraph APIのエラーステータスでエラーを返すことを確認する。
func TestSearchUserEmails_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.SearchUserEmails(context.Background(), "meeting"); err == nil {
		t.Error("SearchUserEmails() error = nil, want error")
	}
}

// TestGetEmailContent_Success はメッセージIDのエスケープと本文のパースを確認する。
func TestGetEmailContent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages/msg-1" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/me/messages/msg-1")
		}
		if got := r.URL.Query().Get("$select"); got != "body" {
			t.Errorf("$select = %q, want %q", got, "body")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"body": {"content": "<p>agenda</p>"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	body, err := client.GetEmailContent(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GetEmailContent() error = %v", err)
	}
	if body != "<p>agenda</p>" {
		t.Errorf("body = %q, want %q", body, "<p>agenda</p>")
	}
}

// TestGetEmailContent_NonOKStatus は存在しないメッセージでエラーを返すことを確認する。
func TestGetEmailContent_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.GetEmailContent(context.Background(), "missing"); err == nil {
		t.Error("GetEmailContent() error = nil, want error")
	}
}

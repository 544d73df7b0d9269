package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/outlook"
)

// mockGraphClient はGraphMailClientのモック実装。
type mockGraphClient struct {
	searchFn  func(ctx context.Context, query string) ([]outlook.EmailSummary, error)
	contentFn func(ctx context.Context, messageID string) (string, error)
}

func (m *mockGraphClient) SearchUserEmails(ctx context.Context, query string) ([]outlook.EmailSummary, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

func (m *mockGraphClient) GetEmailContent(ctx context.Context, messageID string) (string, error) {
	if m.contentFn != nil {
		return m.contentFn(ctx, messageID)
	}
	return "", nil
}

// mockSanitizer はテスト用のNotesSanitizerServiceモック。
type mockSanitizer struct{}

func (m *mockSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return "[sanitized]" + raw
}

func newTestService(client GraphMailClient, factoryErr error) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(ctx context.Context, userID string) (GraphMailClient, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return client, nil
	}
	return NewService(factory, &mockSanitizer{}, logger)
}

// TestService_Search_Success は検索クエリがクライアントに引き渡されることを確認する。
func TestService_Search_Success(t *testing.T) {
	var gotQuery string
	client := &mockGraphClient{
		searchFn: func(ctx context.Context, query string) ([]outlook.EmailSummary, error) {
			gotQuery = query
			return []outlook.EmailSummary{
				{ID: "msg-1", Subject: "定例のご案内"},
				{ID: "msg-2", Subject: "打ち合わせ日程"},
			}, nil
		},
	}
	svc := newTestService(client, nil)

	emails, err := svc.Search(context.Background(), "user-1", "打ち合わせ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotQuery != "打ち合わせ" {
		t.Errorf("query = %q, want %q", gotQuery, "打ち合わせ")
	}
	if len(emails) != 2 {
		t.Errorf("len(emails) = %d, want 2", len(emails))
	}
}

// TestService_Search_NotConnected はOutlook未連携の型付きエラーが素通しされることを確認する。
func TestService_Search_NotConnected(t *testing.T) {
	svc := newTestService(nil, model.NewOutlookNotConnectedError("user-1"))

	_, err := svc.Search(context.Background(), "user-1", "meeting")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeOutlookNotConnected {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeOutlookNotConnected)
	}
}

// TestService_Search_ProviderError はGraph API障害がPROVIDER_ERRORに変換されることを確認する。
func TestService_Search_ProviderError(t *testing.T) {
	client := &mockGraphClient{
		searchFn: func(ctx context.Context, query string) ([]outlook.EmailSummary, error) {
			return nil, errors.New("status 503")
		},
	}
	svc := newTestService(client, nil)

	_, err := svc.Search(context.Background(), "user-1", "meeting")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeProviderError {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderError)
	}
}

// TestService_Content_SanitizesBody は取得した本文がサニタイズされることを確認する。
func TestService_Content_SanitizesBody(t *testing.T) {
	var gotMessageID string
	client := &mockGraphClient{
		contentFn: func(ctx context.Context, messageID string) (string, error) {
			gotMessageID = messageID
			return "<p>会議の詳細</p>", nil
		},
	}
	svc := newTestService(client, nil)

	body, err := svc.Content(context.Background(), "user-1", "msg-1")
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if gotMessageID != "msg-1" {
		t.Errorf("messageID = %q, want %q", gotMessageID, "msg-1")
	}
	if body != "[sanitized]<p>会議の詳細</p>" {
		t.Errorf("body = %q, want sanitized content", body)
	}
}

// TestService_Content_ProviderError は本文取得の失敗がPROVIDER_ERRORに変換されることを確認する。
func TestService_Content_ProviderError(t *testing.T) {
	client := &mockGraphClient{
		contentFn: func(ctx context.Context, messageID string) (string, error) {
			return "", errors.New("status 404")
		},
	}
	svc := newTestService(client, nil)

	_, err := svc.Content(context.Background(), "user-1", "msg-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeProviderError {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderError)
	}
}

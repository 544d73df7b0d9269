// Package outlook はMicrosoft Graph APIの薄いラッパーを提供する。
// 会議依頼メールの検索と本文取得のみを扱い、カレンダー操作は行わない。
package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/hitoshi/calman/internal/model"
)

// defaultGraphEndpoint はMicrosoft Graph APIのベースURL。
const defaultGraphEndpoint = "https://graph.microsoft.com/v1.0"

// EmailSummary はメール検索結果の1件を表す。
type EmailSummary struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	From       string `json:"-"`
	ReceivedAt string `json:"receivedDateTime"`
}

// Client はMicrosoft Graph APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// AuthenticatedClient は保存済みの連携トークンから認証済みクライアントを生成する。
func AuthenticatedClient(ctx context.Context, logger *slog.Logger, tenantID, clientID, clientSecret string, integ *model.Integration) *Client {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenantID),
		Scopes:       []string{"Mail.Read", "offline_access"},
	}

	token := &oauth2.Token{
		AccessToken:  integ.AccessToken,
		RefreshToken: integ.RefreshToken,
	}
	if integ.TokenExpiresAt != nil {
		token.Expiry = *integ.TokenExpiresAt
	}

	return &Client{
		httpClient: config.Client(ctx, token),
		logger:     logger,
		endpoint:   defaultGraphEndpoint,
	}
}

// SearchUserEmails はユーザーのメールボックスをキーワード検索する。
func (c *Client) SearchUserEmails(ctx context.Context, query string) ([]EmailSummary, error) {
	q := url.Values{}
	q.Set("$search", fmt.Sprintf("%q", query))
	q.Set("$top", "25")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/me/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Graph APIのメール検索に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Graph APIがステータス %d を返しました", resp.StatusCode)
	}

	var result struct {
		Value []struct {
			ID               string `json:"id"`
			Subject          string `json:"subject"`
			ReceivedDateTime string `json:"receivedDateTime"`
			From             struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"from"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("検索レスポンスのパースに失敗しました: %w", err)
	}

	emails := make([]EmailSummary, len(result.Value))
	for i, m := range result.Value {
		emails[i] = EmailSummary{
			ID:         m.ID,
			Subject:    m.Subject,
			From:       m.From.EmailAddress.Address,
			ReceivedAt: m.ReceivedDateTime,
		}
	}
	return emails, nil
}

// GetEmailContent は指定メッセージの本文を取得する。
func (c *Client) GetEmailContent(ctx context.Context, messageID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/me/messages/"+url.PathEscape(messageID)+"?$select=body", nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Graph APIのメール取得に失敗しました",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Graph APIがステータス %d を返しました", resp.StatusCode)
	}

	var result struct {
		Body struct {
			Content string `json:"content"`
		} `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("メール本文のパースに失敗しました: %w", err)
	}
	return result.Body.Content, nil
}

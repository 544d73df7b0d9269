// Package zoom はZoomミーティングAPIのクライアントを提供する。
// Server-to-Server OAuthでアクセストークンを取得し、
// ミーティングの作成・更新・削除を行う。
package zoom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// defaultAPIEndpoint はZoom REST APIのベースURL。
	defaultAPIEndpoint = "https://api.zoom.us/v2"
	// defaultTokenEndpoint はServer-to-Server OAuthのトークンエンドポイント。
	defaultTokenEndpoint = "https://zoom.us/oauth/token"
	// meetingTypeScheduled は開始時刻の決まったミーティング種別。
	meetingTypeScheduled = 2
	// tokenExpiryMargin はトークン期限の安全マージン。
	tokenExpiryMargin = 1 * time.Minute
)

// Meeting はZoomミーティングの作成結果を表す。
type Meeting struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
	Password string `json:"password"`
}

// MeetingInput はミーティングの作成・更新パラメータを表す。
type MeetingInput struct {
	Topic           string
	Agenda          string
	StartAt         time.Time
	DurationMinutes int
	Timezone        string
}

// Client はZoom APIのクライアント。
// アクセストークンをキャッシュし、期限切れ時に再取得する。
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	apiEndpoint   string // テスト用にエンドポイントを差し替え可能
	tokenEndpoint string

	accountID    string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, accountID, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:    httpClient,
		logger:        logger,
		apiEndpoint:   defaultAPIEndpoint,
		tokenEndpoint: defaultTokenEndpoint,
		accountID:     accountID,
		clientID:      clientID,
		clientSecret:  clientSecret,
	}
}

// CreateMeeting はミーティングを作成する。
func (c *Client) CreateMeeting(ctx context.Context, input MeetingInput) (*Meeting, error) {
	body, err := c.do(ctx, http.MethodPost, "/users/me/meetings", meetingPayload(input), http.StatusCreated)
	if err != nil {
		return nil, err
	}

	meeting := &Meeting{}
	if err := json.Unmarshal(body, meeting); err != nil {
		return nil, fmt.Errorf("ミーティング作成レスポンスのパースに失敗しました: %w", err)
	}

	c.logger.Info("Zoomミーティングを作成しました",
		slog.Int64("meeting_id", meeting.ID),
	)
	return meeting, nil
}

// UpdateMeeting は既存ミーティングの開始時刻や議題を更新する。
func (c *Client) UpdateMeeting(ctx context.Context, meetingID int64, input MeetingInput) error {
	path := fmt.Sprintf("/meetings/%d", meetingID)
	_, err := c.do(ctx, http.MethodPatch, path, meetingPayload(input), http.StatusNoContent)
	return err
}

// DeleteMeeting はミーティングを削除する。既に存在しない場合は成功扱いとする。
func (c *Client) DeleteMeeting(ctx context.Context, meetingID int64) error {
	path := fmt.Sprintf("/meetings/%d", meetingID)
	_, err := c.do(ctx, http.MethodDelete, path, nil, http.StatusNoContent)

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		c.logger.Warn("削除対象のZoomミーティングが存在しませんでした",
			slog.Int64("meeting_id", meetingID),
		)
		return nil
	}
	return err
}

// StatusError はZoom APIの非正常ステータスを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースの実装。
func (e *StatusError) Error() string {
	return fmt.Sprintf("Zoom APIがステータス %d を返しました: %s", e.StatusCode, e.Body)
}

// meetingPayload は作成・更新リクエストのJSONペイロードを構築する。
func meetingPayload(input MeetingInput) map[string]any {
	return map[string]any{
		"topic":      input.Topic,
		"agenda":     input.Agenda,
		"type":       meetingTypeScheduled,
		"start_time": input.StartAt.UTC().Format("2006-01-02T15:04:05Z"),
		"duration":   input.DurationMinutes,
		"timezone":   input.Timezone,
	}
}

// do は認証付きのAPIリクエストを実行し、期待ステータスを検証する。
func (c *Client) do(ctx context.Context, method, path string, payload map[string]any, wantStatus int) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiEndpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Zoom APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != wantStatus {
		c.logger.Error("Zoom APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// token はキャッシュ済みのアクセストークンを返す。
// 期限切れまたは未取得の場合はServer-to-Server OAuthで取得する。
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.accessToken, nil
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", c.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Zoomトークンの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("トークンレスポンスの読み取りに失敗しました: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

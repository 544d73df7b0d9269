package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/outlook"
)

// MailServiceInterface はメールハンドラーが必要とするサービスインターフェース。
type MailServiceInterface interface {
	// Search はユーザーのメールボックスをキーワード検索する。
	Search(ctx context.Context, userID, query string) ([]outlook.EmailSummary, error)
	// Content は指定メッセージのサニタイズ済み本文を返す。
	Content(ctx context.Context, userID, messageID string) (string, error)
}

// MailHandler は会議依頼メール検索のHTTPハンドラー。
type MailHandler struct {
	service MailServiceInterface
}

// NewMailHandler はMailHandlerを生成する。
func NewMailHandler(service MailServiceInterface) *MailHandler {
	return &MailHandler{service: service}
}

// emailSummaryResponse はメール検索結果のAPIレスポンス。
type emailSummaryResponse struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	ReceivedAt string `json:"received_at"`
}

// SearchEmails は会議依頼メールを検索する。
// GET /api/emails/search?q=
func (h *MailHandler) SearchEmails(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "検索キーワードが指定されていません。",
			Category: "validation",
			Action:   "クエリパラメータ q を指定してください。",
		})
		return
	}

	emails, err := h.service.Search(r.Context(), userID, query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]emailSummaryResponse, 0, len(emails))
	for _, e := range emails {
		resp = append(resp, emailSummaryResponse{
			ID:         e.ID,
			Subject:    e.Subject,
			From:       e.From,
			ReceivedAt: e.ReceivedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetEmailContent はメール本文を取得する。
// GET /api/emails/{id}
func (h *MailHandler) GetEmailContent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	messageID := chi.URLParam(r, "id")

	body, err := h.service.Content(r.Context(), userID, messageID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"body": body})
}

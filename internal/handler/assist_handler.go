package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calman/internal/assist"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// slotDateLayout は候補時間帯の表示日付のリクエスト形式。
const slotDateLayout = "2006-01-02"

// AssistServiceInterface は日程調整ハンドラーが必要とするサービスインターフェース。
type AssistServiceInterface interface {
	// Get は日程調整セッションを取得する。
	Get(ctx context.Context, assistID string) (*model.MeetingAssist, error)
	// ListAttendees はセッションの参加者一覧を返す。
	ListAttendees(ctx context.Context, assistID string) ([]*model.MeetingAssistAttendee, error)
	// GenerateSlots は指定日の候補時間帯をビューアのタイムゾーンで計算する。
	GenerateSlots(ctx context.Context, assistID string, date time.Time, viewerTZ string) ([]*model.AvailableSlot, error)
	// SubmitPreferredTimes は希望時間帯の追加・削除を提出する。
	SubmitPreferredTimes(ctx context.Context, assistID, attendeeID string, submission assist.Submission) error
	// Start は最終スケジューリングを冪等に起動する。
	Start(ctx context.Context, assistID string) error
}

// AssistHandler は日程調整のHTTPハンドラー。
type AssistHandler struct {
	service AssistServiceInterface
}

// NewAssistHandler はAssistHandlerを生成する。
func NewAssistHandler(service AssistServiceInterface) *AssistHandler {
	return &AssistHandler{service: service}
}

// assistResponse は日程調整セッションのAPIレスポンス。
type assistResponse struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`

	WindowStartAt   time.Time `json:"window_start_at"`
	WindowEndAt     time.Time `json:"window_end_at"`
	Timezone        string    `json:"timezone"`
	DurationMinutes int       `json:"duration_minutes"`

	MinThresholdCount int `json:"min_threshold_count"`
	AttendeeCount     int `json:"attendee_count"`

	EnableAttendeePreferences bool `json:"enable_attendee_preferences"`
	GuaranteeAvailability     bool `json:"guarantee_availability"`

	Cancelled       bool       `json:"cancelled"`
	CalendarCreated bool       `json:"calendar_created"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
}

func toAssistResponse(m *model.MeetingAssist) assistResponse {
	return assistResponse{
		ID:                        m.ID,
		EventID:                   m.EventID,
		WindowStartAt:             m.WindowStartAt,
		WindowEndAt:               m.WindowEndAt,
		Timezone:                  m.Timezone,
		DurationMinutes:           m.DurationMinutes,
		MinThresholdCount:         m.MinThresholdCount,
		AttendeeCount:             m.AttendeeCount,
		EnableAttendeePreferences: m.EnableAttendeePreferences,
		GuaranteeAvailability:     m.GuaranteeAvailability,
		Cancelled:                 m.Cancelled,
		CalendarCreated:           m.CalendarCreated,
		StartedAt:                 m.StartedAt,
	}
}

// assistAttendeeResponse は日程調整参加者のAPIレスポンス。
type assistAttendeeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
	External bool   `json:"external"`
}

// generateSlotsRequest は候補時間帯計算リクエストのボディ。
type generateSlotsRequest struct {
	Date     string `json:"date"`     // "2006-01-02" 形式
	Timezone string `json:"timezone"` // ビューアのIANAタイムゾーン
}

// slotResponse は候補時間帯のAPIレスポンス。
type slotResponse struct {
	ID      string    `json:"id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// preferredTimeRequest は希望時間帯1件のリクエスト表現。
type preferredTimeRequest struct {
	ID        string    `json:"id,omitempty"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"` // "15:04" 形式
	EndTime   string    `json:"end_time"`   // "15:04" 形式
	OnDate    time.Time `json:"on_date"`
	FromSlot  bool      `json:"from_slot"`
}

// submitPreferredTimesRequest は希望時間帯提出リクエストのボディ。
type submitPreferredTimesRequest struct {
	ViewerTimezone string                 `json:"viewer_timezone"`
	Added          []preferredTimeRequest `json:"added"`
	RemovedIDs     []string               `json:"removed_ids"`
}

// GetAssist は日程調整セッションの詳細を取得する。
// GET /api/meeting-assists/:id
func (h *AssistHandler) GetAssist(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	ma, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAssistResponse(ma))
}

// ListAttendees はセッションの参加者一覧を取得する。
// GET /api/meeting-assists/:id/attendees
func (h *AssistHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	attendees, err := h.service.ListAttendees(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]assistAttendeeResponse, 0, len(attendees))
	for _, a := range attendees {
		resp = append(resp, assistAttendeeResponse{
			ID:       a.ID,
			Name:     a.Name,
			Email:    a.Email,
			Timezone: a.Timezone,
			External: a.External,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GenerateSlots は指定日の候補時間帯を計算する。
// POST /api/meeting-assists/:id/slots
func (h *AssistHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	var req generateSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	date, err := time.Parse(slotDateLayout, req.Date)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "日付の形式が不正です。",
			Category: "validation",
			Action:   "YYYY-MM-DD形式で指定してください。",
		})
		return
	}

	slots, err := h.service.GenerateSlots(r.Context(), chi.URLParam(r, "id"), date, req.Timezone)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, slotResponse{ID: s.ID, StartAt: s.StartAt, EndAt: s.EndAt})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SubmitPreferredTimes は参加者の希望時間帯の提出を処理する。
// POST /api/meeting-assists/:id/attendees/:attendeeId/preferred-times
func (h *AssistHandler) SubmitPreferredTimes(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	var req submitPreferredTimesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	submission := assist.Submission{
		ViewerTimezone: req.ViewerTimezone,
		RemovedIDs:     req.RemovedIDs,
	}
	for _, p := range req.Added {
		submission.Added = append(submission.Added, assist.PreferredTimeInput{
			ID:        p.ID,
			DayOfWeek: p.DayOfWeek,
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			OnDate:    p.OnDate,
			FromSlot:  p.FromSlot,
		})
	}

	assistID := chi.URLParam(r, "id")
	attendeeID := chi.URLParam(r, "attendeeId")
	if err := h.service.SubmitPreferredTimes(r.Context(), assistID, attendeeID, submission); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartAssist は最終スケジューリングを手動で起動する。
// POST /api/meeting-assists/:id/start
func (h *AssistHandler) StartAssist(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Start(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calman/internal/event"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	// Get は複合キーでイベントを取得する。
	Get(ctx context.Context, key string) (*model.Event, error)
	// Create はイベントを作成する。
	Create(ctx context.Context, input event.CreateInput) (*model.Event, error)
	// Update はイベントを部分更新する。
	Update(ctx context.Context, userID, key string, input event.UpdateInput) (*model.Event, error)
	// Delete はイベントと関連レコードを削除する。
	Delete(ctx context.Context, userID, key string) error
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// recurrenceRequest は繰り返し設定のリクエスト表現。
type recurrenceRequest struct {
	Frequency string     `json:"frequency"`
	Interval  int        `json:"interval"`
	EndAt     *time.Time `json:"end_at"`
	ByWeekday []string   `json:"by_weekday"`
}

// attendeeRequest は参加者のリクエスト表現。
type attendeeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// reminderRequest はリマインダーのリクエスト表現。
type reminderRequest struct {
	Minutes    int    `json:"minutes"`
	Method     string `json:"method"`
	UseDefault bool   `json:"use_default"`
}

// conferenceRequest は会議払い出し要求のリクエスト表現。
type conferenceRequest struct {
	Zoom   bool `json:"zoom"`
	Google bool `json:"google"`
}

// createEventRequest はイベント作成リクエストのボディ。
type createEventRequest struct {
	CalendarID string `json:"calendar_id"`

	Title    string `json:"title"`
	Notes    string `json:"notes"`
	Location string `json:"location"`

	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Timezone string    `json:"timezone"`
	AllDay   bool      `json:"all_day"`

	Recurrence *recurrenceRequest `json:"recurrence"`

	Priority        int            `json:"priority"`
	PreferenceFlags map[string]any `json:"preference_flags"`

	Attendees   []attendeeRequest `json:"attendees"`
	Reminders   []reminderRequest `json:"reminders"`
	CategoryIDs []string          `json:"category_ids"`

	Conference *conferenceRequest `json:"conference"`
}

// updateEventRequest はイベント部分更新リクエストのボディ。
// nilフィールドは変更されない。
type updateEventRequest struct {
	Title    *string `json:"title"`
	Notes    *string `json:"notes"`
	Location *string `json:"location"`

	StartAt  *time.Time `json:"start_at"`
	EndAt    *time.Time `json:"end_at"`
	Timezone *string    `json:"timezone"`
	AllDay   *bool      `json:"all_day"`

	Recurrence *recurrenceRequest `json:"recurrence"`

	Priority        *int            `json:"priority"`
	PreferenceFlags *map[string]any `json:"preference_flags"`

	// Remindersはnilなら維持、非nilなら全置換。
	Reminders *[]reminderRequest `json:"reminders"`
}

// eventResponse はイベント情報のAPIレスポンス。
type eventResponse struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id"`

	Title    string `json:"title"`
	Notes    string `json:"notes"`
	Location string `json:"location"`

	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Timezone string    `json:"timezone"`
	AllDay   bool      `json:"all_day"`

	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	RecurrenceEnd  *time.Time `json:"recurrence_end_at,omitempty"`

	ConferenceID string `json:"conference_id,omitempty"`

	Priority        int            `json:"priority"`
	PreferenceFlags map[string]any `json:"preference_flags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:              e.ID,
		CalendarID:      e.CalendarID,
		Title:           e.Title,
		Notes:           e.Notes,
		Location:        e.Location,
		StartAt:         e.StartAt,
		EndAt:           e.EndAt,
		Timezone:        e.Timezone,
		AllDay:          e.AllDay,
		RecurrenceRule:  e.RecurrenceRule,
		RecurrenceEnd:   e.RecurrenceEndAt,
		ConferenceID:    e.ConferenceID,
		Priority:        e.Priority,
		PreferenceFlags: e.PreferenceFlags,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// eventKeyFromURL はパスパラメータから複合イベントキーを取り出す。
// キーは "#" を含むためクライアント側でパーセントエンコードされる。
func eventKeyFromURL(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	key, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return key
}

// CreateEvent はイベント作成を処理する。
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if req.Title == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "タイトルが空です。",
			Category: "validation",
			Action:   "タイトルを指定してください。",
		})
		return
	}

	input := event.CreateInput{
		UserID:          userID,
		CalendarID:      req.CalendarID,
		Title:           req.Title,
		Notes:           req.Notes,
		Location:        req.Location,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Timezone:        req.Timezone,
		AllDay:          req.AllDay,
		Priority:        req.Priority,
		PreferenceFlags: req.PreferenceFlags,
		CategoryIDs:     req.CategoryIDs,
	}
	if req.Recurrence != nil {
		input.RecurrenceFrequency = model.RecurrenceFrequency(req.Recurrence.Frequency)
		input.RecurrenceInterval = req.Recurrence.Interval
		input.RecurrenceEndAt = req.Recurrence.EndAt
		input.ByWeekday = req.Recurrence.ByWeekday
	}
	for _, a := range req.Attendees {
		input.Attendees = append(input.Attendees, event.AttendeeInput{Email: a.Email, Name: a.Name})
	}
	for _, rem := range req.Reminders {
		input.Reminders = append(input.Reminders, event.ReminderInput{
			Minutes:    rem.Minutes,
			Method:     rem.Method,
			UseDefault: rem.UseDefault,
		})
	}
	if req.Conference != nil {
		input.RequestZoom = req.Conference.Zoom
		input.RequestGoogle = req.Conference.Google
	}

	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEventResponse(created))
}

// GetEvent はイベント詳細を取得する。
// GET /api/events/:id
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	ev, err := h.service.Get(r.Context(), eventKeyFromURL(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(ev))
}

// UpdateEvent はイベントの部分更新を処理する。
// PATCH /api/events/:id
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	input := event.UpdateInput{
		Patch: model.EventPatch{
			Title:           req.Title,
			Notes:           req.Notes,
			Location:        req.Location,
			StartAt:         req.StartAt,
			EndAt:           req.EndAt,
			Timezone:        req.Timezone,
			AllDay:          req.AllDay,
			Priority:        req.Priority,
			PreferenceFlags: req.PreferenceFlags,
		},
	}
	if req.Recurrence != nil {
		freq := model.RecurrenceFrequency(req.Recurrence.Frequency)
		input.Patch.RecurrenceFrequency = &freq
		input.Patch.RecurrenceInterval = &req.Recurrence.Interval
		input.Patch.RecurrenceEndAt = req.Recurrence.EndAt
		input.Patch.ByWeekday = &req.Recurrence.ByWeekday
	}
	if req.Reminders != nil {
		reminders := make([]event.ReminderInput, 0, len(*req.Reminders))
		for _, rem := range *req.Reminders {
			reminders = append(reminders, event.ReminderInput{
				Minutes:    rem.Minutes,
				Method:     rem.Method,
				UseDefault: rem.UseDefault,
			})
		}
		input.Reminders = &reminders
	}

	updated, err := h.service.Update(r.Context(), userID, eventKeyFromURL(r), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(updated))
}

// DeleteEvent はイベント削除を処理する。
// DELETE /api/events/:id
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), userID, eventKeyFromURL(r)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/calman/internal/calendars"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// CalendarServiceInterface はカレンダーハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	// ListByUser はユーザーのカレンダー一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Calendar, error)
	// Resolve は4段階の優先順位で書き込み先カレンダーを解決する。
	Resolve(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error)
}

// CalendarHandler はカレンダー管理のHTTPハンドラー。
type CalendarHandler struct {
	service CalendarServiceInterface
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service CalendarServiceInterface) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// calendarResponse はカレンダー情報のAPIレスポンス。
type calendarResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Resource      string    `json:"resource"`
	GlobalPrimary bool      `json:"global_primary"`
	AccessRole    string    `json:"access_role"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toCalendarResponse(c *model.Calendar) calendarResponse {
	return calendarResponse{
		ID:            c.ID,
		Title:         c.Title,
		Resource:      string(c.Resource),
		GlobalPrimary: c.GlobalPrimary,
		AccessRole:    c.AccessRole,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// ListCalendars はカレンダー一覧を取得する。
// GET /api/calendars
func (h *CalendarHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	cals, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]calendarResponse, 0, len(cals))
	for _, c := range cals {
		resp = append(resp, toCalendarResponse(c))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ResolveCalendar は書き込み先カレンダーの解決結果を返す。
// GET /api/calendars/resolve?calendar_id=&resource=&global_primary=
func (h *CalendarHandler) ResolveCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	q := r.URL.Query()
	opts := calendars.ResolveOptions{
		CalendarID:        q.Get("calendar_id"),
		WantGlobalPrimary: q.Get("global_primary") == "true",
		Resource:          model.CalendarResource(q.Get("resource")),
	}

	cal, err := h.service.Resolve(r.Context(), userID, opts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCalendarResponse(cal))
}

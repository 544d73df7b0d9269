package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/calman/internal/calendars"
	"github.com/hitoshi/calman/internal/model"
)

// mockCalendarService はCalendarServiceInterfaceのモック実装。
type mockCalendarService struct {
	listByUserFn func(ctx context.Context, userID string) ([]*model.Calendar, error)
	resolveFn    func(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error)
}

func (m *mockCalendarService) ListByUser(ctx context.Context, userID string) ([]*model.Calendar, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCalendarService) Resolve(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, userID, opts)
	}
	return nil, nil
}

// --- GET /api/calendars テスト ---

func TestCalendarHandler_ListCalendars_Success(t *testing.T) {
	svc := &mockCalendarService{
		listByUserFn: func(ctx context.Context, userID string) ([]*model.Calendar, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return []*model.Calendar{
				{ID: "cal-1", Title: "仕事", Resource: model.ResourceGoogle, GlobalPrimary: true},
				{ID: "cal-2", Title: "プライベート", Resource: model.ResourceLocal},
			}, nil
		},
	}

	h := NewCalendarHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListCalendars(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	if result[0]["id"] != "cal-1" {
		t.Errorf("result[0].id = %v, want %q", result[0]["id"], "cal-1")
	}
	if result[0]["global_primary"] != true {
		t.Errorf("result[0].global_primary = %v, want true", result[0]["global_primary"])
	}
}

func TestCalendarHandler_ListCalendars_Empty_ReturnsEmptyArray(t *testing.T) {
	svc := &mockCalendarService{
		listByUserFn: func(ctx context.Context, userID string) ([]*model.Calendar, error) {
			return nil, nil
		},
	}

	h := NewCalendarHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListCalendars(w, req)

	// nullではなく[]を返す
	body := w.Body.String()
	if body != "[]\n" {
		t.Errorf("body = %q, want %q", body, "[]\n")
	}
}

func TestCalendarHandler_ListCalendars_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarService{})

	req := httptest.NewRequest(http.MethodGet, "/api/calendars", nil)
	w := httptest.NewRecorder()

	h.ListCalendars(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// --- GET /api/calendars/resolve テスト ---

func TestCalendarHandler_ResolveCalendar_PassesQueryOptions(t *testing.T) {
	var got calendars.ResolveOptions
	svc := &mockCalendarService{
		resolveFn: func(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error) {
			got = opts
			return &model.Calendar{ID: "cal-1", Title: "仕事"}, nil
		},
	}

	h := NewCalendarHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars/resolve?calendar_id=cal-1&resource=google&global_primary=true", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ResolveCalendar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if got.CalendarID != "cal-1" {
		t.Errorf("CalendarID = %q, want %q", got.CalendarID, "cal-1")
	}
	if got.Resource != model.ResourceGoogle {
		t.Errorf("Resource = %q, want %q", got.Resource, model.ResourceGoogle)
	}
	if !got.WantGlobalPrimary {
		t.Error("WantGlobalPrimary = false, want true")
	}
}

func TestCalendarHandler_ResolveCalendar_NotFound_ReturnsNotFound(t *testing.T) {
	svc := &mockCalendarService{
		resolveFn: func(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error) {
			return nil, model.NewCalendarNotFoundError(userID)
		},
	}

	h := NewCalendarHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars/resolve", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ResolveCalendar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeCalendarNotFound {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeCalendarNotFound)
	}
}

package calendars

import (
	"context"
	"testing"

	"github.com/hitoshi/calman/internal/model"
)

// --- テスト用モック ---

// mockCalendarRepo はテスト用のCalendarRepositoryモック。
type mockCalendarRepo struct {
	byID          map[string]*model.Calendar
	globalPrimary *model.Calendar
	byResource    map[model.CalendarResource]*model.Calendar
	first         *model.Calendar
	calls         []string
}

func newMockCalendarRepo() *mockCalendarRepo {
	return &mockCalendarRepo{
		byID:       make(map[string]*model.Calendar),
		byResource: make(map[model.CalendarResource]*model.Calendar),
	}
}

func (m *mockCalendarRepo) FindByID(_ context.Context, id string) (*model.Calendar, error) {
	m.calls = append(m.calls, "FindByID")
	return m.byID[id], nil
}

func (m *mockCalendarRepo) FindGlobalPrimaryByUser(_ context.Context, userID string) (*model.Calendar, error) {
	m.calls = append(m.calls, "FindGlobalPrimaryByUser")
	return m.globalPrimary, nil
}

func (m *mockCalendarRepo) FindFirstByUserAndResource(_ context.Context, userID string, resource model.CalendarResource) (*model.Calendar, error) {
	m.calls = append(m.calls, "FindFirstByUserAndResource")
	return m.byResource[resource], nil
}

func (m *mockCalendarRepo) FindFirstByUser(_ context.Context, userID string) (*model.Calendar, error) {
	m.calls = append(m.calls, "FindFirstByUser")
	return m.first, nil
}

func (m *mockCalendarRepo) ListByUser(_ context.Context, userID string) ([]*model.Calendar, error) {
	m.calls = append(m.calls, "ListByUser")
	var cals []*model.Calendar
	if m.first != nil {
		cals = append(cals, m.first)
	}
	return cals, nil
}

func (m *mockCalendarRepo) Upsert(_ context.Context, cal *model.Calendar) error {
	return nil
}

// --- 解決優先順位テスト ---

// TestResolve_ExplicitID は明示IDが最優先で解決されることをテストする。
func TestResolve_ExplicitID(t *testing.T) {
	repo := newMockCalendarRepo()
	repo.byID["cal-1"] = &model.Calendar{ID: "cal-1"}
	repo.globalPrimary = &model.Calendar{ID: "cal-primary"}

	svc := NewService(repo)

	cal, err := svc.Resolve(context.Background(), "user-1", ResolveOptions{
		CalendarID:        "cal-1",
		WantGlobalPrimary: true,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cal.ID != "cal-1" {
		t.Errorf("cal.ID = %q, want cal-1", cal.ID)
	}
	// 短絡評価：後続の段階は呼ばれないこと
	if len(repo.calls) != 1 || repo.calls[0] != "FindByID" {
		t.Errorf("calls = %v, want [FindByID]", repo.calls)
	}
}

// TestResolve_GlobalPrimary は明示IDが未指定または不一致のとき
// グローバルプライマリに落ちることをテストする。
func TestResolve_GlobalPrimary(t *testing.T) {
	repo := newMockCalendarRepo()
	repo.globalPrimary = &model.Calendar{ID: "cal-primary", GlobalPrimary: true}

	svc := NewService(repo)

	cal, err := svc.Resolve(context.Background(), "user-1", ResolveOptions{
		CalendarID:        "missing",
		WantGlobalPrimary: true,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cal.ID != "cal-primary" {
		t.Errorf("cal.ID = %q, want cal-primary", cal.ID)
	}
}

// TestResolve_ResourceFilter はリソース指定の段階に落ちることをテストする。
func TestResolve_ResourceFilter(t *testing.T) {
	repo := newMockCalendarRepo()
	repo.byResource[model.ResourceGoogle] = &model.Calendar{ID: "cal-google", Resource: model.ResourceGoogle}
	repo.first = &model.Calendar{ID: "cal-any"}

	svc := NewService(repo)

	cal, err := svc.Resolve(context.Background(), "user-1", ResolveOptions{
		Resource: model.ResourceGoogle,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cal.ID != "cal-google" {
		t.Errorf("cal.ID = %q, want cal-google", cal.ID)
	}
}

// TestResolve_FallThroughToFirst は全段階を通過して任意の1件に
// 落ちることをテストする。
func TestResolve_FallThroughToFirst(t *testing.T) {
	repo := newMockCalendarRepo()
	repo.first = &model.Calendar{ID: "cal-any"}

	svc := NewService(repo)

	cal, err := svc.Resolve(context.Background(), "user-1", ResolveOptions{
		CalendarID:        "missing",
		WantGlobalPrimary: true,
		Resource:          model.ResourceLocal,
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cal.ID != "cal-any" {
		t.Errorf("cal.ID = %q, want cal-any", cal.ID)
	}

	want := []string{"FindByID", "FindGlobalPrimaryByUser", "FindFirstByUserAndResource", "FindFirstByUser"}
	if len(repo.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", repo.calls, want)
	}
	for i := range want {
		if repo.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, repo.calls[i], want[i])
		}
	}
}

// TestResolve_NotFound はどの段階でも見つからない場合に
// 型付きエラーが返ることをテストする。
func TestResolve_NotFound(t *testing.T) {
	repo := newMockCalendarRepo()
	svc := NewService(repo)

	_, err := svc.Resolve(context.Background(), "user-1", ResolveOptions{})
	if err == nil {
		t.Fatal("Resolve returned nil error, want CALENDAR_NOT_FOUND")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("err = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeCalendarNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeCalendarNotFound)
	}
}

package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresCalendarRepoはCalendarRepositoryインターフェースを満たすことを検証
func TestPostgresCalendarRepo_ImplementsInterface(t *testing.T) {
	var _ CalendarRepository = (*PostgresCalendarRepo)(nil)
}

// NewPostgresCalendarRepoが正しく初期化されることを検証
func TestNewPostgresCalendarRepo_Initializes(t *testing.T) {
	repo := NewPostgresCalendarRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Calendarモデルのフィールドが正しく構築されることを検証
func TestPostgresCalendarRepo_CalendarModel_Fields(t *testing.T) {
	now := time.Now()
	cal := &model.Calendar{
		ID:            "cal-1",
		UserID:        "user-1",
		Title:         "仕事",
		Resource:      model.ResourceGoogle,
		GlobalPrimary: true,
		AccessRole:    "owner",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if cal.Resource != model.ResourceGoogle {
		t.Errorf("cal.Resource = %q, want %q", cal.Resource, model.ResourceGoogle)
	}
	if !cal.GlobalPrimary {
		t.Error("cal.GlobalPrimary = false, want true")
	}
	if cal.Deleted {
		t.Error("deleted should be false by default")
	}
}

// Package calendars はカレンダー解決のドメインロジックを提供する。
package calendars

import (
	"context"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
)

// ResolveOptions はカレンダー解決の検索条件。
type ResolveOptions struct {
	// CalendarID が指定されている場合はそのカレンダーを最優先で返す。
	CalendarID string
	// WantGlobalPrimary がtrueの場合はグローバルプライマリを探す。
	WantGlobalPrimary bool
	// Resource が指定されている場合は該当リソースのカレンダーを探す。
	Resource model.CalendarResource
}

// Service はカレンダー解決のサービス層。
// 明示ID → グローバルプライマリ → リソース別 → 任意の1件、の
// 優先順位で短絡的に解決する。
type Service struct {
	calendarRepo repository.CalendarRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(calendarRepo repository.CalendarRepository) *Service {
	return &Service{calendarRepo: calendarRepo}
}

// Resolve は検索条件に従ってイベントの書き込み先カレンダーを決定する。
// 各段階で見つかった時点で即座に返し、以降の段階は評価しない。
// どの段階でも見つからない場合はCALENDAR_NOT_FOUNDの型付きエラーを返す。
func (s *Service) Resolve(ctx context.Context, userID string, opts ResolveOptions) (*model.Calendar, error) {
	// 1. 明示的なカレンダーID
	if opts.CalendarID != "" {
		cal, err := s.calendarRepo.FindByID(ctx, opts.CalendarID)
		if err != nil {
			return nil, fmt.Errorf("カレンダーの検索に失敗しました: %w", err)
		}
		if cal != nil {
			return cal, nil
		}
	}

	// 2. グローバルプライマリ
	if opts.WantGlobalPrimary {
		cal, err := s.calendarRepo.FindGlobalPrimaryByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("グローバルプライマリの検索に失敗しました: %w", err)
		}
		if cal != nil {
			return cal, nil
		}
	}

	// 3. リソース指定
	if opts.Resource != "" {
		cal, err := s.calendarRepo.FindFirstByUserAndResource(ctx, userID, opts.Resource)
		if err != nil {
			return nil, fmt.Errorf("リソース別カレンダーの検索に失敗しました: %w", err)
		}
		if cal != nil {
			return cal, nil
		}
	}

	// 4. ユーザーの任意のカレンダー
	cal, err := s.calendarRepo.FindFirstByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダーの検索に失敗しました: %w", err)
	}
	if cal == nil {
		return nil, model.NewCalendarNotFoundError(userID)
	}
	return cal, nil
}

// ListByUser はユーザーのカレンダー一覧を返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Calendar, error) {
	cals, err := s.calendarRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダー一覧の取得に失敗しました: %w", err)
	}
	return cals, nil
}

// Package assist は日程調整のバックグラウンド起動処理を提供する。
// 回答ウィンドウが終了したセッションを定期的に検出し、
// 最終スケジューリングを起動する。
package assist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
)

// AssistStarterService は最終スケジューリングの起動インターフェース。
type AssistStarterService interface {
	// Start は指定セッションの最終スケジューリングを冪等に起動する。
	Start(ctx context.Context, assistID string) error
}

// Scheduler はウィンドウ終了済みセッションの検出と並列起動を行う。
// ティッカーで起動対象セッションを取得し、semaphoreパターンで
// 最大並列数を制御しながら起動を実行する。
type Scheduler struct {
	assistRepo     repository.MeetingAssistRepository
	starter        AssistStarterService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	assistRepo repository.MeetingAssistRepository,
	starter AssistStarterService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		assistRepo:     assistRepo,
		starter:        starter,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("日程調整スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("起動サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("日程調整スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("起動サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は起動対象セッションを1回取得し、並列で起動を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 起動対象セッションを取得。取得は重複しうるため、二重起動の
	// 防止はMarkStartedの条件付き更新に委ねる
	assists, err := s.assistRepo.ListDueForStart(ctx, time.Now())
	if err != nil {
		return err
	}

	if len(assists) == 0 {
		s.logger.Info("起動対象の日程調整セッションはありません")
		return nil
	}

	s.logger.Info("起動サイクルを開始します",
		slog.Int("assist_count", len(assists)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, assist := range assists {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(a *model.MeetingAssist) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.starter.Start(ctx, a.ID); err != nil {
				s.logger.Error("最終スケジューリングの起動に失敗しました",
					slog.String("assist_id", a.ID),
					slog.String("error", err.Error()),
				)
			}
		}(assist)
	}

	wg.Wait()

	s.logger.Info("起動サイクルが完了しました",
		slog.Int("assist_count", len(assists)),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと保持期間（デフォルト30日）を超過した
// 論理削除済みイベントを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/calman/internal/repository"
)

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessionRepo   repository.SessionRepository
	eventRepo     repository.EventRepository
	logger        *slog.Logger
	RetentionDays int // 論理削除済みイベントの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(sessionRepo repository.SessionRepository, eventRepo repository.EventRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessionRepo:   sessionRepo,
		eventRepo:     eventRepo,
		logger:        logger,
		RetentionDays: 30,
	}
}

// Run は期限切れセッションと保持期限を過ぎた論理削除済みイベントを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := time.Now()

	sessionCount, err := j.sessionRepo.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	cutoff := now.AddDate(0, 0, -j.RetentionDays)
	eventCount, err := j.eventRepo.DeleteSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("論理削除済みイベントの物理削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("論理削除済みイベントの物理削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessionCount),
		slog.Int64("deleted_events", eventCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresReminderRepo はPostgreSQLを使用したリマインダーリポジトリ。
type PostgresReminderRepo struct {
	db *sql.DB
}

// NewPostgresReminderRepo はPostgresReminderRepoを生成する。
func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

// ListByEvent はイベントのリマインダー一覧を返す。
func (r *PostgresReminderRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, user_id, minutes, method, use_default, created_at
		 FROM reminders WHERE event_id = $1 ORDER BY minutes`, eventID)
	if err != nil {
		return nil, fmt.Errorf("リマインダー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reminders []*model.Reminder
	for rows.Next() {
		rem := &model.Reminder{}
		if err := rows.Scan(&rem.ID, &rem.EventID, &rem.UserID, &rem.Minutes, &rem.Method, &rem.UseDefault, &rem.CreatedAt); err != nil {
			return nil, fmt.Errorf("リマインダー行の読み取りに失敗しました: %w", err)
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// Create はリマインダーを作成する。
func (r *PostgresReminderRepo) Create(ctx context.Context, reminder *model.Reminder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminders (id, event_id, user_id, minutes, method, use_default, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reminder.ID, reminder.EventID, reminder.UserID,
		reminder.Minutes, reminder.Method, reminder.UseDefault, reminder.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リマインダーの作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteByEvent はイベントのリマインダーを全て削除する。
func (r *PostgresReminderRepo) DeleteByEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReminderRepository = (*PostgresReminderRepo)(nil)

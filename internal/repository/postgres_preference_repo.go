package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresUserPreferenceRepo はPostgreSQLを使用したスケジューリング設定リポジトリ。
type PostgresUserPreferenceRepo struct {
	db *sql.DB
}

// NewPostgresUserPreferenceRepo はPostgresUserPreferenceRepoを生成する。
func NewPostgresUserPreferenceRepo(db *sql.DB) *PostgresUserPreferenceRepo {
	return &PostgresUserPreferenceRepo{db: db}
}

// FindByUser は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresUserPreferenceRepo) FindByUser(ctx context.Context, userID string) (*model.UserPreference, error) {
	pref := &model.UserPreference{}

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, work_start_time, work_end_time, timezone, updated_at
		 FROM user_preferences WHERE user_id = $1`, userID,
	).Scan(&pref.UserID, &pref.WorkStartTime, &pref.WorkEndTime, &pref.Timezone, &pref.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スケジューリング設定の取得に失敗しました: %w", err)
	}
	return pref, nil
}

// Upsert は設定を冪等にUPSERTする。
func (r *PostgresUserPreferenceRepo) Upsert(ctx context.Context, pref *model.UserPreference) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, work_start_time, work_end_time, timezone, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		     work_start_time = EXCLUDED.work_start_time,
		     work_end_time = EXCLUDED.work_end_time,
		     timezone = EXCLUDED.timezone,
		     updated_at = EXCLUDED.updated_at`,
		pref.UserID, pref.WorkStartTime, pref.WorkEndTime, pref.Timezone, pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("スケジューリング設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserPreferenceRepository = (*PostgresUserPreferenceRepo)(nil)

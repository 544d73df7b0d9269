package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresCalendarRepo はPostgreSQLを使用したカレンダーリポジトリ。
type PostgresCalendarRepo struct {
	db *sql.DB
}

// NewPostgresCalendarRepo はPostgresCalendarRepoを生成する。
func NewPostgresCalendarRepo(db *sql.DB) *PostgresCalendarRepo {
	return &PostgresCalendarRepo{db: db}
}

const calendarColumns = `id, user_id, title, resource, global_primary, access_role, deleted, created_at, updated_at`

// FindByID は指定IDのカレンダーを取得する。見つからない場合はnilを返す。
func (r *PostgresCalendarRepo) FindByID(ctx context.Context, id string) (*model.Calendar, error) {
	return r.findOne(ctx,
		`SELECT `+calendarColumns+` FROM calendars WHERE id = $1 AND NOT deleted`, id)
}

// FindGlobalPrimaryByUser はglobal_primaryフラグの立ったカレンダーを取得する。
func (r *PostgresCalendarRepo) FindGlobalPrimaryByUser(ctx context.Context, userID string) (*model.Calendar, error) {
	return r.findOne(ctx,
		`SELECT `+calendarColumns+` FROM calendars
		 WHERE user_id = $1 AND global_primary AND NOT deleted
		 ORDER BY created_at LIMIT 1`, userID)
}

// FindFirstByUserAndResource は指定リソースのカレンダーを1件取得する。
func (r *PostgresCalendarRepo) FindFirstByUserAndResource(ctx context.Context, userID string, resource model.CalendarResource) (*model.Calendar, error) {
	return r.findOne(ctx,
		`SELECT `+calendarColumns+` FROM calendars
		 WHERE user_id = $1 AND resource = $2 AND NOT deleted
		 ORDER BY created_at LIMIT 1`, userID, string(resource))
}

// FindFirstByUser はユーザーの任意のカレンダーを1件取得する。
func (r *PostgresCalendarRepo) FindFirstByUser(ctx context.Context, userID string) (*model.Calendar, error) {
	return r.findOne(ctx,
		`SELECT `+calendarColumns+` FROM calendars
		 WHERE user_id = $1 AND NOT deleted
		 ORDER BY created_at LIMIT 1`, userID)
}

// ListByUser はユーザーのカレンダー一覧を返す。
func (r *PostgresCalendarRepo) ListByUser(ctx context.Context, userID string) ([]*model.Calendar, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+calendarColumns+` FROM calendars
		 WHERE user_id = $1 AND NOT deleted
		 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var calendars []*model.Calendar
	for rows.Next() {
		cal := &model.Calendar{}
		var resource string
		if err := rows.Scan(
			&cal.ID, &cal.UserID, &cal.Title, &resource,
			&cal.GlobalPrimary, &cal.AccessRole, &cal.Deleted,
			&cal.CreatedAt, &cal.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("カレンダー行の読み取りに失敗しました: %w", err)
		}
		cal.Resource = model.CalendarResource(resource)
		calendars = append(calendars, cal)
	}
	return calendars, rows.Err()
}

// Upsert はカレンダーを冪等にUPSERTする（プロバイダ同期用）。
func (r *PostgresCalendarRepo) Upsert(ctx context.Context, cal *model.Calendar) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calendars (`+calendarColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     global_primary = EXCLUDED.global_primary,
		     access_role = EXCLUDED.access_role,
		     deleted = EXCLUDED.deleted,
		     updated_at = EXCLUDED.updated_at`,
		cal.ID, cal.UserID, cal.Title, string(cal.Resource),
		cal.GlobalPrimary, cal.AccessRole, cal.Deleted,
		cal.CreatedAt, cal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("カレンダーの保存に失敗しました: %w", err)
	}
	return nil
}

// findOne は1件取得クエリの共通処理。該当なしの場合はnilを返す。
func (r *PostgresCalendarRepo) findOne(ctx context.Context, query string, args ...any) (*model.Calendar, error) {
	cal := &model.Calendar{}
	var resource string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&cal.ID, &cal.UserID, &cal.Title, &resource,
		&cal.GlobalPrimary, &cal.AccessRole, &cal.Deleted,
		&cal.CreatedAt, &cal.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カレンダーの取得に失敗しました: %w", err)
	}

	cal.Resource = model.CalendarResource(resource)
	return cal, nil
}

// compile-time interface check
var _ CalendarRepository = (*PostgresCalendarRepo)(nil)

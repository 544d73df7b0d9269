package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresPreferredTimeRangeRepo はPostgreSQLを使用した希望時間帯リポジトリ。
type PostgresPreferredTimeRangeRepo struct {
	db *sql.DB
}

// NewPostgresPreferredTimeRangeRepo はPostgresPreferredTimeRangeRepoを生成する。
func NewPostgresPreferredTimeRangeRepo(db *sql.DB) *PostgresPreferredTimeRangeRepo {
	return &PostgresPreferredTimeRangeRepo{db: db}
}

const preferredTimeColumns = `id, meeting_assist_id, attendee_id, day_of_week, start_time, end_time, host_timezone, created_at, updated_at`

// ListByAssist はセッションの希望時間帯一覧を返す。
func (r *PostgresPreferredTimeRangeRepo) ListByAssist(ctx context.Context, assistID string) ([]*model.PreferredTimeRange, error) {
	return r.list(ctx,
		`SELECT `+preferredTimeColumns+` FROM preferred_time_ranges
		 WHERE meeting_assist_id = $1 ORDER BY day_of_week, start_time`, assistID)
}

// ListByAttendee は参加者の希望時間帯一覧を返す。
func (r *PostgresPreferredTimeRangeRepo) ListByAttendee(ctx context.Context, attendeeID string) ([]*model.PreferredTimeRange, error) {
	return r.list(ctx,
		`SELECT `+preferredTimeColumns+` FROM preferred_time_ranges
		 WHERE attendee_id = $1 ORDER BY day_of_week, start_time`, attendeeID)
}

// Upsert は希望時間帯を冪等にUPSERTする。
func (r *PostgresPreferredTimeRangeRepo) Upsert(ctx context.Context, pref *model.PreferredTimeRange) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO preferred_time_ranges (`+preferredTimeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     day_of_week = EXCLUDED.day_of_week,
		     start_time = EXCLUDED.start_time,
		     end_time = EXCLUDED.end_time,
		     host_timezone = EXCLUDED.host_timezone,
		     updated_at = EXCLUDED.updated_at`,
		pref.ID, pref.MeetingAssistID, pref.AttendeeID,
		pref.DayOfWeek, pref.StartTime, pref.EndTime, pref.HostTimezone,
		pref.CreatedAt, pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("希望時間帯の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteByIDs は参加者自身の希望時間帯を指定IDで削除する。
// 他参加者のレコードを誤って消さないようattendee_idを常に条件に含める。
func (r *PostgresPreferredTimeRangeRepo) DeleteByIDs(ctx context.Context, attendeeID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM preferred_time_ranges WHERE attendee_id = $1 AND id = ANY($2)`,
		attendeeID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("希望時間帯の削除に失敗しました: %w", err)
	}
	return nil
}

// CountDistinctAttendees は希望を提出済みの参加者数を返す。
func (r *PostgresPreferredTimeRangeRepo) CountDistinctAttendees(ctx context.Context, assistID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT attendee_id) FROM preferred_time_ranges WHERE meeting_assist_id = $1`,
		assistID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("提出済み参加者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// list は一覧取得クエリの共通処理。
func (r *PostgresPreferredTimeRangeRepo) list(ctx context.Context, query string, args ...any) ([]*model.PreferredTimeRange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("希望時間帯一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var prefs []*model.PreferredTimeRange
	for rows.Next() {
		p := &model.PreferredTimeRange{}
		if err := rows.Scan(
			&p.ID, &p.MeetingAssistID, &p.AttendeeID,
			&p.DayOfWeek, &p.StartTime, &p.EndTime, &p.HostTimezone,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("希望時間帯行の読み取りに失敗しました: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// compile-time interface check
var _ PreferredTimeRangeRepository = (*PostgresPreferredTimeRangeRepo)(nil)

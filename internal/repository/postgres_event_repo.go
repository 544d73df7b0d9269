package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, calendar_id, user_id, provider_event_id, title, notes, location,
	start_at, end_at, timezone, all_day,
	recurrence_rule, recurrence_frequency, recurrence_interval, recurrence_end_at, by_weekday,
	conference_id, priority, preference_flags, deleted, created_at, updated_at`

// FindByID は指定複合キーのイベントを取得する。見つからない場合はnilを返す。
// 論理削除済みのイベントは返さない。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND NOT deleted`, id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return event, nil
}

// Create は新規イベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	flags, err := json.Marshal(flagsOrEmpty(event.PreferenceFlags))
	if err != nil {
		return fmt.Errorf("スケジューリング設定のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		event.ID, event.CalendarID, event.UserID, event.ProviderEventID,
		event.Title, event.Notes, event.Location,
		event.StartAt, event.EndAt, event.Timezone, event.AllDay,
		event.RecurrenceRule, string(event.RecurrenceFrequency), event.RecurrenceInterval,
		event.RecurrenceEndAt, pq.Array(event.ByWeekday),
		event.ConferenceID, event.Priority, flags,
		event.Deleted, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存イベントを上書き更新する。
// フィールド単位のマージはサービス層で行い、ここでは行全体を書き込む。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	flags, err := json.Marshal(flagsOrEmpty(event.PreferenceFlags))
	if err != nil {
		return fmt.Errorf("スケジューリング設定のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE events SET
		    title = $2, notes = $3, location = $4,
		    start_at = $5, end_at = $6, timezone = $7, all_day = $8,
		    recurrence_rule = $9, recurrence_frequency = $10, recurrence_interval = $11,
		    recurrence_end_at = $12, by_weekday = $13,
		    conference_id = $14, priority = $15, preference_flags = $16,
		    updated_at = $17
		 WHERE id = $1`,
		event.ID,
		event.Title, event.Notes, event.Location,
		event.StartAt, event.EndAt, event.Timezone, event.AllDay,
		event.RecurrenceRule, string(event.RecurrenceFrequency), event.RecurrenceInterval,
		event.RecurrenceEndAt, pq.Array(event.ByWeekday),
		event.ConferenceID, event.Priority, flags,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	return nil
}

// SoftDelete はイベントに削除フラグを立てる。
func (r *PostgresEventRepo) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET deleted = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return nil
}

// ListByUserInWindow は指定ユーザーの期間内イベントを返す。
// 繰り返しイベントは初回の開始・終了が期間外でも出現が期間内に
// 落ちうるため、繰り返しが期間開始までに終了していない限り返す。
// 出現単位の絞り込みは呼び出し側の展開処理が行う。
func (r *PostgresEventRepo) ListByUserInWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE user_id = $1 AND NOT deleted
		   AND (
		     (start_at < $3 AND end_at > $2)
		     OR (recurrence_rule <> '' AND start_at < $3
		         AND (recurrence_end_at IS NULL OR recurrence_end_at >= $2))
		   )
		 ORDER BY start_at`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("期間内イベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗しました: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteSoftDeletedBefore は保持期限を過ぎた論理削除済みイベントを物理削除する。
func (r *PostgresEventRepo) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE deleted AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("削除済みイベントのパージに失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent はイベント1行をスキャンする。
func scanEvent(row rowScanner) (*model.Event, error) {
	event := &model.Event{}
	var (
		frequency string
		endAt     sql.NullTime
		weekdays  pq.StringArray
		flags     []byte
	)

	err := row.Scan(
		&event.ID, &event.CalendarID, &event.UserID, &event.ProviderEventID,
		&event.Title, &event.Notes, &event.Location,
		&event.StartAt, &event.EndAt, &event.Timezone, &event.AllDay,
		&event.RecurrenceRule, &frequency, &event.RecurrenceInterval,
		&endAt, &weekdays,
		&event.ConferenceID, &event.Priority, &flags,
		&event.Deleted, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.RecurrenceFrequency = model.RecurrenceFrequency(frequency)
	if endAt.Valid {
		event.RecurrenceEndAt = &endAt.Time
	}
	event.ByWeekday = []string(weekdays)

	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &event.PreferenceFlags); err != nil {
			return nil, fmt.Errorf("スケジューリング設定のデコードに失敗しました: %w", err)
		}
	}

	return event, nil
}

// flagsOrEmpty はnilマップを空マップに正規化する。JSONBカラムにnullを書かないため。
func flagsOrEmpty(flags map[string]any) map[string]any {
	if flags == nil {
		return map[string]any{}
	}
	return flags
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresAttendeeRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresAttendeeRepo struct {
	db *sql.DB
}

// NewPostgresAttendeeRepo はPostgresAttendeeRepoを生成する。
func NewPostgresAttendeeRepo(db *sql.DB) *PostgresAttendeeRepo {
	return &PostgresAttendeeRepo{db: db}
}

// ListByEvent はイベントの参加者一覧を返す。
func (r *PostgresAttendeeRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, email, name, response_status, created_at, updated_at
		 FROM attendees WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var attendees []*model.Attendee
	for rows.Next() {
		a := &model.Attendee{}
		if err := rows.Scan(&a.ID, &a.EventID, &a.Email, &a.Name, &a.ResponseStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

// Upsert は(event_id, email)をキーに参加者を冪等にUPSERTする。
func (r *PostgresAttendeeRepo) Upsert(ctx context.Context, attendee *model.Attendee) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendees (id, event_id, email, name, response_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (event_id, email) DO UPDATE SET
		     name = EXCLUDED.name,
		     response_status = EXCLUDED.response_status,
		     updated_at = EXCLUDED.updated_at`,
		attendee.ID, attendee.EventID, attendee.Email, attendee.Name,
		attendee.ResponseStatus, attendee.CreatedAt, attendee.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("参加者の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteByEvent はイベントの参加者を全て削除する。
func (r *PostgresAttendeeRepo) DeleteByEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendees WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AttendeeRepository = (*PostgresAttendeeRepo)(nil)

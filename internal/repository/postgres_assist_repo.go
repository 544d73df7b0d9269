package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresMeetingAssistRepo はPostgreSQLを使用した日程調整セッションリポジトリ。
type PostgresMeetingAssistRepo struct {
	db *sql.DB
}

// NewPostgresMeetingAssistRepo はPostgresMeetingAssistRepoを生成する。
func NewPostgresMeetingAssistRepo(db *sql.DB) *PostgresMeetingAssistRepo {
	return &PostgresMeetingAssistRepo{db: db}
}

const assistColumns = `id, user_id, event_id, window_start_at, window_end_at, timezone,
	duration_minutes, min_threshold_count, attendee_count,
	enable_attendee_preferences, guarantee_availability,
	cancelled, calendar_created, started_at, created_at, updated_at`

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresMeetingAssistRepo) FindByID(ctx context.Context, id string) (*model.MeetingAssist, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assistColumns+` FROM meeting_assists WHERE id = $1`, id)

	assist, err := scanMeetingAssist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("日程調整の取得に失敗しました: %w", err)
	}
	return assist, nil
}

// Create はセッションを作成する。
func (r *PostgresMeetingAssistRepo) Create(ctx context.Context, assist *model.MeetingAssist) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_assists (`+assistColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		assist.ID, assist.UserID, assist.EventID,
		assist.WindowStartAt, assist.WindowEndAt, assist.Timezone,
		assist.DurationMinutes, assist.MinThresholdCount, assist.AttendeeCount,
		assist.EnableAttendeePreferences, assist.GuaranteeAvailability,
		assist.Cancelled, assist.CalendarCreated, assist.StartedAt,
		assist.CreatedAt, assist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("日程調整の作成に失敗しました: %w", err)
	}
	return nil
}

// MarkStarted は最終スケジューリングの起動時刻を冪等に記録する。
func (r *PostgresMeetingAssistRepo) MarkStarted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meeting_assists SET started_at = $2, updated_at = $2
		 WHERE id = $1 AND started_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("日程調整の起動記録に失敗しました: %w", err)
	}
	return nil
}

// DeleteByEvent はイベントに紐づくセッションを削除する（イベント削除時）。
func (r *PostgresMeetingAssistRepo) DeleteByEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM meeting_assists WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("日程調整の削除に失敗しました: %w", err)
	}
	return nil
}

// ListDueForStart は回答ウィンドウが終了し、未起動かつ未キャンセルの
// セッションを取得する。SKIP LOCKEDは同時実行中のスイープ同士の重複を
// 減らすだけで、行ロックは文の終了で解放される。起動の排他は
// MarkStartedの条件付き更新（started_at IS NULL）が担保する。
func (r *PostgresMeetingAssistRepo) ListDueForStart(ctx context.Context, now time.Time) ([]*model.MeetingAssist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assistColumns+` FROM meeting_assists
		 WHERE window_end_at <= $1 AND started_at IS NULL AND NOT cancelled AND NOT calendar_created
		 ORDER BY window_end_at
		 FOR UPDATE SKIP LOCKED`, now)
	if err != nil {
		return nil, fmt.Errorf("起動対象の日程調整の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var assists []*model.MeetingAssist
	for rows.Next() {
		assist, err := scanMeetingAssist(rows)
		if err != nil {
			return nil, fmt.Errorf("日程調整行の読み取りに失敗しました: %w", err)
		}
		assists = append(assists, assist)
	}
	return assists, rows.Err()
}

// scanMeetingAssist は日程調整1行をスキャンする。
func scanMeetingAssist(row rowScanner) (*model.MeetingAssist, error) {
	assist := &model.MeetingAssist{}
	var startedAt sql.NullTime

	err := row.Scan(
		&assist.ID, &assist.UserID, &assist.EventID,
		&assist.WindowStartAt, &assist.WindowEndAt, &assist.Timezone,
		&assist.DurationMinutes, &assist.MinThresholdCount, &assist.AttendeeCount,
		&assist.EnableAttendeePreferences, &assist.GuaranteeAvailability,
		&assist.Cancelled, &assist.CalendarCreated, &startedAt,
		&assist.CreatedAt, &assist.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		assist.StartedAt = &startedAt.Time
	}
	return assist, nil
}

// PostgresMeetingAssistAttendeeRepo はPostgreSQLを使用した日程調整参加者リポジトリ。
type PostgresMeetingAssistAttendeeRepo struct {
	db *sql.DB
}

// NewPostgresMeetingAssistAttendeeRepo はPostgresMeetingAssistAttendeeRepoを生成する。
func NewPostgresMeetingAssistAttendeeRepo(db *sql.DB) *PostgresMeetingAssistAttendeeRepo {
	return &PostgresMeetingAssistAttendeeRepo{db: db}
}

const assistAttendeeColumns = `id, meeting_assist_id, user_id, name, email, timezone, external, created_at`

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresMeetingAssistAttendeeRepo) FindByID(ctx context.Context, id string) (*model.MeetingAssistAttendee, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assistAttendeeColumns+` FROM meeting_assist_attendees WHERE id = $1`, id)

	attendee, err := scanAssistAttendee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("日程調整参加者の取得に失敗しました: %w", err)
	}
	return attendee, nil
}

// ListByAssist はセッションの参加者一覧を返す。
func (r *PostgresMeetingAssistAttendeeRepo) ListByAssist(ctx context.Context, assistID string) ([]*model.MeetingAssistAttendee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assistAttendeeColumns+` FROM meeting_assist_attendees
		 WHERE meeting_assist_id = $1 ORDER BY created_at`, assistID)
	if err != nil {
		return nil, fmt.Errorf("日程調整参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var attendees []*model.MeetingAssistAttendee
	for rows.Next() {
		attendee, err := scanAssistAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("日程調整参加者行の読み取りに失敗しました: %w", err)
		}
		attendees = append(attendees, attendee)
	}
	return attendees, rows.Err()
}

// Create は参加者を作成する。
func (r *PostgresMeetingAssistAttendeeRepo) Create(ctx context.Context, attendee *model.MeetingAssistAttendee) error {
	var userID sql.NullString
	if attendee.UserID != "" {
		userID = sql.NullString{String: attendee.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_assist_attendees (`+assistAttendeeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		attendee.ID, attendee.MeetingAssistID, userID,
		attendee.Name, attendee.Email, attendee.Timezone,
		attendee.External, attendee.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("日程調整参加者の作成に失敗しました: %w", err)
	}
	return nil
}

// scanAssistAttendee は参加者1行をスキャンする。
func scanAssistAttendee(row rowScanner) (*model.MeetingAssistAttendee, error) {
	attendee := &model.MeetingAssistAttendee{}
	var userID sql.NullString

	err := row.Scan(
		&attendee.ID, &attendee.MeetingAssistID, &userID,
		&attendee.Name, &attendee.Email, &attendee.Timezone,
		&attendee.External, &attendee.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		attendee.UserID = userID.String
	}
	return attendee, nil
}

// PostgresMeetingAssistEventRepo はPostgreSQLを使用した外部参加者予定リポジトリ。
type PostgresMeetingAssistEventRepo struct {
	db *sql.DB
}

// NewPostgresMeetingAssistEventRepo はPostgresMeetingAssistEventRepoを生成する。
func NewPostgresMeetingAssistEventRepo(db *sql.DB) *PostgresMeetingAssistEventRepo {
	return &PostgresMeetingAssistEventRepo{db: db}
}

// ListByAttendeeInWindow は外部参加者の期間内の予定を返す。
func (r *PostgresMeetingAssistEventRepo) ListByAttendeeInWindow(ctx context.Context, attendeeID string, from, to time.Time) ([]*model.MeetingAssistEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, meeting_assist_attendee_id, title, start_at, end_at, timezone, created_at
		 FROM meeting_assist_events
		 WHERE meeting_assist_attendee_id = $1 AND start_at < $3 AND end_at > $2
		 ORDER BY start_at`,
		attendeeID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("外部参加者予定の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.MeetingAssistEvent
	for rows.Next() {
		e := &model.MeetingAssistEvent{}
		if err := rows.Scan(&e.ID, &e.AttendeeID, &e.Title, &e.StartAt, &e.EndAt, &e.Timezone, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("外部参加者予定行の読み取りに失敗しました: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create は予定を作成する。
func (r *PostgresMeetingAssistEventRepo) Create(ctx context.Context, event *model.MeetingAssistEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_assist_events (id, meeting_assist_attendee_id, title, start_at, end_at, timezone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.AttendeeID, event.Title,
		event.StartAt, event.EndAt, event.Timezone, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("外部参加者予定の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ MeetingAssistRepository         = (*PostgresMeetingAssistRepo)(nil)
	_ MeetingAssistAttendeeRepository = (*PostgresMeetingAssistAttendeeRepo)(nil)
	_ MeetingAssistEventRepository    = (*PostgresMeetingAssistEventRepo)(nil)
)

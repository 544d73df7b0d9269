package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresConferenceRepo はPostgreSQLを使用した会議リソースリポジトリ。
type PostgresConferenceRepo struct {
	db *sql.DB
}

// NewPostgresConferenceRepo はPostgresConferenceRepoを生成する。
func NewPostgresConferenceRepo(db *sql.DB) *PostgresConferenceRepo {
	return &PostgresConferenceRepo{db: db}
}

const conferenceColumns = `id, user_id, calendar_id, app, title, notes, join_url, start_url,
	status, request_id, is_host, deleted, created_at, updated_at`

// FindByID は指定IDの会議を取得する。見つからない場合はnilを返す。
func (r *PostgresConferenceRepo) FindByID(ctx context.Context, id string) (*model.Conference, error) {
	return r.findOne(ctx,
		`SELECT `+conferenceColumns+` FROM conferences WHERE id = $1 AND NOT deleted`, id)
}

// FindByRequestID は冪等性トークンで会議を検索する。見つからない場合はnilを返す。
func (r *PostgresConferenceRepo) FindByRequestID(ctx context.Context, requestID string) (*model.Conference, error) {
	return r.findOne(ctx,
		`SELECT `+conferenceColumns+` FROM conferences WHERE request_id = $1 AND NOT deleted`, requestID)
}

// UpsertByRequestID はrequest_idをキーに会議を冪等にUPSERTする。
// 同一request_idでの再実行は重複作成ではなく上書きになる。
func (r *PostgresConferenceRepo) UpsertByRequestID(ctx context.Context, conf *model.Conference) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conferences (`+conferenceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (request_id) DO UPDATE SET
		     id = EXCLUDED.id,
		     title = EXCLUDED.title,
		     notes = EXCLUDED.notes,
		     join_url = EXCLUDED.join_url,
		     start_url = EXCLUDED.start_url,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at`,
		conf.ID, conf.UserID, conf.CalendarID, string(conf.App),
		conf.Title, conf.Notes, conf.JoinURL, conf.StartURL,
		string(conf.Status), conf.RequestID, conf.IsHost, conf.Deleted,
		conf.CreatedAt, conf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("会議リソースの保存に失敗しました: %w", err)
	}
	return nil
}

// Update は会議情報を更新する（リスケジュール時のインプレース更新）。
func (r *PostgresConferenceRepo) Update(ctx context.Context, conf *model.Conference) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conferences SET
		    title = $2, notes = $3, join_url = $4, start_url = $5, status = $6, updated_at = $7
		 WHERE id = $1`,
		conf.ID, conf.Title, conf.Notes, conf.JoinURL, conf.StartURL,
		string(conf.Status), conf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("会議リソースの更新に失敗しました: %w", err)
	}
	return nil
}

// SoftDelete は会議に削除フラグを立てる。
func (r *PostgresConferenceRepo) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conferences SET deleted = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("会議リソースの削除に失敗しました: %w", err)
	}
	return nil
}

// findOne は1件取得クエリの共通処理。該当なしの場合はnilを返す。
func (r *PostgresConferenceRepo) findOne(ctx context.Context, query string, args ...any) (*model.Conference, error) {
	conf := &model.Conference{}
	var app, status string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&conf.ID, &conf.UserID, &conf.CalendarID, &app,
		&conf.Title, &conf.Notes, &conf.JoinURL, &conf.StartURL,
		&status, &conf.RequestID, &conf.IsHost, &conf.Deleted,
		&conf.CreatedAt, &conf.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会議リソースの取得に失敗しました: %w", err)
	}

	conf.App = model.ConferenceApp(app)
	conf.Status = model.ConferenceStatus(status)
	return conf, nil
}

// compile-time interface check
var _ ConferenceRepository = (*PostgresConferenceRepo)(nil)

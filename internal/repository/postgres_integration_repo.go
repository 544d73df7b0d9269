package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresIntegrationRepo はPostgreSQLを使用した外部連携リポジトリ。
type PostgresIntegrationRepo struct {
	db *sql.DB
}

// NewPostgresIntegrationRepo はPostgresIntegrationRepoを生成する。
func NewPostgresIntegrationRepo(db *sql.DB) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{db: db}
}

// FindActiveByUserAndResource はユーザーの有効な連携を取得する。見つからない場合はnilを返す。
func (r *PostgresIntegrationRepo) FindActiveByUserAndResource(ctx context.Context, userID string, resource model.IntegrationResource) (*model.Integration, error) {
	integ := &model.Integration{}
	var res string
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, resource, access_token, refresh_token, token_expires_at, active, created_at, updated_at
		 FROM integrations WHERE user_id = $1 AND resource = $2 AND active`,
		userID, string(resource),
	).Scan(
		&integ.ID, &integ.UserID, &res,
		&integ.AccessToken, &integ.RefreshToken, &expiresAt,
		&integ.Active, &integ.CreatedAt, &integ.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("外部連携の取得に失敗しました: %w", err)
	}

	integ.Resource = model.IntegrationResource(res)
	if expiresAt.Valid {
		integ.TokenExpiresAt = &expiresAt.Time
	}
	return integ, nil
}

// UpdateToken はリフレッシュ後のアクセストークンを保存する。
func (r *PostgresIntegrationRepo) UpdateToken(ctx context.Context, id, accessToken string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE integrations SET access_token = $2, token_expires_at = $3, updated_at = now() WHERE id = $1`,
		id, accessToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("アクセストークンの更新に失敗しました: %w", err)
	}
	return nil
}

// Upsert は(user_id, resource)をキーに連携を冪等にUPSERTする。
// 再ログイン時はトークンを上書きし、連携を再度有効化する。
func (r *PostgresIntegrationRepo) Upsert(ctx context.Context, integ *model.Integration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO integrations (id, user_id, resource, access_token, refresh_token, token_expires_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (user_id, resource) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = CASE WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token ELSE integrations.refresh_token END,
		   token_expires_at = EXCLUDED.token_expires_at,
		   active = EXCLUDED.active,
		   updated_at = now()`,
		integ.ID, integ.UserID, string(integ.Resource),
		integ.AccessToken, integ.RefreshToken, integ.TokenExpiresAt, integ.Active,
	)
	if err != nil {
		return fmt.Errorf("外部連携のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IntegrationRepository = (*PostgresIntegrationRepo)(nil)

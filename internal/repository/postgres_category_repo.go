package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// ListByEvent はイベントに関連付いたカテゴリ一覧を返す。
func (r *PostgresCategoryRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.name, c.color, c.created_at, c.updated_at
		 FROM categories c
		 JOIN category_events ce ON ce.category_id = c.id
		 WHERE ce.event_id = $1
		 ORDER BY c.name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("カテゴリ行の読み取りに失敗しました: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Connect はカテゴリとイベントを関連付ける。既に関連済みの場合は何もしない。
func (r *PostgresCategoryRepo) Connect(ctx context.Context, categoryID, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO category_events (id, category_id, event_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (category_id, event_id) DO NOTHING`,
		uuid.New().String(), categoryID, eventID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("カテゴリの関連付けに失敗しました: %w", err)
	}
	return nil
}

// DisconnectByEvent はイベントのカテゴリ関連を全て削除する。
func (r *PostgresCategoryRepo) DisconnectByEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM category_events WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("カテゴリ関連の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)

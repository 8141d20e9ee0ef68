package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gambit/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
// 購読は (subscriber_id, chess_username) の複合主キーで一意になる。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// ListBySubscriber は購読者の購読一覧を返す。
func (r *PostgresSubscriptionRepo) ListBySubscriber(ctx context.Context, subscriberID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subscriber_id, chess_username, created_at
		 FROM game_subscriptions WHERE subscriber_id = $1`,
		subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	subs := []*model.Subscription{}
	for rows.Next() {
		sub := &model.Subscription{}
		if err := rows.Scan(&sub.SubscriberID, &sub.ChessUsername, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// Add は購読を追加する。既存の組に対しては何もしない（created_atも更新しない）。
func (r *PostgresSubscriptionRepo) Add(ctx context.Context, sub *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_subscriptions (subscriber_id, chess_username, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subscriber_id, chess_username) DO NOTHING`,
		sub.SubscriberID, sub.ChessUsername, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}

// Remove は購読を削除する。存在しない場合もエラーにしない。
func (r *PostgresSubscriptionRepo) Remove(ctx context.Context, subscriberID, chessUsername string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM game_subscriptions WHERE subscriber_id = $1 AND chess_username = $2`,
		subscriberID, chessUsername,
	)
	if err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/gambit/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, google_id, email, COALESCE(chess_username, ''), access_token, refresh_token, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.GoogleID, &u.Email, &u.ChessUsername, &u.AccessToken, &u.RefreshToken, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// FindByGoogleID はGoogleアカウントのsubjectでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google ID: %w", err)
	}
	return u, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, google_id, email, chess_username, access_token, refresh_token, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $7)`,
		user.ID, user.GoogleID, user.Email, user.ChessUsername, user.AccessToken, user.RefreshToken, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateTokens はOAuthトークンを更新する。
// Googleは再同意時以外refresh_tokenを返さないため、空の場合は既存値を維持する。
func (r *PostgresUserRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET access_token = $2,
		     refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		     updated_at = now()
		 WHERE id = $1`,
		id, accessToken, refreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// SetChessUsername はchess.comのユーザー名を設定する。
func (r *PostgresUserRepo) SetChessUsername(ctx context.Context, id, chessUsername string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET chess_username = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		id, chessUsername,
	)
	if err != nil {
		return fmt.Errorf("failed to set chess username: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// ListSyncCandidates は購読を1件以上持ち、リフレッシュトークンを保持するユーザーを返す。
func (r *PostgresUserRepo) ListSyncCandidates(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.refresh_token <> ''
		   AND EXISTS (SELECT 1 FROM game_subscriptions s WHERE s.subscriber_id = u.id)
		 ORDER BY u.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync candidates: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

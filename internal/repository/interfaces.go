// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gambit/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGoogleID はGoogleアカウントのsubjectでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。IDとCreatedAtは呼び出し側で設定する。
	Create(ctx context.Context, user *model.User) error

	// UpdateTokens はOAuthトークンを更新する。refreshTokenが空の場合は既存値を維持する。
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error

	// SetChessUsername はchess.comのユーザー名を設定する。
	SetChessUsername(ctx context.Context, id, chessUsername string) error

	// ListSyncCandidates は購読を1件以上持ち、リフレッシュトークンを保持するユーザーを返す。
	ListSyncCandidates(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// CreateWithSweep は同一ユーザーの期限切れセッション（expires_at < now）を削除したうえで
	// 新しいセッションを挿入する。両操作は単一トランザクションで行われ、削除件数を返す。
	CreateWithSweep(ctx context.Context, session *model.Session, now time.Time) (int64, error)

	// FindByID は指定IDのセッションをそのまま取得する。期限の判定は行わない。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// SubscriptionRepository は購読データの永続化インターフェース。
type SubscriptionRepository interface {
	// ListBySubscriber は購読者の購読一覧を返す。順序は保証しない。
	ListBySubscriber(ctx context.Context, subscriberID string) ([]*model.Subscription, error)

	// Add は購読を追加する。同じ組がすでに存在する場合は何もしない。
	Add(ctx context.Context, sub *model.Subscription) error

	// Remove は購読を削除する。存在しない場合は何もしない。
	Remove(ctx context.Context, subscriberID, chessUsername string) error
}

// UserCalendarRepository は同期先Googleカレンダーの紐付けの永続化インターフェース。
type UserCalendarRepository interface {
	// FindByUserID はユーザーのカレンダー紐付けを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserCalendar, error)

	// Upsert はカレンダーIDを登録または更新する。
	Upsert(ctx context.Context, cal *model.UserCalendar) error

	// UpdateLastSynced は最終同期日時を更新する。
	UpdateLastSynced(ctx context.Context, userID string, syncedAt time.Time) error
}

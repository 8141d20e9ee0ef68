package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/gambit/internal/model"
)

type subscriptionKey struct {
	subscriberID  string
	chessUsername string
}

// MemorySubscriptionRepo はプロセス内メモリに購読を保持するリポジトリ。
// テストおよびDBを持たない単体起動で使用する。
type MemorySubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[subscriptionKey]model.Subscription
}

// NewMemorySubscriptionRepo はMemorySubscriptionRepoを生成する。
func NewMemorySubscriptionRepo() *MemorySubscriptionRepo {
	return &MemorySubscriptionRepo{subs: make(map[subscriptionKey]model.Subscription)}
}

// ListBySubscriber は購読者の購読一覧を返す。順序は保証しない。
func (r *MemorySubscriptionRepo) ListBySubscriber(_ context.Context, subscriberID string) ([]*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*model.Subscription{}
	for k, v := range r.subs {
		if k.subscriberID == subscriberID {
			sub := v
			result = append(result, &sub)
		}
	}
	return result, nil
}

// Add は購読を追加する。既存の組に対しては何もしない。
func (r *MemorySubscriptionRepo) Add(_ context.Context, sub *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subscriptionKey{sub.SubscriberID, sub.ChessUsername}
	if _, ok := r.subs[key]; ok {
		return nil
	}
	r.subs[key] = *sub
	return nil
}

// Remove は購読を削除する。存在しない場合は何もしない。
func (r *MemorySubscriptionRepo) Remove(_ context.Context, subscriberID, chessUsername string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, subscriptionKey{subscriberID, chessUsername})
	return nil
}

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]model.Session)}
}

// CreateWithSweep は同一ユーザーの期限切れセッションを削除してから挿入する。
// ミューテックスで保護されるため、同一ユーザーの同時作成は直列化される。
func (r *MemorySessionRepo) CreateWithSweep(_ context.Context, session *model.Session, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept int64
	for id, s := range r.sessions {
		if s.UserID == session.UserID && s.ExpiresAt.Before(now) {
			delete(r.sessions, id)
			swept++
		}
	}
	r.sessions[session.ID] = *session
	return swept, nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// CountByUserID はユーザーが保持するセッション数を返す。
func (r *MemorySessionRepo) CountByUserID(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

var (
	_ SubscriptionRepository = (*MemorySubscriptionRepo)(nil)
	_ SessionRepository      = (*MemorySessionRepo)(nil)
)

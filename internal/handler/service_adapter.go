package handler

import (
	"context"

	"github.com/hitoshi/gambit/internal/subscription"
	"github.com/hitoshi/gambit/internal/user"
)

// SubscriptionServiceAdapter は subscription.Service を SubscriptionServiceInterface に適合させるアダプタ。
type SubscriptionServiceAdapter struct {
	svc *subscription.Service
}

// NewSubscriptionServiceAdapter はSubscriptionServiceAdapterを生成する。
func NewSubscriptionServiceAdapter(svc *subscription.Service) *SubscriptionServiceAdapter {
	return &SubscriptionServiceAdapter{svc: svc}
}

// List は購読一覧をhandlerレスポンス型で返す。
func (a *SubscriptionServiceAdapter) List(ctx context.Context, userID string) ([]followedResponse, error) {
	followed, err := a.svc.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]followedResponse, len(followed))
	for i, f := range followed {
		results[i] = followedResponse{Name: f.Name, Since: f.Since}
	}
	return results, nil
}

// Subscribe は購読を追加する。
func (a *SubscriptionServiceAdapter) Subscribe(ctx context.Context, userID, username string) error {
	return a.svc.Subscribe(ctx, userID, username)
}

// Unsubscribe は購読を解除する。
func (a *SubscriptionServiceAdapter) Unsubscribe(ctx context.Context, userID, username string) error {
	return a.svc.Unsubscribe(ctx, userID, username)
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// GetProfile はプロフィールをhandlerレスポンス型で返す。
func (a *UserServiceAdapter) GetProfile(ctx context.Context, userID string) (*meResponse, error) {
	p, err := a.svc.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toMeResponse(p), nil
}

// SetChessUsername はchess.comユーザー名を設定し、更新後のプロフィールを返す。
func (a *UserServiceAdapter) SetChessUsername(ctx context.Context, userID, username string) (*meResponse, error) {
	p, err := a.svc.SetChessUsername(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	return toMeResponse(p), nil
}

func toMeResponse(p *user.Profile) *meResponse {
	return &meResponse{ID: p.ID, ChessUsername: p.ChessUsername, Email: p.Email}
}

// --- compile-time interface checks ---

var _ SubscriptionServiceInterface = (*SubscriptionServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)

// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
	"github.com/hitoshi/gambit/internal/repository"
)

// DefaultSessionTTL はセッションの有効期間。
const DefaultSessionTTL = 24 * time.Hour

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	AccessToken    string
	RefreshToken   string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int              // セッション有効期間（秒）。0以下の場合はDefaultSessionTTL
	Now           func() time.Time // テスト用の時計。nilの場合はtime.Now
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	signer      *Signer
	metrics     metrics.MetricsCollector
	ttl         time.Duration
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	signer *Signer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	ttl := time.Duration(config.SessionMaxAge) * time.Second
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if collector == nil {
		collector = metrics.Nop()
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		signer:      signer,
		metrics:     collector,
		ttl:         ttl,
		now:         now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードを自動作成し、登録済みの場合はトークンを更新する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.userRepo.FindByGoogleID(ctx, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	var userID string
	if user != nil {
		userID = user.ID
		if err := s.userRepo.UpdateTokens(ctx, userID, userInfo.AccessToken, userInfo.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to update tokens: %w", err)
		}
		slog.Info("existing user logged in", slog.String("user_id", userID))
	} else {
		newUser := &model.User{
			ID:           uuid.NewString(),
			GoogleID:     userInfo.ProviderUserID,
			Email:        userInfo.Email,
			AccessToken:  userInfo.AccessToken,
			RefreshToken: userInfo.RefreshToken,
			CreatedAt:    s.now(),
		}
		if err := s.userRepo.Create(ctx, newUser); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		userID = newUser.ID
		slog.Info("new user created", slog.String("user_id", userID))
	}

	session, err := s.CreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSession はユーザーの期限切れセッションを掃除したうえで新しいセッションを発行する。
// セッションIDは乱数IDに対する署名で、以後変更されない。
func (s *Service) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        s.signer.Sign(uuid.NewString()),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	swept, err := s.sessionRepo.CreateWithSweep(ctx, session, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordSessionCreated(swept)
	slog.Info("session created",
		slog.String("user_id", userID),
		slog.Int64("swept", swept),
	)
	return session, nil
}

// ValidateSession はトークンに対応する有効なセッションの所有者IDを返す。
// セッションが存在しない、期限切れ、所有者が存在しない場合はmodel.ErrInvalidSessionを返す。
// 期限切れのセッションは読み取り時には削除しない。
func (s *Service) ValidateSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.ErrInvalidSession
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return "", model.ErrInvalidSession
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.ErrInvalidSession
	}

	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("session token is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

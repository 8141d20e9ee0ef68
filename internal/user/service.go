// Package user はユーザープロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/gambit/internal/chesscom"
	"github.com/hitoshi/gambit/internal/model"
	"github.com/hitoshi/gambit/internal/repository"
)

// Profile は /me で返すユーザー情報。
type Profile struct {
	ID            string
	Email         string
	ChessUsername string
}

// Service はユーザープロフィールのサービス層。
type Service struct {
	userRepo repository.UserRepository
	resolver chesscom.ArchiveResolver
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, resolver chesscom.ArchiveResolver) *Service {
	return &Service{userRepo: userRepo, resolver: resolver}
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.ErrInvalidSession
	}
	return &Profile{ID: user.ID, Email: user.Email, ChessUsername: user.ChessUsername}, nil
}

// SetChessUsername はユーザー自身のchess.comユーザー名を設定する。
// chess.com上に存在しないユーザー名は受け付けない。
func (s *Service) SetChessUsername(ctx context.Context, userID, raw string) (*Profile, error) {
	username, err := chesscom.CheckUsername(ctx, s.resolver, raw)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.SetChessUsername(ctx, userID, username); err != nil {
		return nil, fmt.Errorf("chess.comユーザー名の更新に失敗しました: %w", err)
	}

	slog.Info("chess username updated",
		slog.String("user_id", userID),
		slog.String("username", username),
	)

	return s.GetProfile(ctx, userID)
}

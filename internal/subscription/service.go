// Package subscription は購読管理のドメインロジックを提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/gambit/internal/chesscom"
	"github.com/hitoshi/gambit/internal/model"
	"github.com/hitoshi/gambit/internal/repository"
)

// Followed は購読中のchess.comユーザーを表す。
type Followed struct {
	Name  string
	Since time.Time
}

// Service は購読管理のサービス層。
// 購読一覧取得、購読追加、購読解除のビジネスロジックを提供する。
type Service struct {
	subRepo  repository.SubscriptionRepository
	resolver chesscom.ArchiveResolver
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriptionRepository, resolver chesscom.ArchiveResolver) *Service {
	return &Service{subRepo: subRepo, resolver: resolver, now: time.Now}
}

// List は購読一覧を購読日時の古い順に返す。同時刻の場合はユーザー名順。
func (s *Service) List(ctx context.Context, subscriberID string) ([]Followed, error) {
	subs, err := s.subRepo.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}

	result := make([]Followed, 0, len(subs))
	for _, sub := range subs {
		result = append(result, Followed{Name: sub.ChessUsername, Since: sub.CreatedAt})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Since.Equal(result[j].Since) {
			return result[i].Since.Before(result[j].Since)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// Subscribe はchess.comユーザーの購読を追加する。
// 空のユーザー名はmodel.ErrUsernameRequired、存在しないユーザーはmodel.ErrChessUserNotFound。
// 通信失敗（*model.TransportError）はそのまま返し、購読は追加しない。
// 既に購読済みの場合は何もしない。
func (s *Service) Subscribe(ctx context.Context, subscriberID, raw string) error {
	username, err := chesscom.CheckUsername(ctx, s.resolver, raw)
	if err != nil {
		return err
	}

	sub := &model.Subscription{
		SubscriberID:  subscriberID,
		ChessUsername: username,
		CreatedAt:     s.now(),
	}
	if err := s.subRepo.Add(ctx, sub); err != nil {
		return fmt.Errorf("購読の追加に失敗しました: %w", err)
	}

	slog.Info("subscription added",
		slog.String("user_id", subscriberID),
		slog.String("username", username),
	)
	return nil
}

// Unsubscribe は購読を解除する。空のユーザー名や未購読のユーザー名は何もしない。
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, raw string) error {
	username := strings.TrimSpace(raw)
	if username == "" {
		return nil
	}

	if err := s.subRepo.Remove(ctx, subscriberID, username); err != nil {
		return fmt.Errorf("購読の解除に失敗しました: %w", err)
	}

	slog.Info("subscription removed",
		slog.String("user_id", subscriberID),
		slog.String("username", username),
	)
	return nil
}

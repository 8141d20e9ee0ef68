package calsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gambit/internal/calendar"
	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
	"github.com/hitoshi/gambit/internal/repository"
)

// CalendarSummary は同期用に作成するセカンダリカレンダーの名前。
const CalendarSummary = "Chess games"

// CalendarAPI は同期に必要なGoogle Calendar APIの操作。*gcal.Client が実装する。
type CalendarAPI interface {
	CreateCalendar(ctx context.Context, summary string) (string, error)
	CalendarExists(ctx context.Context, calendarID string) (bool, error)
	ImportEvent(ctx context.Context, calendarID string, event model.CalendarEvent) error
}

// CalendarAPIFactory はユーザーのリフレッシュトークンからCalendarAPIを生成する。
type CalendarAPIFactory func(ctx context.Context, refreshToken string) CalendarAPI

// GamesFetcher はユーザーの全対局を取得する。*chesscom.Aggregator が実装する。
type GamesFetcher interface {
	FetchAllGames(ctx context.Context, username string) ([]model.Game, error)
}

// Syncer は1ユーザー分のカレンダー同期を行う。
// 前回同期以降に終了した対局だけをイベントとしてインポートする。
type Syncer struct {
	calendars repository.UserCalendarRepository
	subs      repository.SubscriptionRepository
	fetcher   GamesFetcher
	newAPI    CalendarAPIFactory
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncer はSyncerを生成する。
func NewSyncer(
	calendars repository.UserCalendarRepository,
	subs repository.SubscriptionRepository,
	fetcher GamesFetcher,
	newAPI CalendarAPIFactory,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Syncer {
	if collector == nil {
		collector = metrics.Nop()
	}
	return &Syncer{
		calendars: calendars,
		subs:      subs,
		fetcher:   fetcher,
		newAPI:    newAPI,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Sync はユーザーが購読している全プレイヤーの新しい対局を同期先カレンダーにインポートする。
// いずれかのプレイヤーで失敗した場合は残りを続行したうえでエラーを返し、最終同期日時は更新しない。
// インポートはiCalUIDをキーにするため、次回の再実行で重複は発生しない。
func (s *Syncer) Sync(ctx context.Context, user *model.User) error {
	if user.RefreshToken == "" {
		return errors.New("user has no refresh token")
	}

	cycleStart := s.now()
	api := s.newAPI(ctx, user.RefreshToken)

	cal, err := s.ensureCalendar(ctx, api, user.ID)
	if err != nil {
		return err
	}

	subs, err := s.subs.ListBySubscriber(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	var since int64
	if cal.LastSyncedAt != nil {
		since = cal.LastSyncedAt.Unix()
	}

	var errs []error
	imported := 0
	for _, sub := range subs {
		n, err := s.syncFollowed(ctx, api, cal.CalendarID, sub.ChessUsername, since)
		imported += n
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
		}
	}
	s.metrics.RecordEventsSynced(imported)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.calendars.UpdateLastSynced(ctx, user.ID, cycleStart); err != nil {
		return fmt.Errorf("failed to record last sync: %w", err)
	}

	s.logger.Info("user synced",
		slog.String("user_id", user.ID),
		slog.Int("followed", len(subs)),
		slog.Int("imported", imported),
	)
	return nil
}

// ensureCalendar は同期先カレンダーを返す。未作成または削除済みの場合は新規作成する。
func (s *Syncer) ensureCalendar(ctx context.Context, api CalendarAPI, userID string) (*model.UserCalendar, error) {
	cal, err := s.calendars.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user calendar: %w", err)
	}

	if cal != nil {
		exists, err := api.CalendarExists(ctx, cal.CalendarID)
		if err != nil {
			return nil, err
		}
		if exists {
			return cal, nil
		}
		s.logger.Warn("sync calendar no longer exists, recreating",
			slog.String("user_id", userID),
		)
	}

	calendarID, err := api.CreateCalendar(ctx, CalendarSummary)
	if err != nil {
		return nil, err
	}

	// カレンダーが変わった場合は全対局を再インポートする
	created := &model.UserCalendar{UserID: userID, CalendarID: calendarID}
	if err := s.calendars.Upsert(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to save user calendar: %w", err)
	}
	return created, nil
}

// syncFollowed は1プレイヤー分の対局のうち、sinceより後に終了したものをインポートする。
func (s *Syncer) syncFollowed(ctx context.Context, api CalendarAPI, calendarID, username string, since int64) (int, error) {
	games, err := s.fetcher.FetchAllGames(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch games for %s: %w", username, err)
	}

	imported := 0
	for _, game := range games {
		if game.EndTime <= since {
			continue
		}
		if err := api.ImportEvent(ctx, calendarID, calendar.ToEvent(game, username)); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

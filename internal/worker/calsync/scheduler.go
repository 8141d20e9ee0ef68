// Package calsync は購読中ユーザーの対局をGoogleカレンダーへ定期同期するワーカーを提供する。
// スケジューラとユーザー単位の同期処理を含む。
package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
)

// CandidateLister は同期対象ユーザーを列挙する。
type CandidateLister interface {
	ListSyncCandidates(ctx context.Context) ([]*model.User, error)
}

// UserSyncer は1ユーザー分の同期を実行する。
type UserSyncer interface {
	Sync(ctx context.Context, user *model.User) error
}

// Scheduler は同期サイクルのスケジューリングと並列制御を行う。
// ティッカーごとに同期対象ユーザーを取得し、
// semaphoreパターンで最大並列数を制御しながら同期を実行する。
type Scheduler struct {
	users          CandidateLister
	syncer         UserSyncer
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	users CandidateLister,
	syncer UserSyncer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if collector == nil {
		collector = metrics.Nop()
	}
	return &Scheduler{
		users:          users,
		syncer:         syncer,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("calendar sync scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("calendar sync scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は同期対象ユーザーを1回取得し、並列で同期を実行する。
// ユーザー単位の失敗はログに記録し、サイクル全体は止めない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := s.users.ListSyncCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sync candidates: %w", err)
	}

	if len(users) == 0 {
		s.logger.Info("no users to sync")
		return nil
	}

	s.logger.Info("sync cycle started", slog.Int("user_count", len(users)))

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.syncer.Sync(ctx, u); err != nil {
				s.metrics.RecordSyncFailure()
				s.logger.Error("user sync failed",
					slog.String("user_id", u.ID),
					slog.String("error", err.Error()),
				)
			}
		}(user)
	}

	wg.Wait()

	s.logger.Info("sync cycle completed",
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

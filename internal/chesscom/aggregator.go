package chesscom

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
)

// ArchiveSource はアーカイブ一覧の解決と月別アーカイブの取得を行う。
// *Client が実装する。
type ArchiveSource interface {
	ArchiveResolver
	FetchArchive(ctx context.Context, username, archiveURL string) ([]model.Game, error)
}

// Aggregator はユーザーの全アーカイブを並行取得し、1つの対局リストにまとめる。
type Aggregator struct {
	source  ArchiveSource
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(source ArchiveSource, collector metrics.MetricsCollector, logger *slog.Logger) *Aggregator {
	if collector == nil {
		collector = metrics.Nop()
	}
	return &Aggregator{source: source, metrics: collector, logger: logger}
}

// FetchAllGames はユーザーの全対局を取得する。
// ユーザーが存在しない、またはアーカイブが0件の場合は空スライスを返す。
// 各アーカイブは並行に取得し、最初の失敗で残りをキャンセルしてそのエラーを返す（部分結果は返さない）。
// 結果はアーカイブ一覧の順序、各アーカイブ内はchess.comが返した順序になる。
func (a *Aggregator) FetchAllGames(ctx context.Context, username string) ([]model.Game, error) {
	index, err := a.source.ResolveArchives(ctx, username)
	if err != nil {
		return nil, err
	}
	if !index.Found || len(index.Archives) == 0 {
		return []model.Game{}, nil
	}

	perArchive := make([][]model.Game, len(index.Archives))

	g, gctx := errgroup.WithContext(ctx)
	for i, archiveURL := range index.Archives {
		g.Go(func() error {
			games, err := a.source.FetchArchive(gctx, username, archiveURL)
			if err != nil {
				return err
			}
			perArchive[i] = games
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !model.IsTransportError(err) {
			err = &model.TransportError{Username: username, Err: err}
		}
		a.logger.Error("アーカイブの集約に失敗しました",
			slog.String("username", username),
			slog.Int("archive_count", len(index.Archives)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to aggregate games for %s: %w", username, err)
	}

	total := 0
	for _, games := range perArchive {
		total += len(games)
	}
	all := make([]model.Game, 0, total)
	for _, games := range perArchive {
		all = append(all, games...)
	}

	a.metrics.RecordGamesAggregated(len(all))
	a.logger.Info("対局を集約しました",
		slog.String("username", username),
		slog.Int("archive_count", len(index.Archives)),
		slog.Int("game_count", len(all)),
	)
	return all, nil
}

// Package gamefeed はユーザーの対局履歴をカレンダー文書として書き出す。
package gamefeed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/gambit/internal/calendar"
	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
)

// GamesFetcher はユーザーの全対局を取得する。*chesscom.Aggregator が実装する。
type GamesFetcher interface {
	FetchAllGames(ctx context.Context, username string) ([]model.Game, error)
}

// CalendarEncoder はイベント列をカレンダー文書にエンコードする。
type CalendarEncoder interface {
	Encode(name string, events []model.CalendarEvent) ([]byte, error)
}

// エクスポート結果のラベル
const (
	outcomeOK       = "ok"
	outcomeUpstream = "upstream_error"
	outcomeEncoding = "encoding_error"
)

// Service はフィード生成のサービス層。状態を持たない。
type Service struct {
	fetcher GamesFetcher
	encoder CalendarEncoder
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(fetcher GamesFetcher, encoder CalendarEncoder, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fetcher: fetcher, encoder: encoder, metrics: collector, logger: logger}
}

// Games はユーザーの全対局をアーカイブ順に返す。
func (s *Service) Games(ctx context.Context, username string) ([]model.Game, error) {
	return s.fetcher.FetchAllGames(ctx, username)
}

// Calendar はユーザーの全対局をそのユーザー視点のイベントに変換し、カレンダー文書として返す。
// 対局が0件でも空のカレンダーを返す。
// 取得失敗は*model.TransportError、エンコード失敗は*model.EncodingErrorとして返す。
func (s *Service) Calendar(ctx context.Context, username string) ([]byte, error) {
	games, err := s.fetcher.FetchAllGames(ctx, username)
	if err != nil {
		s.metrics.RecordCalendarExport(outcomeUpstream)
		return nil, err
	}

	events := calendar.ToEvents(games, username)
	doc, err := s.encoder.Encode(username+" chess games", events)
	if err != nil {
		s.metrics.RecordCalendarExport(outcomeEncoding)
		var encErr *model.EncodingError
		if !errors.As(err, &encErr) {
			err = &model.EncodingError{Reason: "encoder failed", Err: err}
		}
		return nil, err
	}

	s.metrics.RecordCalendarExport(outcomeOK)
	s.logger.Info("calendar exported",
		slog.String("username", username),
		slog.Int("events", len(events)),
	)
	return doc, nil
}

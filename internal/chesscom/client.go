// Package chesscom はchess.comの公開APIから対局履歴を取得する機能を提供する。
// アーカイブ一覧の解決、月別アーカイブの取得、それらの並行集約を含む。
package chesscom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
	"github.com/hitoshi/gambit/internal/security"
)

const (
	defaultBaseURL   = "https://api.chess.com"
	defaultUserAgent = "Gambit/1.0 (calendar export)"
	// defaultMaxBody は1レスポンスあたりの最大読み取りサイズ。月別アーカイブはPGNを含むため大きい。
	defaultMaxBody = 20 << 20

	kindIndex   = "index"
	kindArchive = "archive"
)

// ArchiveIndex はアーカイブ一覧の解決結果。
// Foundがfalseの場合、chess.com上にユーザーが存在しない（NotFound）。
type ArchiveIndex struct {
	Found    bool
	Archives []string
}

// ClientConfig はClientの設定を保持する。ゼロ値のフィールドには既定値が使われる。
type ClientConfig struct {
	BaseURL      string
	UserAgent    string
	MaxBodyBytes int64

	// BreakerFailures 回連続で失敗するとブレーカーが開く
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// upstreamResponse はブレーカー越しに受け渡すHTTPレスポンス。
type upstreamResponse struct {
	statusCode int
	body       []byte
}

// Client はchess.com公開APIのクライアント。
// すべての呼び出しは単一のサーキットブレーカーを共有する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxBody    int64
	guard      *security.ArchiveURLGuard
	breaker    *gobreaker.CircuitBreaker[*upstreamResponse]
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, cfg ClientConfig, collector metrics.MetricsCollector, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.Nop()
	}

	guard, err := security.NewArchiveURLGuard(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		maxBody:    cfg.MaxBodyBytes,
		guard:      guard,
		metrics:    collector,
		logger:     logger,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[*upstreamResponse](gobreaker.Settings{
		Name:        "chesscom",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			collector.RecordBreakerState(to.String())
		},
		IsSuccessful: isBreakerSuccess,
		IsExcluded:   isCallerDone,
	})

	return c, nil
}

// isBreakerSuccess は上流の障害とみなさないエラーを成功として扱う。
// 404などのクライアントエラーは上流の健全性とは無関係なためブレーカーを開かない。
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var te *model.TransportError
	if errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && te.StatusCode != http.StatusTooManyRequests {
		return true
	}
	return false
}

// callerDoneError は呼び出し元のコンテキストが終了した後に失敗したリクエストを表す。
// errgroupによる兄弟キャンセルやクライアント切断は上流の障害ではないため、ブレーカーの集計から除外する。
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

func isCallerDone(err error) bool {
	var done *callerDoneError
	return errors.As(err, &done)
}

type archivesPayload struct {
	Archives []string `json:"archives"`
	Code     *int     `json:"code"`
}

// ResolveArchives はユーザーの月別アーカイブURL一覧を取得する。
// 予約フィールド code が 0 のボディを受け取った場合は Found=false を返す（エラーではない）。
// それ以外の失敗は *model.TransportError を返す。
func (c *Client) ResolveArchives(ctx context.Context, username string) (*ArchiveIndex, error) {
	reqURL := c.baseURL + "/pub/player/" + url.PathEscape(username) + "/games/archives"

	resp, err := c.do(ctx, kindIndex, username, reqURL)
	if err != nil {
		return nil, err
	}

	var payload archivesPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		c.metrics.RecordUpstreamFailure(kindIndex, "decode")
		return nil, &model.TransportError{Username: username, URL: reqURL, StatusCode: resp.statusCode, Err: fmt.Errorf("failed to decode archive index: %w", err)}
	}

	if payload.Code != nil && *payload.Code == 0 {
		c.logger.Info("chess.comユーザーが見つかりません", slog.String("username", username))
		return &ArchiveIndex{Found: false}, nil
	}

	if resp.statusCode != http.StatusOK {
		c.metrics.RecordUpstreamFailure(kindIndex, "status")
		return nil, &model.TransportError{Username: username, URL: reqURL, StatusCode: resp.statusCode}
	}

	archives := payload.Archives
	if archives == nil {
		archives = []string{}
	}
	return &ArchiveIndex{Found: true, Archives: archives}, nil
}

type archivePayload struct {
	Games []model.Game `json:"games"`
}

// FetchArchive は1か月分のアーカイブを取得し、chess.comが返した順序のまま対局を返す。
// archiveURLは設定済みAPIホストを指していなければならない。
func (c *Client) FetchArchive(ctx context.Context, username, archiveURL string) ([]model.Game, error) {
	if err := c.guard.Check(archiveURL); err != nil {
		c.metrics.RecordUpstreamFailure(kindArchive, "rejected_url")
		return nil, &model.TransportError{Username: username, URL: archiveURL, Err: err}
	}

	resp, err := c.do(ctx, kindArchive, username, archiveURL)
	if err != nil {
		return nil, err
	}
	if resp.statusCode != http.StatusOK {
		c.metrics.RecordUpstreamFailure(kindArchive, "status")
		return nil, &model.TransportError{Username: username, URL: archiveURL, StatusCode: resp.statusCode}
	}

	var payload archivePayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		c.metrics.RecordUpstreamFailure(kindArchive, "decode")
		return nil, &model.TransportError{Username: username, URL: archiveURL, StatusCode: resp.statusCode, Err: fmt.Errorf("failed to decode archive: %w", err)}
	}

	if payload.Games == nil {
		return []model.Game{}, nil
	}
	return payload.Games, nil
}

// do はブレーカー越しにGETリクエストを送り、ボディを読み取る。
// 2xxと404はボディ付きで返し、それ以外のステータスや通信失敗は *model.TransportError を返す。
func (c *Client) do(ctx context.Context, kind, username, reqURL string) (*upstreamResponse, error) {
	resp, err := c.breaker.Execute(func() (*upstreamResponse, error) {
		resp, err := c.get(ctx, kind, username, reqURL)
		if err != nil && ctx.Err() != nil {
			return nil, &callerDoneError{err: err}
		}
		return resp, err
	})
	if err != nil {
		var done *callerDoneError
		if errors.As(err, &done) {
			return nil, done.err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordUpstreamFailure(kind, "breaker_open")
			return nil, &model.TransportError{Username: username, URL: reqURL, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, kind, username, reqURL string) (*upstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.TransportError{Username: username, URL: reqURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			reason = "timeout"
		}
		c.metrics.RecordUpstreamFailure(kind, reason)
		c.logger.Error("chess.comへのリクエストに失敗しました",
			slog.String("username", username),
			slog.String("url", reqURL),
			slog.String("error", err.Error()),
		)
		return nil, &model.TransportError{Username: username, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamRequest(kind, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.metrics.RecordUpstreamFailure(kind, "read")
		return nil, &model.TransportError{Username: username, URL: reqURL, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		c.metrics.RecordUpstreamFailure(kind, "too_large")
		return nil, &model.TransportError{Username: username, URL: reqURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", c.maxBody)}
	}

	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusNotFound {
		return &upstreamResponse{statusCode: resp.StatusCode, body: body}, nil
	}

	c.logger.Warn("chess.comがエラーステータスを返しました",
		slog.String("username", username),
		slog.String("url", reqURL),
		slog.Int("http_status", resp.StatusCode),
	)
	c.metrics.RecordUpstreamFailure(kind, "status")
	return nil, &model.TransportError{Username: username, URL: reqURL, StatusCode: resp.StatusCode}
}

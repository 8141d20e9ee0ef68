// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// chess.comクライアント、サービス層、同期ワーカーから利用する。
type MetricsCollector interface {
	// kindは "index" または "archive"
	RecordUpstreamRequest(kind string, statusCode int, duration time.Duration)
	RecordUpstreamFailure(kind string, reason string)
	RecordBreakerState(state string)
	RecordGamesAggregated(count int)
	RecordCalendarExport(outcome string)
	RecordSessionCreated(swept int64)
	RecordEventsSynced(count int)
	RecordSyncFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
	gamesAggregated  prometheus.Histogram
	calendarExports  *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionsSwept    prometheus.Counter
	eventsSynced     prometheus.Counter
	syncFailures     prometheus.Counter
}

var breakerStates = []string{"closed", "half-open", "open"}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gambit_upstream_requests_total",
			Help: "chess.comへのリクエスト数（種別・HTTPステータス別）",
		}, []string{"kind", "status_code"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gambit_upstream_failures_total",
			Help: "chess.comへのリクエスト失敗数（種別・理由別）",
		}, []string{"kind", "reason"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gambit_upstream_latency_seconds",
			Help:    "chess.comへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gambit_upstream_breaker_state",
			Help: "chess.comクライアントのサーキットブレーカー状態（該当状態が1）",
		}, []string{"state"}),
		gamesAggregated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gambit_games_aggregated",
			Help:    "1回の集約で取得した対局数",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		calendarExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gambit_calendar_exports_total",
			Help: "カレンダー出力の結果別件数",
		}, []string{"outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gambit_sessions_created_total",
			Help: "作成されたセッションの合計数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gambit_sessions_swept_total",
			Help: "セッション作成時に掃除された期限切れセッションの合計数",
		}),
		eventsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gambit_events_synced_total",
			Help: "Googleカレンダーへ同期したイベントの合計数",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gambit_sync_failures_total",
			Help: "ユーザー単位の同期失敗数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamFailures,
		c.upstreamLatency,
		c.breakerState,
		c.gamesAggregated,
		c.calendarExports,
		c.sessionsCreated,
		c.sessionsSwept,
		c.eventsSynced,
		c.syncFailures,
	)

	c.RecordBreakerState("closed")
	return c
}

// RecordUpstreamRequest はHTTPレスポンスを受け取ったリクエストを記録する。
func (c *Collector) RecordUpstreamRequest(kind string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(kind, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordUpstreamFailure はリクエスト失敗を記録する。
func (c *Collector) RecordUpstreamFailure(kind string, reason string) {
	c.upstreamFailures.WithLabelValues(kind, reason).Inc()
}

// RecordBreakerState はサーキットブレーカーの現在状態を記録する。
func (c *Collector) RecordBreakerState(state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.breakerState.WithLabelValues(s).Set(v)
	}
}

// RecordGamesAggregated は集約した対局数を記録する。
func (c *Collector) RecordGamesAggregated(count int) {
	c.gamesAggregated.Observe(float64(count))
}

// RecordCalendarExport はカレンダー出力の結果を記録する。
func (c *Collector) RecordCalendarExport(outcome string) {
	c.calendarExports.WithLabelValues(outcome).Inc()
}

// RecordSessionCreated はセッション作成と掃除件数を記録する。
func (c *Collector) RecordSessionCreated(swept int64) {
	c.sessionsCreated.Inc()
	c.sessionsSwept.Add(float64(swept))
}

// RecordEventsSynced は同期したイベント数を記録する。
func (c *Collector) RecordEventsSynced(count int) {
	c.eventsSynced.Add(float64(count))
}

// RecordSyncFailure はユーザー単位の同期失敗を記録する。
func (c *Collector) RecordSyncFailure() {
	c.syncFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// nopCollector は何も記録しないMetricsCollector。
type nopCollector struct{}

// Nop は何も記録しないMetricsCollectorを返す。
func Nop() MetricsCollector { return nopCollector{} }

func (nopCollector) RecordUpstreamRequest(string, int, time.Duration) {}
func (nopCollector) RecordUpstreamFailure(string, string)             {}
func (nopCollector) RecordBreakerState(string)                        {}
func (nopCollector) RecordGamesAggregated(int)                        {}
func (nopCollector) RecordCalendarExport(string)                      {}
func (nopCollector) RecordSessionCreated(int64)                       {}
func (nopCollector) RecordEventsSynced(int)                           {}
func (nopCollector) RecordSyncFailure()                               {}

var _ MetricsCollector = (*Collector)(nil)

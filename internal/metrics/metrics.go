// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// HTTPミドルウェア、認証サービス、タスクサービス、クリーンアップジョブから利用する。
type Recorder interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordExchange(result string)
	RecordProviderLatency(duration time.Duration)
	RecordBreakerState(state string)
	RecordTaskOperation(operation string)
	RecordCleanupDeleted(count int64)
}

// 交換結果のラベル値
const (
	ExchangeSuccess       = "success"
	ExchangeInvalid       = "invalid"
	ExchangeReplayed      = "replayed"
	ExchangeUpstreamError = "upstream_error"
	ExchangeInternalError = "internal_error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	exchanges       *prometheus.CounterVec
	providerLatency prometheus.Histogram
	breakerState    *prometheus.GaugeVec
	taskOperations  *prometheus.CounterVec
	cleanupDeleted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_requests_total",
			Help: "HTTPリクエスト数（メソッド・ルート・ステータスコード別）",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_session_exchanges_total",
			Help: "セッション交換の結果別件数",
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_idp_request_duration_seconds",
			Help:    "IDプロバイダへの問い合わせ時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskman_idp_circuit_state",
			Help: "IDプロバイダ用サーキットブレーカーの状態（現在の状態のみ1）",
		}, []string{"state"}),
		taskOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_task_operations_total",
			Help: "タスク操作の成功件数",
		}, []string{"operation"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_cleanup_deleted_total",
			Help: "クリーンアップで削除した期限切れレコードの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.exchanges,
		c.providerLatency,
		c.breakerState,
		c.taskOperations,
		c.cleanupDeleted,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルのカーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordExchange はセッション交換の結果を記録する。
func (c *Collector) RecordExchange(result string) {
	c.exchanges.WithLabelValues(result).Inc()
}

// RecordProviderLatency はIDプロバイダへの問い合わせ時間を記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordBreakerState はサーキットブレーカーの現在状態を記録する。
func (c *Collector) RecordBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		c.breakerState.WithLabelValues(s).Set(v)
	}
}

// RecordTaskOperation はタスク操作の成功を記録する。
func (c *Collector) RecordTaskOperation(operation string) {
	c.taskOperations.WithLabelValues(operation).Inc()
}

// RecordCleanupDeleted はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanupDeleted(count int64) {
	c.cleanupDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないRecorderを返す。
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}
func (nopRecorder) RecordExchange(string)                                {}
func (nopRecorder) RecordProviderLatency(time.Duration)                  {}
func (nopRecorder) RecordBreakerState(string)                            {}
func (nopRecorder) RecordTaskOperation(string)                           {}
func (nopRecorder) RecordCleanupDeleted(int64)                           {}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = nopRecorder{}
)

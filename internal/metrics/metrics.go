// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証イベントの種類
const (
	AuthEventRegister = "register"
	AuthEventLogin    = "login"
	AuthEventExchange = "exchange"
	AuthEventLogout   = "logout"
)

// 認証イベントの結果
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type Recorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAuthEvent(event, outcome string)
	RecordSessionsSwept(count int64)
	RecordRecommendationFallback(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus             *prometheus.CounterVec
	requestLatency         prometheus.Histogram
	authEvents             *prometheus.CounterVec
	sessionsSwept          prometheus.Counter
	recommendationFallback *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fonomed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fonomed_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fonomed_auth_events_total",
			Help: "認証イベント（登録・ログイン・外部交換・ログアウト）の結果別件数",
		}, []string{"event", "outcome"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fonomed_sessions_swept_total",
			Help: "定期スイープで削除された期限切れセッションの合計数",
		}),
		recommendationFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fonomed_recommendation_fallback_total",
			Help: "AI推薦が代替メッセージで応答した回数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.authEvents,
		c.sessionsSwept,
		c.recommendationFallback,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordSessionsSwept はスイープで削除されたセッション数を加算する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// RecordRecommendationFallback はAI推薦の代替応答を記録する。
func (c *Collector) RecordRecommendationFallback(reason string) {
	c.recommendationFallback.WithLabelValues(reason).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ Recorder = (*Collector)(nil)

// Nop は何も記録しないRecorder。メトリクスを使わない構成とテストで使う。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordRequestLatency(time.Duration)  {}
func (Nop) RecordAuthEvent(string, string)      {}
func (Nop) RecordSessionsSwept(int64)           {}
func (Nop) RecordRecommendationFallback(string) {}

var _ Recorder = Nop{}

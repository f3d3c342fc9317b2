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
// ハンドラやサービス層から利用する。
type MetricsCollector interface {
	RecordCodeIssued()
	RecordCodeVerified()
	RecordCodeFailed(reason string)
	RecordReconcile(outcome string)
	RecordSessionWrite()
	RecordSessionWriteSkipped()
	RecordHTTPStatus(statusCode int)
	RecordReconcileLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	codeIssued          prometheus.Counter
	codeVerified        prometheus.Counter
	codeFailed          *prometheus.CounterVec
	reconcile           *prometheus.CounterVec
	sessionWrites       prometheus.Counter
	sessionWriteSkipped prometheus.Counter
	httpStatus          *prometheus.CounterVec
	reconcileLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		codeIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamgate_auth_code_issued_total",
			Help: "発行されたワンタイムコードの合計数",
		}),
		codeVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamgate_auth_code_verified_total",
			Help: "検証に成功したワンタイムコードの合計数",
		}),
		codeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamgate_auth_code_failed_total",
			Help: "検証に失敗したワンタイムコードの理由別合計数",
		}, []string{"reason"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamgate_reconcile_total",
			Help: "identity整合化の結果別合計数",
		}, []string{"outcome"}),
		sessionWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamgate_session_writes_total",
			Help: "KVストアへのセッション書き込みの合計数",
		}),
		sessionWriteSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamgate_session_writes_skipped_total",
			Help: "変更なしでスキップされたセッション書き込みの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teamgate_reconcile_latency_seconds",
			Help:    "identity整合化のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.codeIssued,
		c.codeVerified,
		c.codeFailed,
		c.reconcile,
		c.sessionWrites,
		c.sessionWriteSkipped,
		c.httpStatus,
		c.reconcileLatency,
	)

	return c
}

// RecordCodeIssued はワンタイムコードの発行を記録する。
func (c *Collector) RecordCodeIssued() {
	c.codeIssued.Inc()
}

// RecordCodeVerified はコード検証の成功を記録する。
func (c *Collector) RecordCodeVerified() {
	c.codeVerified.Inc()
}

// RecordCodeFailed はコード検証の失敗を理由付きで記録する。
func (c *Collector) RecordCodeFailed(reason string) {
	c.codeFailed.WithLabelValues(reason).Inc()
}

// RecordReconcile はidentity整合化の結果を記録する。
// outcomeは"created"または"existing"または"failed"。
func (c *Collector) RecordReconcile(outcome string) {
	c.reconcile.WithLabelValues(outcome).Inc()
}

// RecordSessionWrite はセッションのKVストアへの書き込みを記録する。
func (c *Collector) RecordSessionWrite() {
	c.sessionWrites.Inc()
}

// RecordSessionWriteSkipped は変更なしでスキップされた書き込みを記録する。
func (c *Collector) RecordSessionWriteSkipped() {
	c.sessionWriteSkipped.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordReconcileLatency はidentity整合化のレイテンシを記録する。
func (c *Collector) RecordReconcileLatency(duration time.Duration) {
	c.reconcileLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

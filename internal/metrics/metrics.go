// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Graph APIクライアント、分類処理、ハンドラーから利用する。
type MetricsCollector interface {
	// RecordUpstreamRequest はGraph API呼び出しを記録する。通信失敗時のstatusCodeは0。
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordCommentsTruncated()
	RecordClassification(label string)
	RecordClassificationLatency(duration time.Duration)
	RecordExecutorRejected()
	SetExecutorWaiting(n int)
	RecordLogin(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests  *prometheus.CounterVec
	upstreamLatency   *prometheus.HistogramVec
	commentsTruncated prometheus.Counter
	classifications   *prometheus.CounterVec
	classifyLatency   prometheus.Histogram
	executorRejected  prometheus.Counter
	executorWaiting   prometheus.Gauge
	logins            *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialsense_upstream_requests_total",
			Help: "Graph API呼び出しのエンドポイント・ステータスコード別の合計数",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialsense_upstream_latency_seconds",
			Help:    "Graph API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		commentsTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialsense_comments_truncated_total",
			Help: "ページ取得失敗により途中で打ち切られたコメント取得の合計数",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialsense_classifications_total",
			Help: "ラベル別のコメント分類数",
		}, []string{"label"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialsense_classification_latency_seconds",
			Help:    "1バッチ分の分類処理のレイテンシ（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		executorRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialsense_executor_rejections_total",
			Help: "待ち行列が満杯のため拒否された分類リクエストの合計数",
		}),
		executorWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "socialsense_executor_waiting",
			Help: "分類エンジンの空きを待っているバッチ数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialsense_logins_total",
			Help: "結果別のFacebookログイン数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.commentsTruncated,
		c.classifications,
		c.classifyLatency,
		c.executorRejected,
		c.executorWaiting,
		c.logins,
	)

	return c
}

// RecordUpstreamRequest はGraph API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCommentsTruncated はコメント取得の打ち切りを記録する。
func (c *Collector) RecordCommentsTruncated() {
	c.commentsTruncated.Inc()
}

// RecordClassification は分類ラベルを記録する。
func (c *Collector) RecordClassification(label string) {
	c.classifications.WithLabelValues(label).Inc()
}

// RecordClassificationLatency はバッチ分類のレイテンシを記録する。
func (c *Collector) RecordClassificationLatency(duration time.Duration) {
	c.classifyLatency.Observe(duration.Seconds())
}

// RecordExecutorRejected は待ち行列満杯による拒否を記録する。
func (c *Collector) RecordExecutorRejected() {
	c.executorRejected.Inc()
}

// SetExecutorWaiting は待機中のバッチ数を設定する。
func (c *Collector) SetExecutorWaiting(n int) {
	c.executorWaiting.Set(float64(n))
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

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
// フィード配信・ダウンロード・Webhook・プローブワーカーから利用する。
type MetricsCollector interface {
	RecordFeedServed(flavor, access string)
	RecordFeedDenied(reason string)
	RecordFeedGeneration(duration time.Duration)
	RecordMediaDownload()
	RecordWebhookEvent(eventType, outcome string)
	RecordProbe(result string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedServed     *prometheus.CounterVec
	feedDenied     *prometheus.CounterVec
	feedGeneration prometheus.Histogram
	mediaDownloads prometheus.Counter
	webhookEvents  *prometheus.CounterVec
	probes         *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentfree_feed_served_total",
			Help: "配信したフィードの合計数",
		}, []string{"flavor", "access"}),
		feedDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentfree_feed_denied_total",
			Help: "拒否したフィード・メディアリクエストの合計数",
		}, []string{"reason"}),
		feedGeneration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentfree_feed_generation_seconds",
			Help:    "フィード生成の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		mediaDownloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentfree_media_downloads_total",
			Help: "プレミアムメディアのダウンロード合計数",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentfree_webhook_events_total",
			Help: "課金Webhookイベントの処理数",
		}, []string{"type", "outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentfree_probe_total",
			Help: "リモートメディアのプローブ結果",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentfree_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.feedServed,
		c.feedDenied,
		c.feedGeneration,
		c.mediaDownloads,
		c.webhookEvents,
		c.probes,
		c.httpStatus,
	)

	return c
}

// RecordFeedServed はフィード配信を記録する。accessは public または premium。
func (c *Collector) RecordFeedServed(flavor, access string) {
	c.feedServed.WithLabelValues(flavor, access).Inc()
}

// RecordFeedDenied は拒否を記録する。
func (c *Collector) RecordFeedDenied(reason string) {
	c.feedDenied.WithLabelValues(reason).Inc()
}

// RecordFeedGeneration はフィード生成時間を記録する。
func (c *Collector) RecordFeedGeneration(duration time.Duration) {
	c.feedGeneration.Observe(duration.Seconds())
}

// RecordMediaDownload はダウンロードを記録する。
func (c *Collector) RecordMediaDownload() {
	c.mediaDownloads.Inc()
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordProbe はプローブ結果を記録する。
func (c *Collector) RecordProbe(result string) {
	c.probes.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクス不要なサブコマンドやテストで使う。
var Nop MetricsCollector = nopCollector{}

type nopCollector struct{}

func (nopCollector) RecordFeedServed(string, string)    {}
func (nopCollector) RecordFeedDenied(string)            {}
func (nopCollector) RecordFeedGeneration(time.Duration) {}
func (nopCollector) RecordMediaDownload()               {}
func (nopCollector) RecordWebhookEvent(string, string)  {}
func (nopCollector) RecordProbe(string)                 {}
func (nopCollector) RecordHTTPStatus(int)               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

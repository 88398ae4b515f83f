package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestCollector_Counters(t *testing.T) {
	tests := []struct {
		name   string
		record func(c *Collector)
		metric string
		labels map[string]string
		want   float64
	}{
		{
			name: "フィード配信",
			record: func(c *Collector) {
				c.RecordFeedServed("podcast", "premium")
				c.RecordFeedServed("podcast", "premium")
				c.RecordFeedServed("article", "public")
			},
			metric: "rentfree_feed_served_total",
			labels: map[string]string{"flavor": "podcast", "access": "premium"},
			want:   2,
		},
		{
			name:   "拒否",
			record: func(c *Collector) { c.RecordFeedDenied("token") },
			metric: "rentfree_feed_denied_total",
			labels: map[string]string{"reason": "token"},
			want:   1,
		},
		{
			name:   "ダウンロード",
			record: func(c *Collector) { c.RecordMediaDownload(); c.RecordMediaDownload() },
			metric: "rentfree_media_downloads_total",
			want:   2,
		},
		{
			name:   "Webhook",
			record: func(c *Collector) { c.RecordWebhookEvent("subscription.updated", "applied") },
			metric: "rentfree_webhook_events_total",
			labels: map[string]string{"type": "subscription.updated", "outcome": "applied"},
			want:   1,
		},
		{
			name:   "プローブ",
			record: func(c *Collector) { c.RecordProbe("backoff") },
			metric: "rentfree_probe_total",
			labels: map[string]string{"result": "backoff"},
			want:   1,
		},
		{
			name:   "HTTPステータス",
			record: func(c *Collector) { c.RecordHTTPStatus(403) },
			metric: "rentfree_http_status_total",
			labels: map[string]string{"status_code": "403"},
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			c := NewCollector(reg)
			tt.record(c)

			m := findMetric(t, reg, tt.metric, tt.labels)
			if got := m.GetCounter().GetValue(); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.metric, got, tt.want)
			}
		})
	}
}

func TestRecordFeedGeneration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFeedGeneration(150 * time.Millisecond)

	m := findMetric(t, reg, "rentfree_feed_generation_seconds", nil)
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestNop_ImplementsCollector(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	Nop.RecordFeedServed("podcast", "public")
	Nop.RecordHTTPStatus(200)
}

func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordMediaDownload()

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rentfree_media_downloads_total") {
		t.Error("response should contain rentfree_media_downloads_total metric")
	}
}

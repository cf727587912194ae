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

// gatherFamily はレジストリから指定名のメトリクスファミリーを取り出す。
func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordUpstreamRequest_CountsByEndpointAndStatus はGraph API呼び出しがラベル別に数えられることを検証する。
func TestRecordUpstreamRequest_CountsByEndpointAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("posts", 200, 100*time.Millisecond)
	c.RecordUpstreamRequest("posts", 200, 100*time.Millisecond)
	c.RecordUpstreamRequest("comments", 0, time.Second)

	mf := gatherFamily(t, reg, "socialsense_upstream_requests_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		endpoint := labelValue(m, "endpoint")
		status := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch endpoint + "/" + status {
		case "posts/200":
			if val != 2 {
				t.Errorf("upstream_requests_total{posts,200} = %v, want 2", val)
			}
		case "comments/0":
			if val != 1 {
				t.Errorf("upstream_requests_total{comments,0} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected labels: %s/%s", endpoint, status)
		}
	}

	latency := gatherFamily(t, reg, "socialsense_upstream_latency_seconds")
	var samples uint64
	for _, m := range latency.GetMetric() {
		samples += m.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("latency sample_count = %d, want 3", samples)
	}
}

// TestRecordCommentsTruncated_IncrementsCounter は打ち切りカウンタが増加することを検証する。
func TestRecordCommentsTruncated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommentsTruncated()

	mf := gatherFamily(t, reg, "socialsense_comments_truncated_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("comments_truncated_total = %v, want 1", val)
	}
}

// TestRecordClassification_CountsByLabel は分類ラベルごとに数えられることを検証する。
func TestRecordClassification_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClassification("positive")
	c.RecordClassification("positive")
	c.RecordClassification("negative")

	mf := gatherFamily(t, reg, "socialsense_classifications_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "label")] = m.GetCounter().GetValue()
	}
	if got["positive"] != 2 || got["negative"] != 1 {
		t.Errorf("classifications_total = %v, want positive=2 negative=1", got)
	}
}

// TestRecordClassificationLatency_ObservesHistogram はレイテンシが記録されることを検証する。
func TestRecordClassificationLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClassificationLatency(500 * time.Millisecond)
	c.RecordClassificationLatency(2 * time.Second)

	h := gatherFamily(t, reg, "socialsense_classification_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.5 + 2.0 = 2.5秒
	if h.GetSampleSum() < 2.4 || h.GetSampleSum() > 2.6 {
		t.Errorf("sample_sum = %v, want ~2.5", h.GetSampleSum())
	}
}

// TestExecutorMetrics は拒否数と待機数が記録されることを検証する。
func TestExecutorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordExecutorRejected()
	c.SetExecutorWaiting(1)
	c.SetExecutorWaiting(0)

	if val := gatherFamily(t, reg, "socialsense_executor_rejections_total").GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("executor_rejections_total = %v, want 1", val)
	}
	if val := gatherFamily(t, reg, "socialsense_executor_waiting").GetMetric()[0].GetGauge().GetValue(); val != 0 {
		t.Errorf("executor_waiting = %v, want 0", val)
	}
}

// TestRecordLogin_CountsByResult はログイン結果ごとに数えられることを検証する。
func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginSuccess)
	c.RecordLogin(LoginFailure)
	c.RecordLogin(LoginSuccess)

	mf := gatherFamily(t, reg, "socialsense_logins_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if got[LoginSuccess] != 2 || got[LoginFailure] != 1 {
		t.Errorf("logins_total = %v, want success=2 failure=1", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("posts", 200, 50*time.Millisecond)
	c.RecordClassification("neutral")
	c.RecordLogin(LoginSuccess)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"socialsense_upstream_requests_total",
		"socialsense_upstream_latency_seconds",
		"socialsense_classifications_total",
		"socialsense_logins_total",
		"socialsense_executor_waiting",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordCommentsTruncated()
	c2.RecordCommentsTruncated()
	c2.RecordCommentsTruncated()

	val1 := gatherFamily(t, reg1, "socialsense_comments_truncated_total").GetMetric()[0].GetCounter().GetValue()
	val2 := gatherFamily(t, reg2, "socialsense_comments_truncated_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 comments_truncated = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 comments_truncated = %v, want 2", val2)
	}
}

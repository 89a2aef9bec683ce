package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/avue.v1.VisibilityService/Search"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("VisibilityService", "Search", "OK")); got != 1 {
		t.Fatalf("avue_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "avue_rpc_request_duration_seconds", map[string]string{
		"service": "VisibilityService",
		"method":  "Search",
	}); count != 1 {
		t.Fatalf("avue_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/avue.v1.VisibilityService/Snapshot"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("VisibilityService", "Snapshot", "InvalidArgument")); got != 1 {
		t.Fatalf("avue_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}

	h := collector.HTTPMiddleware("/search", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/search", "400")); got != 1 {
		t.Fatalf("avue_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "avue_http_request_duration_seconds", map[string]string{"route": "/search"}); count != 1 {
		t.Fatalf("avue_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestSearchCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSearchCollector(reg)
	if err != nil {
		t.Fatalf("NewSearchCollector: %v", err)
	}

	collector.SearchStarted()
	collector.CandidateProcessed("visible")
	collector.CandidateProcessed("visible")
	collector.CandidateProcessed("failed_upstream")
	collector.ObserveElevationFetch(120 * time.Millisecond)
	collector.SetQueuedTasks(-3)
	collector.StaleResultDropped()
	collector.SearchFinished("done", 2*time.Second)

	if got := testutil.ToFloat64(collector.SearchesStarted); got != 1 {
		t.Fatalf("searches started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CandidatesProcessed.WithLabelValues("visible")); got != 2 {
		t.Fatalf("visible candidates = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SearchesFinished.WithLabelValues("done")); got != 1 {
		t.Fatalf("finished done = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TasksQueued); got != 0 {
		t.Fatalf("queued gauge = %v, want clamped 0", got)
	}
	if got := testutil.ToFloat64(collector.StaleResultsDropped); got != 1 {
		t.Fatalf("stale drops = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "avue_elevation_fetch_duration_seconds", nil); count != 1 {
		t.Fatalf("elevation fetch sample_count = %d, want 1", count)
	}
}

func TestNilSearchCollectorIsSafe(t *testing.T) {
	var c *SearchCollector
	c.SearchStarted()
	c.SearchFinished("failed", time.Second)
	c.CandidateProcessed("masked")
	c.ObserveElevationFetch(time.Second)
	c.SetQueuedTasks(1)
	c.StaleResultDropped()
}

func TestMetricsHandlerExposesSearchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	nbiCollector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}
	searchCollector, err := NewSearchCollector(reg)
	if err != nil {
		t.Fatalf("NewSearchCollector: %v", err)
	}
	searchCollector.SearchStarted()
	searchCollector.CandidateProcessed("masked")
	nbiCollector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	nbiCollector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	nbiCollector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"avue_rpc_requests_total",
		"avue_rpc_request_duration_seconds",
		"avue_searches_started_total",
		`avue_candidates_processed_total{result="masked"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestCollectorsReuseExistingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSearchCollector(reg)
	if err != nil {
		t.Fatalf("NewSearchCollector: %v", err)
	}
	second, err := NewSearchCollector(reg)
	if err != nil {
		t.Fatalf("second NewSearchCollector: %v", err)
	}
	second.SearchStarted()
	if got := testutil.ToFloat64(first.SearchesStarted); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/avue.v1.VisibilityService/Search", "VisibilityService", "Search"},
		{"", "unknown", "unknown"},
		{"Search", "unknown", "unknown"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.in)
		if s != tt.service || m != tt.method {
			t.Fatalf("SplitMethod(%q) = %q/%q, want %q/%q", tt.in, s, m, tt.service, tt.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

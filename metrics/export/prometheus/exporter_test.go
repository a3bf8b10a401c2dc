package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type fakeSource struct {
	snapshot goIdentity.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                       { return f.dropped }

func scrape(t *testing.T, exp *Exporter) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return string(body)
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	})

	if got := scrape(t, exp); strings.Contains(got, "goidentity_") {
		t.Fatalf("expected no series for disabled metrics, got:\n%s", got)
	}
}

func TestCollectIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricSessionCreated: 7,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"goidentity_session_created_total 7",
		"goidentity_login_failure_total 0",
		`goidentity_resolve_latency_seconds_bucket{le="0.005"} 1`,
		`goidentity_resolve_latency_seconds_bucket{le="+Inf"} 36`,
		"goidentity_resolve_latency_seconds_count 36",
		"goidentity_events_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestCollectSkipsHistogramWithoutLatency(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{goIdentity.MetricTokenIssued: 1},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	})

	out := scrape(t, exp)
	if strings.Contains(out, "goidentity_resolve_latency_seconds") {
		t.Fatalf("expected no histogram series, got:\n%s", out)
	}
	if !strings.Contains(out, "goidentity_token_issued_total 1") {
		t.Fatalf("expected token counter, got:\n%s", out)
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricSessionCreated: 1000,
				goIdentity.MetricLoginFailure:   40,
				goIdentity.MetricTokenIssued:    800,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricResolveLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch := make(chan promclient.Metric, 64)
		exp.Collect(ch)
		close(ch)
	}
}

package goIdentity

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSessionCreated)

	if got := m.Value(MetricSessionCreated); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricTokenIssued)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricTokenIssued); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		m.Observe(MetricResolveLatency, d)
	}
	// Counters have no histogram.
	m.Observe(MetricSessionCreated, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricResolveLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if len(snap.Histograms) != 1 {
		t.Fatalf("expected a single histogram, got %d", len(snap.Histograms))
	}
}

func TestEngineCountsDomainOperations(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Metrics = MetricsConfig{Enabled: true, EnableLatencyHistograms: true}
	})
	ctx := context.Background()

	if _, err := h.engine.CreateAccount(ctx, Guest(), CreateAccountInput{Email: "m@x.com", Password: "password1"}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "m@x.com", "wrong-password"); err == nil {
		t.Fatal("expected wrong password to fail")
	}
	res, err := h.engine.CreateEmailPasswordSession(ctx, Guest(), "m@x.com", "password1")
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}
	if _, err := h.engine.ResolveCaller(ctx, res.Credential, RequestMeta{}); err != nil {
		t.Fatalf("ResolveCaller failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricAccountCreated] != 1 {
		t.Fatalf("expected one account, got %d", snap.Counters[MetricAccountCreated])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected one login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected one session, got %d", snap.Counters[MetricSessionCreated])
	}
	var observed uint64
	for _, v := range snap.Histograms[MetricResolveLatency] {
		observed += v
	}
	if observed != 1 {
		t.Fatalf("expected one resolve observation, got %d", observed)
	}
}

package codify

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricAccountLocked)
	m.Observe(MetricHashLatency, time.Millisecond)
	if m.Value(MetricAccountLocked) != 0 || m.Enabled() {
		t.Fatal("expected nil metrics to be inert")
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
				m.Inc(MetricLoginFailure)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricLoginFailure); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		80 * time.Millisecond,
		250 * time.Millisecond,
		400 * time.Millisecond,
		time.Second,
		3 * time.Second,
	}

	var total time.Duration
	for _, d := range observations {
		m.Observe(MetricHashLatency, d)
		total += d
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricHashLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if got := snap.HistogramSums[MetricHashLatency]; got != total {
		t.Fatalf("expected sum %v, got %v", total, got)
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("expected no histogram for a counter id")
	}
	if snap.Histograms[MetricHashLatency][0] != 0 {
		t.Fatal("expected hash latency histogram to stay empty")
	}
}

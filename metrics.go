package codify

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that returned a principal.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts wrong-password and unknown-user attempts.
	MetricLoginFailure
	// MetricLoginLocked counts correct passwords rejected because the account is disabled.
	MetricLoginLocked
	// MetricAccountLocked counts accounts transitioning to locked, automatic or manual.
	MetricAccountLocked
	// MetricAccountUnlocked counts explicit unlocks.
	MetricAccountUnlocked
	// MetricLockoutSuppressed counts thresholds reached by the first administrator.
	MetricLockoutSuppressed
	// MetricAdminPromoted counts first-login promotions.
	MetricAdminPromoted
	MetricAccountCreated
	MetricAccountCreationDuplicate
	MetricAccountCreationInvalid
	MetricAccountUpdated
	MetricAccountDeleted
	// MetricProtectedAdminRejected counts operations refused to keep the first administrator intact.
	MetricProtectedAdminRejected
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricUsernameRecoverySuccess
	MetricUsernameRecoveryFailure
	MetricRecoveryRateLimited
	MetricRecoveryCodeRegenerated
	MetricHashUpgraded
	MetricHashVerifyError
	MetricSessionIssued
	MetricSessionRejected
	// MetricHashLatency is the only histogram: time spent hashing or verifying a password.
	MetricHashLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are
// non-cumulative; HistogramSums holds the total observed duration.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricHashLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHashLatency].buckets[i])
		}
		s.Histograms[MetricHashLatency] = buckets
		s.HistogramSums[MetricHashLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricHashLatency].sumNanos))
	}

	return s
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

// Upper bounds in ms: 10, 25, 50, 100, 250, 500, 1000, +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}

package portalauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a client counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that established a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected by the API or the network.
	MetricLoginFailure
	// MetricRegisterSuccess counts registrations that established a session.
	MetricRegisterSuccess
	// MetricRegisterFailure counts registrations rejected by the API or the network.
	MetricRegisterFailure
	// MetricSessionRestored counts sessions adopted from persistence at startup.
	MetricSessionRestored
	// MetricSessionCreated counts sessions established by login or registration.
	MetricSessionCreated
	// MetricSessionInvalidated counts sessions dropped after a 401.
	MetricSessionInvalidated
	// MetricLogout counts explicit logouts, including those with nothing to drop.
	MetricLogout
	// MetricForbidden counts 403 answers on protected calls.
	MetricForbidden
	// MetricRequestInFlight counts actions rejected because the same action was running.
	MetricRequestInFlight
	// MetricValidationFailure counts forms rejected before any request was sent.
	MetricValidationFailure
	// MetricRequestLatency is the API round-trip latency histogram.
	MetricRequestLatency
	metricIDCount
)

// LatencyBuckets are the inclusive upper bounds of the request latency
// histogram. Samples above the last bound land in the overflow bucket.
var LatencyBuckets = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// Histogram reports whether id is recorded with [Metrics.Observe].
func (id MetricID) Histogram() bool {
	return id == MetricRequestLatency
}

// counter sits alone on its cache line; login and transport hooks bump
// different counters from different goroutines.
type counter struct {
	atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the latency histogram. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	buckets [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to the counter id. Histogram ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id.Histogram() {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d in the histogram id. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || !id.Histogram() {
		return
	}
	m.buckets[bucketIndex(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

// Snapshot copies every counter, and the latency histogram when enabled. A
// disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if !id.Histogram() {
			s.Counters[id] = m.counts[id].Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricRequestLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range LatencyBuckets {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}

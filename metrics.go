package goPasswordless

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricCodeIssued MetricID = iota
	MetricCodeResent
	MetricCodeResendCapped
	MetricCodeVerifiedWithNonce
	MetricCodeVerifiedWithoutNonce
	MetricCodeExpired
	MetricCodeIncorrect
	MetricCodeLocked
	MetricCodeNotFound
	MetricCodeDecoyIssued
	MetricPasswordSuccess
	MetricPasswordIncorrect
	MetricPasswordLocked
	MetricPasswordRehashed
	MetricPasswordSet
	MetricPasswordPolicyRejected
	MetricPasswordRemoved
	MetricDeviceTrusted
	MetricDeviceRevoked
	MetricSignInSuccess
	MetricSignInRejected
	MetricSignInNonceRejected
	MetricRedirectReplaced
	MetricRateLimitHit
	MetricDeliveryFailure
	MetricStoreFailure
	// MetricPasswordCheckLatency is a histogram of CheckPassword duration.
	MetricPasswordCheckLatency
	// MetricSignInLatency is a histogram of SignIn duration.
	MetricSignInLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of every histogram bucket
// but the last, which catches everything slower.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const histBucketCount = len(latencyBoundsMs) + 1

// latencyMetrics are the only IDs that accept observations.
var latencyMetrics = [...]MetricID{MetricPasswordCheckLatency, MetricSignInLatency}

// counterCell sits alone on a cache line so hot counters bumped from
// different cores do not contend.
type counterCell struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
// A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled bool
	latency bool
	cells   [metricIDCount]counterCell
	hist    [len(latencyMetrics)][histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
// Histogram slices hold non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.cells[id].n.Add(1)
}

// Observe records d against a latency metric. Other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot := latencySlot(id)
	if slot < 0 {
		return
	}
	m.hist[slot][bucketFor(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.cells[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) < 0 {
			snap.Counters[id] = m.cells[id].n.Load()
		}
	}
	if !m.latency {
		return snap
	}
	for slot, id := range latencyMetrics {
		counts := make([]uint64, histBucketCount)
		for b := range counts {
			counts[b] = m.hist[slot][b].Load()
		}
		snap.Histograms[id] = counts
	}
	return snap
}

func latencySlot(id MetricID) int {
	for i, l := range latencyMetrics {
		if l == id {
			return i
		}
	}
	return -1
}

func bucketFor(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}

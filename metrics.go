package authguard

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint8

const (
	MetricTOTPVerifySuccess MetricID = iota
	MetricTOTPVerifyFailure
	MetricRecoveryCodeUsed
	MetricRecoveryCodeFailed
	MetricRecoveryCodesRegenerated
	MetricDeviceRegistered
	MetricDeviceRevoked
	MetricDeviceLoginSuccess
	MetricRateLimitHit
	MetricMFASessionResumed

	metricCount
)

// Metrics is a fixed set of lock-free counters. Snapshot is cheap enough
// to call from a health endpoint.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out.Counters[id] = m.counters[id].Load()
	}
	return out
}

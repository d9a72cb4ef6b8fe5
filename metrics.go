package recovery

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricIssueSuccess counts durably stored issuances.
	MetricIssueSuccess MetricID = iota
	// MetricIssueLocked counts issuances refused by an active lockout.
	MetricIssueLocked
	// MetricIssueThrottled counts issuances refused by the fixed-window throttle.
	MetricIssueThrottled
	// MetricVerifySuccess counts successful code verifications.
	MetricVerifySuccess
	// MetricVerifyFailure counts hash mismatches during verification.
	MetricVerifyFailure
	// MetricVerifyExpired counts correct codes submitted past expiry.
	MetricVerifyExpired
	// MetricLockoutTriggered counts failed attempts that crossed the budget.
	MetricLockoutTriggered
	// MetricConsumeSuccess counts completed credential changes.
	MetricConsumeSuccess
	// MetricConsumeFailure counts rejected consumption attempts.
	MetricConsumeFailure
	// MetricNotificationFailure counts best-effort delivery failures.
	MetricNotificationFailure
	// MetricRateLimitHit counts every rate-limited response, lockout or throttle.
	MetricRateLimitHit
	// MetricStoreUnavailable counts failed record store round-trips.
	MetricStoreUnavailable
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps hot counters on distinct cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters for every engine outcome. A nil or
// disabled Metrics is a no-op on all methods.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}

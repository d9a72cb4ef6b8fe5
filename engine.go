package recovery

import (
	"time"

	"github.com/taskflowhq/recovery/internal/limiters"
	"github.com/taskflowhq/recovery/internal/stores"
)

// Engine orchestrates the recovery state machine. Build one through
// [Builder]; a zero Engine is not usable. All methods are safe for
// concurrent use: correctness comes from the store's atomic operations,
// never from in-process locking.
type Engine struct {
	config  Config
	store   *stores.RecoveryStore
	limiter *limiters.IssueLimiter
	hasher  SecretHasher
	sender  NotificationSender
	updater CredentialUpdater
	audit   *auditDispatcher
	metrics *Metrics
	now     func() time.Time
}

// Close flushes and stops the audit dispatcher. Safe to call more than
// once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.hasher != nil && e.sender != nil && e.updater != nil
}

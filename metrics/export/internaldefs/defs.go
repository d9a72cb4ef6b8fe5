package internaldefs

import (
	recovery "github.com/taskflowhq/recovery"
)

// CounterDef maps one engine counter to an exported metric name.
type CounterDef struct {
	ID   recovery.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: recovery.MetricIssueSuccess, Name: "recovery_issue_success_total", Help: "Recovery codes durably issued."},
	{ID: recovery.MetricIssueLocked, Name: "recovery_issue_locked_total", Help: "Issuances refused by an active lockout."},
	{ID: recovery.MetricIssueThrottled, Name: "recovery_issue_throttled_total", Help: "Issuances refused by the fixed-window throttle."},
	{ID: recovery.MetricVerifySuccess, Name: "recovery_verify_success_total", Help: "Successful code verifications."},
	{ID: recovery.MetricVerifyFailure, Name: "recovery_verify_failure_total", Help: "Failed code verifications."},
	{ID: recovery.MetricVerifyExpired, Name: "recovery_verify_expired_total", Help: "Correct codes submitted past expiry."},
	{ID: recovery.MetricLockoutTriggered, Name: "recovery_lockout_triggered_total", Help: "Attempt budgets exhausted into lockout."},
	{ID: recovery.MetricConsumeSuccess, Name: "recovery_consume_success_total", Help: "Completed credential changes."},
	{ID: recovery.MetricConsumeFailure, Name: "recovery_consume_failure_total", Help: "Rejected consumption attempts."},
	{ID: recovery.MetricNotificationFailure, Name: "recovery_notification_failure_total", Help: "Best-effort delivery failures."},
	{ID: recovery.MetricRateLimitHit, Name: "recovery_rate_limit_hit_total", Help: "Rate-limited responses, lockout or throttle."},
	{ID: recovery.MetricStoreUnavailable, Name: "recovery_store_unavailable_total", Help: "Failed record store round-trips."},
}

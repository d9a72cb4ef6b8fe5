package recovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/taskflowhq/recovery/internal/stores"
)

// Verify checks a submitted code against the account's active record.
//
// Check order is fixed: missing record, then lockout, then hash, then
// expiry. A lockout refuses even the correct code. A correct code past
// expiry returns ErrCodeExpired without spending an attempt; a mismatch
// spends one attempt through a single atomic store operation, and the
// attempt that exhausts the budget sets the lockout in that same
// operation and reports [RateLimitError] instead of ErrCodeInvalid.
// Successful verification marks the record verified and leaves the
// attempt count untouched.
func (e *Engine) Verify(ctx context.Context, accountID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return ErrCodeInvalid
	}

	record, err := e.store.Get(ctx, accountID)
	if err != nil {
		return e.verifyStoreErr(ctx, accountID, err)
	}

	now := e.now()
	if record.LockedUntil > now.Unix() {
		rlErr := &RateLimitError{RetryAfter: timeUntilUnix(record.LockedUntil, now)}
		e.emitRateLimit(ctx, "verify_lockout", accountID)
		e.emitAudit(ctx, auditEventRecoveryVerify, false, accountID, record.IssueID, rlErr, nil)
		return rlErr
	}

	match, err := e.hasher.Verify(code, record.CodeHash)
	if err != nil {
		// A stored hash we cannot parse is our own corruption, not a
		// caller mistake worth an attempt.
		e.emitAudit(ctx, auditEventRecoveryVerify, false, accountID, record.IssueID, ErrCodeInvalid, nil)
		return ErrCodeInvalid
	}

	if match {
		if now.Unix() > record.ExpiresAt {
			e.metricInc(MetricVerifyExpired)
			e.emitAudit(ctx, auditEventRecoveryVerify, false, accountID, record.IssueID, ErrCodeExpired, nil)
			return ErrCodeExpired
		}

		if _, err := e.store.MarkVerified(ctx, accountID, now); err != nil {
			return e.verifyStoreErr(ctx, accountID, err)
		}

		e.metricInc(MetricVerifySuccess)
		e.emitAudit(ctx, auditEventRecoveryVerify, true, accountID, record.IssueID, nil, nil)
		return nil
	}

	updated, err := e.store.FailAttempt(
		ctx,
		accountID,
		e.config.Recovery.MaxAttempts,
		e.config.Recovery.LockoutDuration,
		now,
	)
	if err != nil {
		return e.verifyStoreErr(ctx, accountID, err)
	}

	e.metricInc(MetricVerifyFailure)

	if updated.LockedUntil > now.Unix() {
		rlErr := &RateLimitError{RetryAfter: timeUntilUnix(updated.LockedUntil, now)}
		e.metricInc(MetricLockoutTriggered)
		e.emitRateLimit(ctx, "verify_budget", accountID)
		e.emitAudit(ctx, auditEventRecoveryLockout, false, accountID, updated.IssueID, rlErr, func() map[string]string {
			return map[string]string{
				"attempts": strconv.Itoa(int(updated.Attempts)),
			}
		})
		return rlErr
	}

	e.emitAudit(ctx, auditEventRecoveryVerify, false, accountID, updated.IssueID, ErrCodeInvalid, func() map[string]string {
		return map[string]string{
			"attempts": strconv.Itoa(int(updated.Attempts)),
		}
	})
	return ErrCodeInvalid
}

func (e *Engine) verifyStoreErr(ctx context.Context, accountID string, err error) error {
	if errors.Is(err, stores.ErrRecoveryNotFound) {
		e.emitAudit(ctx, auditEventRecoveryVerify, false, accountID, "", ErrRecoveryNotFound, nil)
		return ErrRecoveryNotFound
	}
	e.metricInc(MetricStoreUnavailable)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func timeUntilUnix(ts int64, now time.Time) time.Duration {
	return time.Unix(ts, 0).Sub(now)
}

package recovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/taskflowhq/recovery/internal/stores"
)

// Consume finalizes the credential change and invalidates the code.
//
// It re-validates everything at its own read: lockout, expiry, and the
// code hash itself. The record's verified flag is deliberately never
// trusted as proof on its own, so a verify-then-reset flow split across
// sessions cannot bypass the secret check. A mismatch here spends an
// attempt exactly as in Verify, keeping Consume from becoming an
// unmetered guessing oracle.
//
// On success the new credential is hashed, applied through the credential
// updater, and the record deleted, making the code single-use. No failure
// path mutates the account credential.
func (e *Engine) Consume(ctx context.Context, accountID, code, newCredential string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return e.consumeFail(ctx, accountID, "", ErrCodeInvalid)
	}
	if newCredential == "" {
		return e.consumeFail(ctx, accountID, "", ErrCredentialUpdateFailed)
	}

	record, err := e.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, stores.ErrRecoveryNotFound) {
			return e.consumeFail(ctx, accountID, "", ErrRecoveryNotFound)
		}
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := e.now()
	if record.LockedUntil > now.Unix() {
		rlErr := &RateLimitError{RetryAfter: timeUntilUnix(record.LockedUntil, now)}
		e.emitRateLimit(ctx, "consume_lockout", accountID)
		return e.consumeFail(ctx, accountID, record.IssueID, rlErr)
	}
	if now.Unix() > record.ExpiresAt {
		return e.consumeFail(ctx, accountID, record.IssueID, ErrCodeExpired)
	}

	match, err := e.hasher.Verify(code, record.CodeHash)
	if err != nil {
		return e.consumeFail(ctx, accountID, record.IssueID, ErrCodeInvalid)
	}

	if !match {
		updated, err := e.store.FailAttempt(
			ctx,
			accountID,
			e.config.Recovery.MaxAttempts,
			e.config.Recovery.LockoutDuration,
			now,
		)
		if err != nil {
			if errors.Is(err, stores.ErrRecoveryNotFound) {
				return e.consumeFail(ctx, accountID, record.IssueID, ErrRecoveryNotFound)
			}
			e.metricInc(MetricStoreUnavailable)
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if updated.LockedUntil > now.Unix() {
			rlErr := &RateLimitError{RetryAfter: timeUntilUnix(updated.LockedUntil, now)}
			e.metricInc(MetricLockoutTriggered)
			e.emitRateLimit(ctx, "consume_budget", accountID)
			e.emitAudit(ctx, auditEventRecoveryLockout, false, accountID, updated.IssueID, rlErr, func() map[string]string {
				return map[string]string{
					"attempts": strconv.Itoa(int(updated.Attempts)),
				}
			})
			e.metricInc(MetricConsumeFailure)
			return rlErr
		}

		return e.consumeFail(ctx, accountID, updated.IssueID, ErrCodeInvalid)
	}

	newHash, err := e.hasher.Hash(newCredential)
	if err != nil {
		return e.consumeFail(ctx, accountID, record.IssueID, fmt.Errorf("%w: %v", ErrCredentialUpdateFailed, err))
	}

	if err := e.updater.UpdateCredentialHash(ctx, accountID, newHash); err != nil {
		return e.consumeFail(ctx, accountID, record.IssueID, fmt.Errorf("%w: %v", ErrCredentialUpdateFailed, err))
	}

	if err := e.store.Delete(ctx, accountID); err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventRecoveryConsume, false, accountID, record.IssueID, ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricConsumeSuccess)
	e.emitAudit(ctx, auditEventRecoveryConsume, true, accountID, record.IssueID, nil, nil)
	return nil
}

func (e *Engine) consumeFail(ctx context.Context, accountID, issueID string, err error) error {
	e.metricInc(MetricConsumeFailure)
	e.emitAudit(ctx, auditEventRecoveryConsume, false, accountID, issueID, err, nil)
	return err
}

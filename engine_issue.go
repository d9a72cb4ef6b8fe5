package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskflowhq/recovery/internal"
	"github.com/taskflowhq/recovery/internal/limiters"
	"github.com/taskflowhq/recovery/internal/stores"
)

// Issue generates a fresh one-time code for the account, stores its hash,
// and hands the plaintext to the notification sender. The caller is
// responsible for having checked that the account exists.
//
// An existing lockout refuses issuance with a [RateLimitError]; otherwise
// the record is replaced wholesale, resetting attempts and clearing any
// past lockout. Issuance is logically complete once the record is stored:
// a delivery failure returns ErrNotificationFailed but leaves the record
// in place, and a repeat Issue re-sends with a fresh code. Callers wanting
// non-blocking delivery should wrap their sender accordingly.
func (e *Engine) Issue(ctx context.Context, accountID, contactAddress string) (IssueResult, error) {
	if !e.ready() {
		return IssueResult{}, ErrEngineNotReady
	}
	if accountID == "" || contactAddress == "" {
		return IssueResult{}, ErrRecoveryNotFound
	}

	now := e.now()

	existing, err := e.store.Get(ctx, accountID)
	switch {
	case err == nil:
		if existing.LockedUntil > now.Unix() {
			rlErr := &RateLimitError{RetryAfter: timeUntilUnix(existing.LockedUntil, now)}
			e.metricInc(MetricIssueLocked)
			e.emitRateLimit(ctx, "issue_lockout", accountID)
			e.emitAudit(ctx, auditEventRecoveryIssue, false, accountID, existing.IssueID, rlErr, nil)
			return IssueResult{}, rlErr
		}
	case errors.Is(err, stores.ErrRecoveryNotFound):
		// First issuance for this account.
	default:
		e.metricInc(MetricStoreUnavailable)
		return IssueResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.limiter != nil {
		if err := e.limiter.CheckIssue(ctx, contactAddress, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, limiters.ErrIssueThrottled) {
				e.metricInc(MetricIssueThrottled)
				e.emitRateLimit(ctx, "issue_window", accountID)
				e.emitAudit(ctx, auditEventRecoveryIssue, false, accountID, "", ErrIssueThrottled, nil)
				return IssueResult{}, ErrIssueThrottled
			}
			e.metricInc(MetricStoreUnavailable)
			return IssueResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	code, err := internal.NewCode(e.config.Recovery.CodeDigits)
	if err != nil {
		return IssueResult{}, err
	}

	codeHash, err := e.hasher.Hash(code)
	if err != nil {
		return IssueResult{}, err
	}

	issueID := uuid.NewString()
	record := &stores.RecoveryRecord{
		AccountID:      accountID,
		ContactAddress: contactAddress,
		IssueID:        issueID,
		CodeHash:       codeHash,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(e.config.Recovery.CodeTTL).Unix(),
		Attempts:       0,
		LockedUntil:    0,
		Verified:       false,
	}

	if err := e.store.Upsert(ctx, accountID, record, e.config.Recovery.CodeTTL); err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventRecoveryIssue, false, accountID, issueID, ErrStoreUnavailable, nil)
		return IssueResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricIssueSuccess)

	if err := e.sender.Send(ctx, contactAddress, code, e.config.Recovery.CodeTTL); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditEventRecoveryIssue, false, accountID, issueID, ErrNotificationFailed, func() map[string]string {
			return map[string]string{
				"delivery": "failed",
			}
		})
		return IssueResult{}, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	e.emitAudit(ctx, auditEventRecoveryIssue, true, accountID, issueID, nil, nil)
	return IssueResult{ExpiresIn: e.config.Recovery.CodeTTL}, nil
}

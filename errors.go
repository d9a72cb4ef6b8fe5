package recovery

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned when the engine is missing a required
	// dependency (store, hasher, sender, or credential updater).
	ErrEngineNotReady = errors.New("recovery engine not ready")
	// ErrRecoveryNotFound is returned when no active recovery record exists
	// for the account. Surface it to end users as "expired or invalid" to
	// avoid leaking account existence.
	ErrRecoveryNotFound = errors.New("recovery record not found")
	// ErrCodeExpired is returned when the submitted code matches but the
	// record is past its expiry.
	ErrCodeExpired = errors.New("recovery code expired")
	// ErrCodeInvalid is returned on a hash mismatch while the attempt
	// budget still has room.
	ErrCodeInvalid = errors.New("recovery code invalid")
	// ErrRateLimited is returned while a lockout is active or when a failed
	// attempt just triggered one. Matched errors are usually a
	// [RateLimitError] carrying the retry-after duration.
	ErrRateLimited = errors.New("recovery rate limited")
	// ErrIssueThrottled is returned when the issuance fixed-window throttle
	// refuses a request before any record is touched.
	ErrIssueThrottled = errors.New("recovery issuance throttled")
	// ErrStoreUnavailable is returned when a record store round-trip fails.
	// The engine does not retry; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("recovery store unavailable")
	// ErrNotificationFailed is returned when the code was durably stored but
	// out-of-band delivery failed. The record is NOT rolled back; a fresh
	// Issue re-sends.
	ErrNotificationFailed = errors.New("recovery notification failed")
	// ErrCredentialUpdateFailed is returned when the external credential
	// updater rejects the new credential during Consume. The recovery
	// record is left in place.
	ErrCredentialUpdateFailed = errors.New("credential update failed")
)

// RateLimitError reports an active lockout together with the duration the
// caller should wait before retrying. It matches [ErrRateLimited] under
// errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("recovery rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the lockout remainder from an error returned by the
// engine. It returns zero when err carries no retry-after information.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

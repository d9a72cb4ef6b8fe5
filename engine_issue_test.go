package recovery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueStoresHashedCodeAndNotifies(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.engine.Issue(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if result.ExpiresIn != 5*time.Minute {
		t.Fatalf("expected 5m expiry, got %s", result.ExpiresIn)
	}

	if env.sender.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", env.sender.count())
	}
	code := env.sender.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}

	record := env.record(t, "u1")
	if record.AccountID != "u1" || record.ContactAddress != "alice@example.com" {
		t.Fatalf("unexpected record identity: %+v", record)
	}
	if record.IssueID == "" {
		t.Fatal("expected a non-empty issue ID")
	}
	if record.Attempts != 0 || record.LockedUntil != 0 || record.Verified {
		t.Fatalf("expected a fresh record, got %+v", record)
	}

	now := env.clock.Now()
	if record.IssuedAt != now.Unix() {
		t.Fatalf("expected IssuedAt %d, got %d", now.Unix(), record.IssuedAt)
	}
	if record.ExpiresAt != now.Add(5*time.Minute).Unix() {
		t.Fatalf("expected ExpiresAt %d, got %d", now.Add(5*time.Minute).Unix(), record.ExpiresAt)
	}

	if record.CodeHash == code {
		t.Fatal("code must not be stored in plaintext")
	}
	ok, err := newTestHasher(t).Verify(code, record.CodeHash)
	if err != nil || !ok {
		t.Fatalf("expected stored hash to verify the sent code, ok=%v err=%v", ok, err)
	}

	if got := env.metric(MetricIssueSuccess); got != 1 {
		t.Fatalf("expected one issue success, got %d", got)
	}
}

func TestIssueReplacesPriorRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	firstCode := env.mustIssue(t, "u1", "alice@example.com")
	firstIssueID := env.record(t, "u1").IssueID

	// Spend one attempt so the reset is observable.
	if err := env.engine.Verify(ctx, "u1", wrongCode(firstCode)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if env.record(t, "u1").Attempts != 1 {
		t.Fatal("expected one spent attempt before re-issue")
	}

	secondCode := env.mustIssue(t, "u1", "alice@example.com")
	record := env.record(t, "u1")

	if record.Attempts != 0 || record.LockedUntil != 0 || record.Verified {
		t.Fatalf("expected re-issue to reset state, got %+v", record)
	}
	if record.IssueID == firstIssueID {
		t.Fatal("expected a fresh issue ID after re-issue")
	}

	if err := env.engine.Verify(ctx, "u1", secondCode); err != nil {
		t.Fatalf("expected the new code to verify, got %v", err)
	}
	if firstCode != secondCode {
		if err := env.engine.Verify(ctx, "u1", firstCode); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("expected the replaced code to be rejected, got %v", err)
		}
	}
}

func TestIssueRefusedDuringLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")
	lockAccount(t, env, "u1", code)

	_, err := env.engine.Issue(ctx, "u1", "alice@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited during lockout, got %v", err)
	}
	if got := RetryAfter(err); got != time.Hour {
		t.Fatalf("expected retry-after 1h, got %s", got)
	}

	if env.sender.count() != 1 {
		t.Fatalf("expected no new notification during lockout, got %d sends", env.sender.count())
	}
	if got := env.metric(MetricIssueLocked); got != 1 {
		t.Fatalf("expected one locked issuance, got %d", got)
	}
}

func TestIssueAfterLockoutExpiresClearsState(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")
	lockAccount(t, env, "u1", code)

	env.clock.Advance(time.Hour + time.Second)

	newCode := env.mustIssue(t, "u1", "alice@example.com")
	record := env.record(t, "u1")
	if record.Attempts != 0 || record.LockedUntil != 0 {
		t.Fatalf("expected issuance after lockout to reset state, got %+v", record)
	}

	if err := env.engine.Verify(ctx, "u1", newCode); err != nil {
		t.Fatalf("expected the fresh code to verify, got %v", err)
	}
}

func TestIssueNotificationFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.sender.setErr(errors.New("smtp down"))

	_, err := env.engine.Issue(ctx, "u1", "alice@example.com")
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}

	// The record survives the delivery failure; a repeat issue re-sends.
	record := env.record(t, "u1")
	if record.CodeHash == "" {
		t.Fatal("expected the record to remain stored after delivery failure")
	}

	env.sender.setErr(nil)
	code := env.mustIssue(t, "u1", "alice@example.com")
	if err := env.engine.Verify(ctx, "u1", code); err != nil {
		t.Fatalf("expected re-sent code to verify, got %v", err)
	}

	if got := env.metric(MetricNotificationFailure); got != 1 {
		t.Fatalf("expected one notification failure, got %d", got)
	}
}

func TestIssueThrottledPerContact(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Throttle.EnableContactThrottle = true
		cfg.Throttle.MaxIssues = 2
		cfg.Throttle.IssueWindow = 15 * time.Minute
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Issue(ctx, "u1", "alice@example.com"); err != nil {
			t.Fatalf("issue %d failed: %v", i+1, err)
		}
	}

	if _, err := env.engine.Issue(ctx, "u1", "alice@example.com"); !errors.Is(err, ErrIssueThrottled) {
		t.Fatalf("expected ErrIssueThrottled, got %v", err)
	}

	// A different contact address has its own window.
	if _, err := env.engine.Issue(ctx, "u2", "bob@example.com"); err != nil {
		t.Fatalf("expected other contact to be unaffected, got %v", err)
	}

	if got := env.metric(MetricIssueThrottled); got != 1 {
		t.Fatalf("expected one throttled issuance, got %d", got)
	}
}

func TestIssueThrottledPerClientIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Throttle.EnableIPThrottle = true
		cfg.Throttle.MaxIssues = 2
		cfg.Throttle.IssueWindow = 15 * time.Minute
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	if _, err := env.engine.Issue(ctx, "u1", "alice@example.com"); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if _, err := env.engine.Issue(ctx, "u2", "bob@example.com"); err != nil {
		t.Fatalf("second issue failed: %v", err)
	}
	if _, err := env.engine.Issue(ctx, "u3", "carol@example.com"); !errors.Is(err, ErrIssueThrottled) {
		t.Fatalf("expected ErrIssueThrottled across accounts sharing an IP, got %v", err)
	}

	// Without an IP on the context the IP window does not apply.
	if _, err := env.engine.Issue(context.Background(), "u4", "dave@example.com"); err != nil {
		t.Fatalf("expected issue without client IP to pass, got %v", err)
	}
}

func TestIssueEmptyInputs(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Issue(ctx, "", "alice@example.com"); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("expected ErrRecoveryNotFound for empty account, got %v", err)
	}
	if _, err := env.engine.Issue(ctx, "u1", ""); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("expected ErrRecoveryNotFound for empty contact, got %v", err)
	}
}

// lockAccount burns the full attempt budget with wrong codes, leaving the
// account in an active lockout.
func lockAccount(t *testing.T, env *testEnv, accountID, code string) {
	t.Helper()

	ctx := context.Background()
	bad := wrongCode(code)

	for i := 0; i < env.engine.config.Recovery.MaxAttempts-1; i++ {
		if err := env.engine.Verify(ctx, accountID, bad); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("attempt %d: expected ErrCodeInvalid, got %v", i+1, err)
		}
	}
	if err := env.engine.Verify(ctx, accountID, bad); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("final attempt: expected ErrRateLimited, got %v", err)
	}
}

// wrongCode returns a syntactically valid code guaranteed to differ from
// the issued one.
func wrongCode(code string) string {
	if code == "999999" {
		return "999998"
	}
	return "999999"
}

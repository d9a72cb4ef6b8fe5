package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestVerifyCorrectCodeMarksVerified(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")

	if err := env.engine.Verify(ctx, "u1", code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	record := env.record(t, "u1")
	if !record.Verified {
		t.Fatal("expected record to be marked verified")
	}
	if record.Attempts != 0 {
		t.Fatalf("expected success to spend no attempt, got %d", record.Attempts)
	}

	// Verification is repeatable; only consumption burns the code.
	if err := env.engine.Verify(ctx, "u1", code); err != nil {
		t.Fatalf("repeat Verify failed: %v", err)
	}

	if got := env.metric(MetricVerifySuccess); got != 2 {
		t.Fatalf("expected two verify successes, got %d", got)
	}
}

func TestVerifyUnknownAccount(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.Verify(context.Background(), "ghost", "123456"); !errors.Is(err, ErrRecoveryNotFound) {
		t.Fatalf("expected ErrRecoveryNotFound, got %v", err)
	}
}

func TestVerifyWrongCodeSpendsOneAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")

	if err := env.engine.Verify(ctx, "u1", wrongCode(code)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	record := env.record(t, "u1")
	if record.Attempts != 1 {
		t.Fatalf("expected one spent attempt, got %d", record.Attempts)
	}
	if record.LockedUntil != 0 {
		t.Fatal("expected no lockout below the attempt budget")
	}

	// Failures below the budget do not invalidate the code.
	if err := env.engine.Verify(ctx, "u1", code); err != nil {
		t.Fatalf("expected correct code to still verify, got %v", err)
	}
}

func TestVerifyLockoutAfterBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")
	bad := wrongCode(code)

	env.clock.Advance(time.Minute)
	if err := env.engine.Verify(ctx, "u1", bad); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("first failure: expected ErrCodeInvalid, got %v", err)
	}

	env.clock.Advance(time.Minute)
	if err := env.engine.Verify(ctx, "u1", bad); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("second failure: expected ErrCodeInvalid, got %v", err)
	}

	env.clock.Advance(time.Minute)
	err := env.engine.Verify(ctx, "u1", bad)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third failure: expected ErrRateLimited, got %v", err)
	}
	if got := RetryAfter(err); got != time.Hour {
		t.Fatalf("expected retry-after 1h, got %s", got)
	}

	record := env.record(t, "u1")
	if record.Attempts != 3 {
		t.Fatalf("expected attempts saturated at 3, got %d", record.Attempts)
	}
	if record.LockedUntil != env.clock.Now().Add(time.Hour).Unix() {
		t.Fatalf("expected lockout one hour out, got %d", record.LockedUntil)
	}

	// The correct code is refused while the lockout is active, and the
	// remaining wait shrinks as time passes.
	env.clock.Advance(time.Minute)
	err = env.engine.Verify(ctx, "u1", code)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected correct code to be refused during lockout, got %v", err)
	}
	if got := RetryAfter(err); got != 59*time.Minute {
		t.Fatalf("expected retry-after 59m, got %s", got)
	}

	// Once the lockout lifts, a fresh issuance resets the state.
	env.clock.Advance(time.Hour)
	newCode := env.mustIssue(t, "u1", "alice@example.com")
	if err := env.engine.Verify(ctx, "u1", newCode); err != nil {
		t.Fatalf("expected fresh code to verify after re-issue, got %v", err)
	}

	if got := env.metric(MetricLockoutTriggered); got != 1 {
		t.Fatalf("expected one lockout, got %d", got)
	}
	if got := env.metric(MetricVerifyFailure); got != 3 {
		t.Fatalf("expected three verify failures, got %d", got)
	}
}

func TestVerifyLockoutExpiresNaturally(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		// A lockout longer than the code TTL means the code is expired by
		// the time the lockout lifts.
		cfg.Recovery.CodeTTL = 5 * time.Minute
		cfg.Recovery.LockoutDuration = time.Hour
	})
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")
	lockAccount(t, env, "u1", code)

	env.clock.Advance(time.Hour + time.Second)

	if err := env.engine.Verify(ctx, "u1", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired once the lockout lifted, got %v", err)
	}
}

func TestVerifyExpiredCodeSpendsNoAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")
	env.clock.Advance(5*time.Minute + time.Second)

	if err := env.engine.Verify(ctx, "u1", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	record := env.record(t, "u1")
	if record.Attempts != 0 {
		t.Fatalf("expected expiry to spend no attempt, got %d", record.Attempts)
	}
	if record.Verified {
		t.Fatal("expected expired code to leave the record unverified")
	}

	if got := env.metric(MetricVerifyExpired); got != 1 {
		t.Fatalf("expected one expired verification, got %d", got)
	}
}

func TestVerifyVerifiedAtExpiryBoundary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	code := env.mustIssue(t, "u1", "alice@example.com")

	// ExpiresAt itself is still inside the window; only now > ExpiresAt
	// rejects.
	env.clock.Advance(5 * time.Minute)
	if err := env.engine.Verify(ctx, "u1", code); err != nil {
		t.Fatalf("expected code to verify at the expiry instant, got %v", err)
	}

	env.clock.Advance(time.Second)
	if err := env.engine.Verify(ctx, "u1", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired past the boundary, got %v", err)
	}
}

func TestVerifyEmptyCode(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.Verify(context.Background(), "u1", ""); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for empty code, got %v", err)
	}
}

func TestVerifyConcurrentFailuresNeverExceedBudget(t *testing.T) {
	env := newTestEnv(t, nil)

	code := env.mustIssue(t, "u1", "alice@example.com")
	bad := wrongCode(code)
	maxAttempts := env.engine.config.Recovery.MaxAttempts

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			results <- env.engine.Verify(context.Background(), "u1", bad)
		}()
	}
	wg.Wait()
	close(results)

	invalid := 0
	limited := 0
	for err := range results {
		switch {
		case errors.Is(err, ErrRateLimited):
			limited++
		case errors.Is(err, ErrCodeInvalid):
			invalid++
		default:
			t.Fatalf("unexpected verify error: %v", err)
		}
	}

	// Attempts below the budget report an invalid code; the attempt that
	// exhausts it and everything after report the lockout.
	if invalid != maxAttempts-1 {
		t.Fatalf("expected %d invalid-code results, got %d", maxAttempts-1, invalid)
	}
	if limited != n-(maxAttempts-1) {
		t.Fatalf("expected %d rate-limited results, got %d", n-(maxAttempts-1), limited)
	}

	record := env.record(t, "u1")
	if int(record.Attempts) != maxAttempts {
		t.Fatalf("expected attempts saturated at %d, got %d", maxAttempts, record.Attempts)
	}
	if record.LockedUntil == 0 {
		t.Fatal("expected an active lockout after the budget was exhausted")
	}
}

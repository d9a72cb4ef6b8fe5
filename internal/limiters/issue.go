package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrIssueThrottled indicates the fixed window is exhausted.
	ErrIssueThrottled = errors.New("issue throttled")
	// ErrIssueUnavailable indicates the throttle backend is unreachable.
	ErrIssueUnavailable = errors.New("issue throttle backend unavailable")
)

// IssueThrottleConfig mirrors the engine's throttle settings.
type IssueThrottleConfig struct {
	EnableContactThrottle bool
	EnableIPThrottle      bool
	MaxIssues             int
	IssueWindow           time.Duration
}

// IssueLimiter enforces a fixed-window counter per contact address and per
// client IP. The window key auto-expires, so a single INCR plus a
// first-hit EXPIRE is all it costs per check.
type IssueLimiter struct {
	redis  *redis.Client
	config IssueThrottleConfig
}

func NewIssueLimiter(redisClient *redis.Client, cfg IssueThrottleConfig) *IssueLimiter {
	return &IssueLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue returns ErrIssueThrottled when either window is exhausted.
// An empty ip skips the IP window.
func (l *IssueLimiter) CheckIssue(ctx context.Context, contact, ip string) error {
	if l.config.EnableContactThrottle && contact != "" {
		if err := l.enforceFixedWindow(ctx, contactKey(contact)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *IssueLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIssueUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.IssueWindow).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrIssueUnavailable, err)
		}
	}

	if count > int64(l.config.MaxIssues) {
		return ErrIssueThrottled
	}

	return nil
}

func contactKey(contact string) string {
	return "tfic:" + contact
}

func ipKey(ip string) string {
	return "tfiip:" + ip
}

package recovery

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskflowhq/recovery/internal/limiters"
	"github.com/taskflowhq/recovery/internal/stores"
	"github.com/taskflowhq/recovery/secret"
)

// Builder assembles an Engine. Redis, a notification sender, and a
// credential updater are required; everything else has defaults.
type Builder struct {
	config Config
	redis  *redis.Client

	hasher    SecretHasher
	sender    NotificationSender
	updater   CredentialUpdater
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with the default configuration:
// 6-digit codes, 5 minute TTL, 3 attempts, 1 hour lockout.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithHasher overrides the default argon2id hasher.
func (b *Builder) WithHasher(h SecretHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithSender(s NotificationSender) *Builder {
	b.sender = s
	return b
}

func (b *Builder) WithCredentialUpdater(u CredentialUpdater) *Builder {
	b.updater = u
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock injects the time source. Tests use it to step through expiry
// and lockout windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}
	if b.updater == nil {
		return nil, errors.New("credential updater required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := secret.NewArgon2(cfg.Hasher)
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	var limiter *limiters.IssueLimiter
	if cfg.Throttle.EnableContactThrottle || cfg.Throttle.EnableIPThrottle {
		limiter = limiters.NewIssueLimiter(b.redis, limiters.IssueThrottleConfig{
			EnableContactThrottle: cfg.Throttle.EnableContactThrottle,
			EnableIPThrottle:      cfg.Throttle.EnableIPThrottle,
			MaxIssues:             cfg.Throttle.MaxIssues,
			IssueWindow:           cfg.Throttle.IssueWindow,
		})
	}

	engine := &Engine{
		config:  cfg,
		store:   stores.NewRecoveryStore(b.redis, cfg.Recovery.RedisPrefix),
		limiter: limiter,
		hasher:  hasher,
		sender:  b.sender,
		updater: b.updater,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     clock,
	}

	b.built = true
	return engine, nil
}

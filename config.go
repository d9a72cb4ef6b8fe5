package recovery

import (
	"errors"
	"time"

	"github.com/taskflowhq/recovery/secret"
)

// Config holds every tunable of the recovery engine. Instances are
// configured during initialization and treated as immutable afterwards.
type Config struct {
	Recovery RecoveryConfig
	Throttle IssueThrottleConfig
	Hasher   secret.Config
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// RecoveryConfig carries the code and lockout policy. The defaults match
// the documented design values: 6-digit codes valid for 5 minutes, 3 failed
// attempts, 1 hour lockout.
type RecoveryConfig struct {
	CodeDigits      int
	CodeTTL         time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
	RedisPrefix     string
}

// IssueThrottleConfig bounds how often codes may be issued per contact
// address and per client IP inside a fixed window. This protects the
// delivery channel; it is independent of the per-record lockout.
type IssueThrottleConfig struct {
	EnableContactThrottle bool
	EnableIPThrottle      bool
	MaxIssues             int
	IssueWindow           time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-core atomic counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Recovery: RecoveryConfig{
			CodeDigits:      6,
			CodeTTL:         5 * time.Minute,
			MaxAttempts:     3,
			LockoutDuration: time.Hour,
			RedisPrefix:     "tfr",
		},
		Throttle: IssueThrottleConfig{
			EnableContactThrottle: true,
			EnableIPThrottle:      true,
			MaxIssues:             5,
			IssueWindow:           15 * time.Minute,
		},
		Hasher: secret.Config{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks the policy values for internal consistency. Build calls
// it; callers constructing a Config by hand can call it early.
func (c *Config) Validate() error {
	if c.Recovery.CodeDigits < 6 || c.Recovery.CodeDigits > 10 {
		return errors.New("Recovery CodeDigits must be between 6 and 10")
	}
	if c.Recovery.CodeTTL <= 0 {
		return errors.New("Recovery CodeTTL must be > 0")
	}
	if c.Recovery.CodeTTL > 15*time.Minute {
		return errors.New("Recovery CodeTTL must be <= 15m")
	}
	if c.Recovery.MaxAttempts <= 0 {
		return errors.New("Recovery MaxAttempts must be > 0")
	}
	if c.Recovery.MaxAttempts > 5 {
		return errors.New("Recovery MaxAttempts must be <= 5")
	}
	if c.Recovery.LockoutDuration <= 0 {
		return errors.New("Recovery LockoutDuration must be > 0")
	}
	if c.Recovery.LockoutDuration < c.Recovery.CodeTTL {
		return errors.New("Recovery LockoutDuration must be >= CodeTTL")
	}
	if c.Recovery.RedisPrefix == "" {
		return errors.New("Recovery RedisPrefix must not be empty")
	}

	if c.Throttle.EnableContactThrottle || c.Throttle.EnableIPThrottle {
		if c.Throttle.MaxIssues <= 0 {
			return errors.New("Throttle MaxIssues must be > 0")
		}
		if c.Throttle.IssueWindow <= 0 {
			return errors.New("Throttle IssueWindow must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

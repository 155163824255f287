package session

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffConfig controls how the negotiator waits between reconnection attempts.
// With Enabled false the negotiator restarts advertising or discovery immediately.
type BackoffConfig struct {
	Enabled             bool          `yaml:"enabled"`
	InitialInterval     time.Duration `yaml:"initial_interval"`
	MaxInterval         time.Duration `yaml:"max_interval"`
	Multiplier          float64       `yaml:"multiplier"`
	RandomizationFactor float64       `yaml:"randomization_factor"`
	// MaxAttempts is the number of consecutive failures tolerated before giving up. 0 means no limit.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultBackoffConfig returns the retry policy used by the scoreboard process
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Enabled:             true,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxAttempts:         0,
	}
}

// ImmediateRetryConfig restarts the search step right away after every failure, forever
func ImmediateRetryConfig() BackoffConfig {
	return BackoffConfig{}
}

func newExponentialBackOff(cfg BackoffConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier >= 1 {
		b.Multiplier = cfg.Multiplier
	}
	if cfg.RandomizationFactor >= 0 && cfg.RandomizationFactor < 1 {
		b.RandomizationFactor = cfg.RandomizationFactor
	}
	b.Reset()
	return b
}

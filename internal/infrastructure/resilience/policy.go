package resilience

import (
	"time"

	"github.com/kirillkom/docextract/internal/config"
)

// Config is the retry and breaker policy of one executor.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter is the largest fraction cut from a backoff, in [0, 1].
	RetryJitter float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// FromSettings applies env settings over DefaultConfig; multiplier, jitter and half-open
// calls are not configurable. Zero values are replaced during normalization.
func FromSettings(s config.ResilienceConfig) Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = s.RetryMaxAttempts
	cfg.RetryInitialBackoff = s.RetryInitialBackoff
	cfg.RetryMaxBackoff = s.RetryMaxBackoff
	cfg.BreakerEnabled = s.BreakerEnabled
	cfg.BreakerMinRequests = s.BreakerMinRequests
	cfg.BreakerFailureRatio = s.BreakerFailureRatio
	cfg.BreakerOpenTimeout = s.BreakerOpenTimeout
	return cfg
}

func (c Config) normalize() Config {
	def := DefaultConfig()

	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if c.RetryMaxBackoff <= 0 {
		c.RetryMaxBackoff = def.RetryMaxBackoff
	}
	c.RetryMaxBackoff = max(c.RetryMaxBackoff, c.RetryInitialBackoff)
	if c.RetryMultiplier < 1.0 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	c.RetryJitter = min(max(c.RetryJitter, 0), 1)

	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}

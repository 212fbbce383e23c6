package store

import "time"

// Config holds Store tuning knobs.
type Config struct {
	// SessionTTL is the idle time after which a session is evicted.
	// The reserved default session is immune. Default: 30 minutes.
	SessionTTL time.Duration

	// SweepInterval is how often the eviction sweep runs.
	// Default: 1 minute.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SessionTTL:    30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

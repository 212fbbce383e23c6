package canvas

import "time"

// Config holds tuning knobs for the synchronization server.
type Config struct {
	// Host is the interface to bind. Default: "localhost".
	Host string

	// Port is the first port to try. Default: 3333.
	Port int

	// PortRetries is how many consecutive ports are tried when Port is
	// taken. Default: 10.
	PortRetries int

	// WriteTimeout bounds a single WebSocket write. Default: 10s.
	WriteTimeout time.Duration

	// ReadLimit is the maximum inbound message size in bytes.
	// Default: 4MB (full-scene updates can be large).
	ReadLimit int64

	// MaxElements caps the element array accepted in one inbound
	// message; larger payloads are dropped. Default: 10000.
	MaxElements int

	// ExportTimeout bounds an export request/response exchange.
	// Default: 30s.
	ExportTimeout time.Duration

	// ConvertTimeout bounds a diagram-conversion exchange. Default: 30s.
	ConvertTimeout time.Duration

	// MaxBatches caps the per-session skeleton-batch list. Synced
	// batches are pruned first. Default: 200.
	MaxBatches int

	// ClientWaitTimeout is how long staging operations poll for a live
	// client before giving up. Default: 10s.
	ClientWaitTimeout time.Duration

	// ClientWaitInterval is the poll interval for ClientWaitTimeout.
	// Default: 200ms.
	ClientWaitInterval time.Duration

	// ShutdownTimeout bounds graceful HTTP shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:               "localhost",
		Port:               3333,
		PortRetries:        10,
		WriteTimeout:       10 * time.Second,
		ReadLimit:          4 << 20,
		MaxElements:        10000,
		ExportTimeout:      30 * time.Second,
		ConvertTimeout:     30 * time.Second,
		MaxBatches:         200,
		ClientWaitTimeout:  10 * time.Second,
		ClientWaitInterval: 200 * time.Millisecond,
		ShutdownTimeout:    10 * time.Second,
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

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	defaults := DefaultConfig()
	out := c.Clone()
	if out.Host == "" {
		out.Host = defaults.Host
	}
	if out.Port == 0 {
		out.Port = defaults.Port
	}
	if out.PortRetries == 0 {
		out.PortRetries = defaults.PortRetries
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.ReadLimit == 0 {
		out.ReadLimit = defaults.ReadLimit
	}
	if out.MaxElements == 0 {
		out.MaxElements = defaults.MaxElements
	}
	if out.ExportTimeout == 0 {
		out.ExportTimeout = defaults.ExportTimeout
	}
	if out.ConvertTimeout == 0 {
		out.ConvertTimeout = defaults.ConvertTimeout
	}
	if out.MaxBatches == 0 {
		out.MaxBatches = defaults.MaxBatches
	}
	if out.ClientWaitTimeout == 0 {
		out.ClientWaitTimeout = defaults.ClientWaitTimeout
	}
	if out.ClientWaitInterval == 0 {
		out.ClientWaitInterval = defaults.ClientWaitInterval
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	return out
}

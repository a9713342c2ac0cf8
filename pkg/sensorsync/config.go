package sensorsync

import (
	"fmt"
	"time"

	"github.com/bft-labs/sensorsync/internal/app"
	"github.com/bft-labs/sensorsync/internal/domain"
)

// Default values applied by Config.SetDefaults.
const (
	DefaultTolerance      = 50 * time.Millisecond
	DefaultCapacity       = domain.DefaultCapacity
	DefaultWorkers        = app.DefaultWorkers
	DefaultHandoff        = app.DefaultHandoffSize
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultStatusInterval = 5 * time.Second
)

// StreamConfig configures one synchronized stream.
type StreamConfig struct {
	// Name identifies the stream in messages and tuples
	Name string

	// Capacity bounds the stream's queue. Zero uses Config.Capacity.
	Capacity int
}

// Config holds the configuration for a Syncer.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Streams lists the streams that make up a tuple, in tuple order.
	// Empty selects the default sensor rig.
	Streams []StreamConfig

	// Tolerance is the maximum timestamp spread allowed inside a tuple.
	// Zero only matches messages with identical timestamps.
	Tolerance time.Duration

	// Capacity is the default per-stream queue capacity
	Capacity int

	// Workers bounds concurrent record decoding when a source is configured
	Workers int

	// Handoff is the number of tuples buffered between matching and the sinks
	Handoff int

	// PollInterval is how long the source is left idle once drained
	PollInterval time.Duration

	// StatusInterval is the minimum time between status.json saves
	StatusInterval time.Duration

	// StateDir receives status.json. Empty disables status persistence.
	StateDir string

	// ConfigPath is the TOML file plugins may watch for runtime changes
	ConfigPath string

	// Once stops the source loop when the feed is drained
	Once bool
}

// DefaultConfig returns a Config for the default sensor rig.
func DefaultConfig() Config {
	cfg := Config{Tolerance: DefaultTolerance}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued fields. Tolerance is left alone since zero is
// a valid tolerance.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Handoff <= 0 {
		c.Handoff = DefaultHandoff
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	if len(c.Streams) == 0 {
		for _, id := range domain.DefaultStreams() {
			c.Streams = append(c.Streams, StreamConfig{Name: string(id)})
		}
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := c.syncConfig().Validate(); err != nil {
		return err
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) syncConfig() app.SyncConfig {
	specs := make([]app.StreamSpec, len(c.Streams))
	for i, s := range c.Streams {
		capacity := s.Capacity
		if capacity <= 0 {
			capacity = c.Capacity
		}
		specs[i] = app.StreamSpec{ID: domain.StreamID(s.Name), Capacity: capacity}
	}
	return app.SyncConfig{Streams: specs, Tolerance: c.Tolerance}
}

func (c Config) streamIDs() []StreamID {
	ids := make([]StreamID, len(c.Streams))
	for i, s := range c.Streams {
		ids[i] = StreamID(s.Name)
	}
	return ids
}

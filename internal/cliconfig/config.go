package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// Default values for the synchronizer.
const (
	DefaultTolerance = 50 * time.Millisecond
	DefaultCapacity  = domain.DefaultCapacity
)

// StreamConfig configures one stream. Capacity 0 uses Config.Capacity and
// an empty Kind uses the default rig's kind for known names, raw otherwise.
type StreamConfig struct {
	Name     string `toml:"name"`
	Capacity int    `toml:"capacity"`
	Kind     string `toml:"kind"`
}

// Config holds CLI configuration for sensorsync.
type Config struct {
	Input    string
	OutDir   string
	IndexDB  string
	SinkURL  string
	AuthKey  string
	StateDir string

	Streams   []StreamConfig
	Tolerance time.Duration
	Capacity  int

	Workers int
	Handoff int

	PollInterval   time.Duration
	StatusInterval time.Duration
	HTTPTimeout    time.Duration

	LogLevel string
	Once     bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Tolerance:      DefaultTolerance,
		Capacity:       DefaultCapacity,
		Workers:        4,
		Handoff:        64,
		PollInterval:   500 * time.Millisecond,
		StatusInterval: 5 * time.Second,
		HTTPTimeout:    15 * time.Second,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if c.OutDir == "" && c.IndexDB == "" && c.SinkURL == "" {
		return fmt.Errorf("at least one of out-dir, index-db or sink-url is required")
	}

	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if len(c.Streams) == 0 {
		for _, id := range domain.DefaultStreams() {
			c.Streams = append(c.Streams, StreamConfig{Name: string(id)})
		}
	}
	seen := make(map[string]bool, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.Name == "" {
			return fmt.Errorf("stream %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stream %q", s.Name)
		}
		seen[s.Name] = true
		if s.Capacity <= 0 {
			s.Capacity = c.Capacity
		}
		switch domain.PayloadKind(s.Kind) {
		case "", domain.KindImage, domain.KindPointCloud, domain.KindOdometry, domain.KindTwist, domain.KindRaw:
		default:
			return fmt.Errorf("stream %q: unknown kind %q", s.Name, s.Kind)
		}
	}

	if c.StateDir == "" {
		c.StateDir = c.OutDir
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Dir(c.Input)
	}

	// Ensure no trailing slash
	c.SinkURL = strings.TrimRight(c.SinkURL, "/")

	return nil
}

// ParseStreams parses a comma-separated list of stream names.
func ParseStreams(value string) []StreamConfig {
	var out []StreamConfig
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, StreamConfig{Name: name})
		}
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setStreams replaces the stream list if non-empty and flag not changed.
func (s *configSetter) setStreams(flag string, value []StreamConfig, dst *[]StreamConfig) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

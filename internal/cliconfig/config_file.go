package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Input          string         `toml:"input"`
	OutDir         string         `toml:"out_dir"`
	IndexDB        string         `toml:"index_db"`
	SinkURL        string         `toml:"sink_url"`
	AuthKey        string         `toml:"auth_key"`
	StateDir       string         `toml:"state_dir"`
	Tolerance      string         `toml:"tolerance"`
	Capacity       int            `toml:"capacity"`
	Workers        int            `toml:"workers"`
	Handoff        int            `toml:"handoff"`
	PollInterval   string         `toml:"poll_interval"`
	StatusInterval string         `toml:"status_interval"`
	HTTPTimeout    string         `toml:"http_timeout"`
	LogLevel       string         `toml:"log_level"`
	Once           *bool          `toml:"once"`
	Streams        []StreamConfig `toml:"stream"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.sensorsync/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sensorsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("input", fc.Input, &cfg.Input)
	s.setString("out-dir", fc.OutDir, &cfg.OutDir)
	s.setString("index-db", fc.IndexDB, &cfg.IndexDB)
	s.setString("sink-url", fc.SinkURL, &cfg.SinkURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("tolerance", fc.Tolerance, &cfg.Tolerance); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("status-interval", fc.StatusInterval, &cfg.StatusInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("capacity", fc.Capacity, &cfg.Capacity)
	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setInt("handoff", fc.Handoff, &cfg.Handoff)

	s.setBool("once", fc.Once, &cfg.Once)
	s.setStreams("streams", fc.Streams, &cfg.Streams)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

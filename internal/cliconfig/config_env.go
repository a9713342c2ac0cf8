package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SENSORSYNC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("input", os.Getenv("SENSORSYNC_INPUT"), &cfg.Input)
	s.setString("out-dir", os.Getenv("SENSORSYNC_OUT_DIR"), &cfg.OutDir)
	s.setString("index-db", os.Getenv("SENSORSYNC_INDEX_DB"), &cfg.IndexDB)
	s.setString("sink-url", os.Getenv("SENSORSYNC_SINK_URL"), &cfg.SinkURL)
	s.setString("auth-key", os.Getenv("SENSORSYNC_AUTH_KEY"), &cfg.AuthKey)
	s.setString("state-dir", os.Getenv("SENSORSYNC_STATE_DIR"), &cfg.StateDir)
	s.setString("log-level", os.Getenv("SENSORSYNC_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("tolerance", os.Getenv("SENSORSYNC_TOLERANCE"), &cfg.Tolerance); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("SENSORSYNC_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("status-interval", os.Getenv("SENSORSYNC_STATUS_INTERVAL"), &cfg.StatusInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("SENSORSYNC_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("capacity", os.Getenv("SENSORSYNC_CAPACITY"), &cfg.Capacity); err != nil {
		return err
	}
	if err := s.setIntFromString("workers", os.Getenv("SENSORSYNC_WORKERS"), &cfg.Workers); err != nil {
		return err
	}
	if err := s.setIntFromString("handoff", os.Getenv("SENSORSYNC_HANDOFF"), &cfg.Handoff); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("SENSORSYNC_ONCE"), &cfg.Once)
	s.setStreams("streams", ParseStreams(os.Getenv("SENSORSYNC_STREAMS")), &cfg.Streams)

	return nil
}

package configwatcher

import "github.com/bft-labs/sensorsync/pkg/sensorsync"

// WithConfigWatcher returns a sensorsync Option that enables config file watching.
// When enabled, the plugin watches Config.ConfigPath and applies a changed
// tolerance to the running syncer.
//
// Usage:
//
//	s, err := sensorsync.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        DebounceDelay: 200 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) sensorsync.Option {
	plugin := New(cfg)
	return sensorsync.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a sensorsync Option that enables config
// watching with default settings (debounce 100ms, 3 read attempts).
//
// Usage:
//
//	s, err := sensorsync.New(cfg, configwatcher.WithDefaultConfigWatcher())
func WithDefaultConfigWatcher() sensorsync.Option {
	return WithConfigWatcher(DefaultConfig())
}

// Package configwatcher provides config file monitoring for sensorsync.
// When enabled, it watches the TOML config file and applies a changed
// tolerance to the running synchronizer without a restart.
package configwatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/sensorsync/internal/cliconfig"
	"github.com/bft-labs/sensorsync/pkg/log"
	"github.com/bft-labs/sensorsync/pkg/sensorsync"
)

// Plugin implements config watching functionality.
// It monitors the file named by PluginConfig.ConfigPath and hands a changed
// `tolerance` key to the Tuner. Other keys need a restart.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	retryInterval time.Duration
	debounceDelay time.Duration
	maxRetries    int

	// Runtime state
	path     string
	tuner    sensorsync.Tuner
	logger   sensorsync.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	applied  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// RetryInterval is the delay between attempts to read the file.
	// Default: 1 second
	RetryInterval time.Duration

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// MaxRetries bounds read attempts per change.
	// Default: 3
	MaxRetries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: time.Second,
		DebounceDelay: 100 * time.Millisecond,
		MaxRetries:    3,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	return &Plugin{
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
		maxRetries:    cfg.MaxRetries,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file.
// The watcher is disabled when no config path or tuner is configured.
func (p *Plugin) Initialize(ctx context.Context, cfg sensorsync.PluginConfig) error {
	p.mu.Lock()
	p.path = cfg.ConfigPath
	p.tuner = cfg.Tuner
	if cfg.Logger != nil {
		p.logger = cfg.Logger
	}
	p.mu.Unlock()

	if p.path == "" || p.tuner == nil {
		p.logger.Warn("config watcher disabled: no config file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files instead of writing in place.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher started", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Applied returns the number of tolerance changes applied so far.
func (p *Plugin) Applied() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.applied
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A stopped timer never runs its func, so release its slot here.
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}

	p.wg.Add(1)
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		defer p.wg.Done()
		p.reloadWithRetry(ctx)
	})
}

// reloadWithRetry reads the file until it parses, the retries run out or ctx ends.
func (p *Plugin) reloadWithRetry(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		fc, err := cliconfig.LoadFileConfig(p.path)
		if err == nil {
			if err := p.apply(ctx, fc); err != nil {
				p.logger.Error("config reload rejected", log.Err(err))
			}
			return
		}
		if os.IsNotExist(err) || attempt >= p.maxRetries {
			p.logger.Error("config reload failed",
				log.String("path", p.path),
				log.Int("attempts", attempt),
				log.Err(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
}

// apply hands a changed tolerance to the tuner. An absent key keeps the
// current tolerance.
func (p *Plugin) apply(ctx context.Context, fc cliconfig.FileConfig) error {
	if fc.Tolerance == "" {
		return nil
	}
	d, err := time.ParseDuration(fc.Tolerance)
	if err != nil {
		return fmt.Errorf("tolerance: %w", err)
	}
	current := p.tuner.Tolerance()
	if d == current {
		return nil
	}
	if err := p.tuner.SetTolerance(ctx, d); err != nil {
		return err
	}

	p.mu.Lock()
	p.applied++
	p.mu.Unlock()

	p.logger.Info("tolerance reloaded",
		log.Duration("from", current),
		log.Duration("to", d))
	return nil
}

// Ensure Plugin implements sensorsync.Plugin.
var _ sensorsync.Plugin = (*Plugin)(nil)

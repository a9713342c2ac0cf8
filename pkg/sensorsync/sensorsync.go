package sensorsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/sensorsync/internal/adapters/decode"
	"github.com/bft-labs/sensorsync/internal/adapters/fs"
	"github.com/bft-labs/sensorsync/internal/adapters/sink"
	"github.com/bft-labs/sensorsync/internal/app"
	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
	"github.com/bft-labs/sensorsync/pkg/log"
)

// Syncer aligns timestamped messages from several streams into tuples and
// delivers them to its sinks. Use New() to create an instance, then Start().
//
// Messages come either from Push or from a source registered with WithSource.
// A Syncer runs once: Stop closes its sinks, and a stopped instance cannot be
// started again.
type Syncer struct {
	config     Config
	opts       options
	lifecycle  *app.Lifecycle
	stats      *app.Stats
	syncer     *app.Synchronizer
	dispatcher *app.Dispatcher
	agent      *app.Agent
	statusRepo ports.StatusRepository
	logger     ports.Logger

	plugins []Plugin

	mu       sync.RWMutex
	cancel   context.CancelFunc
	done     chan struct{}
	finished bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Syncer with the given configuration.
// The instance is created in StateStopped; call Start() to begin.
// At least one sink must be registered with WithSink.
func New(cfg Config, opts ...Option) (*Syncer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.sinks) == 0 {
		return nil, fmt.Errorf("%w: at least one sink is required", ErrInvalidConfig)
	}
	if o.handoff > 0 {
		cfg.Handoff = o.handoff
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	lifecycle := app.NewLifecycle(logger, emitter)
	stats := app.NewStats()

	dispatcher := app.NewDispatcher(sink.NewMulti(o.sinks...), cfg.Handoff, logger,
		func(err error, tuple *domain.AlignedTuple) {
			stats.AddSinkError()
			emitter.OnSinkError(err, tuple)
		})

	syncer, err := app.NewSynchronizer(cfg.syncConfig(), dispatcher, logger, emitter, stats)
	if err != nil {
		_ = dispatcher.Close()
		return nil, err
	}

	statusRepo := o.statusRepo
	if statusRepo == nil && cfg.StateDir != "" {
		statusRepo = fs.NewStatusFileRepository(cfg.StateDir)
	}

	var agent *app.Agent
	if o.reader != nil {
		decoder := o.decoder
		if decoder == nil {
			decoder = decode.New(nil)
		}
		agent = app.NewAgent(app.AgentConfig{
			PollInterval:   cfg.PollInterval,
			Workers:        cfg.Workers,
			StatusInterval: cfg.StatusInterval,
			Once:           cfg.Once,
		}, o.reader, decoder, syncer, statusRepo, logger, emitter)
	}

	return &Syncer{
		config:     cfg,
		opts:       o,
		lifecycle:  lifecycle,
		stats:      stats,
		syncer:     syncer,
		dispatcher: dispatcher,
		agent:      agent,
		statusRepo: statusRepo,
		logger:     logger,
		plugins:    o.plugins,
		done:       make(chan struct{}),
	}, nil
}

// Start begins synchronizing in the background and returns immediately.
// Returns an error if already running, if the instance was stopped before, or
// if a plugin fails to initialize.
// The provided context is used for the lifetime of the run.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrClosed
	}
	if !s.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}

	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	pluginCfg := PluginConfig{
		Streams:    s.config.streamIDs(),
		StateDir:   s.config.StateDir,
		ConfigPath: s.config.ConfigPath,
		Tuner:      s,
		Logger:     s.logger,
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			cancel()
			_ = s.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	s.lifecycle.Go(func() {
		defer close(s.done)

		if err := s.lifecycle.TransitionTo(app.StateRunning, "synchronizer running"); err != nil {
			s.logger.Error("failed to transition to running", ports.Err(err))
			return
		}

		if s.agent == nil {
			s.statusLoop(runCtx)
			return
		}

		// An error after cancellation is the shutdown itself, not a failure.
		if err := s.agent.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error("source error", ports.Err(err))
			_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	})

	return nil
}

// Stop cancels the run, shuts plugins down, drains the tuples still queued for
// the sinks and closes them. Waits up to 30 seconds for the source loop.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Syncer) Stop() error {
	s.mu.Lock()

	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return ErrNotRunning
	}

	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.finished = true

	s.mu.Unlock()

	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(shutdownErr))
		} else {
			s.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	if closeErr := s.Close(); closeErr != nil {
		s.logger.Error("closing sinks failed", ports.Err(closeErr))
	}

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}

	return err
}

// Close drains queued tuples, closes the sinks and saves a final status.
// Stop calls it; call it directly only to release an instance that crashed.
// Close is idempotent.
func (s *Syncer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()

		s.closeErr = s.dispatcher.Close()
		s.saveStatus(context.Background())
	})
	return s.closeErr
}

// Push queues m and emits every tuple it completes.
// Returns ErrNotRunning unless the Syncer is starting or running,
// ErrUnknownStream for unconfigured streams, and an error wrapping
// ErrSinkFailed when the tuple could not be handed to the sinks.
func (s *Syncer) Push(ctx context.Context, m Message) error {
	if !s.lifecycle.IsRunning() {
		return ErrNotRunning
	}
	return s.syncer.Push(ctx, m)
}

// SetTolerance replaces the tolerance and emits any tuples the new value allows.
func (s *Syncer) SetTolerance(ctx context.Context, tolerance time.Duration) error {
	return s.syncer.SetTolerance(ctx, tolerance)
}

// Tolerance returns the tolerance in effect.
func (s *Syncer) Tolerance() time.Duration {
	return s.syncer.Tolerance()
}

// Streams returns the configured streams in tuple order.
func (s *Syncer) Streams() []StreamID {
	return s.syncer.Streams()
}

// Stats returns counters, queue depths and the spread distribution so far.
func (s *Syncer) Stats() Stats {
	st := s.syncer.Status()
	st.Handoff = s.dispatcher.Pending()
	last := s.lifecycle.Last()
	st.State = last.To.String()
	st.StateReason = last.Reason
	return st
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Syncer) Status() State {
	return convertState(s.lifecycle.State())
}

// Done is closed when the run ends: the source drained in Once mode, the
// source failed, or the context was canceled.
func (s *Syncer) Done() <-chan struct{} {
	return s.done
}

// statusLoop saves status periodically for instances fed through Push.
func (s *Syncer) statusLoop(ctx context.Context) {
	if s.statusRepo == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.saveStatus(ctx)
		}
	}
}

func (s *Syncer) saveStatus(ctx context.Context) {
	if s.statusRepo == nil {
		return
	}
	if err := s.statusRepo.Save(ctx, s.Stats()); err != nil {
		s.logger.Error("failed to save status", ports.Err(err))
	}
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnTupleEmitted(tuple *domain.AlignedTuple) {
	if e.handler == nil {
		return
	}
	e.handler.OnTuple(TupleEvent{Tuple: tuple})
}

func (e *eventEmitterWrapper) OnMessageDropped(msg domain.Message, reason app.DropReason) {
	if e.handler == nil {
		return
	}
	e.handler.OnDrop(DropEvent{Message: msg, Reason: reason})
}

func (e *eventEmitterWrapper) OnSinkError(err error, tuple *domain.AlignedTuple) {
	if e.handler == nil {
		return
	}
	e.handler.OnSinkError(SinkErrorEvent{Error: err, Tuple: tuple})
}

func (e *eventEmitterWrapper) OnDecodeError(err error, rec domain.Record) {
	if e.handler == nil {
		return
	}
	e.handler.OnDecodeError(DecodeErrorEvent{Error: err, Record: rec})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

var _ Tuner = (*Syncer)(nil)

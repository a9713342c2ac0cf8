package app

import (
	"slices"
	"sync"
	"time"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// ShutdownTimeout is the maximum time to wait for the ingest loop and the
// sink writer to finish.
const ShutdownTimeout = 30 * time.Second

// State represents the lifecycle state of a sensorsync instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}

// String returns a human-readable representation of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the states each state may move to. Stop may arrive
// before the ingest loop reports running, hence Starting -> Stopping.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// Transition records one state change.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle guards the state of a sensorsync instance and tracks its
// background workers.
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	last    Transition
	workers sync.WaitGroup
	logger  ports.Logger
	emitter EventEmitter
}

// NewLifecycle creates a lifecycle in StateStopped.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:   StateStopped,
		last:    Transition{From: StateStopped, To: StateStopped, Reason: "created", At: time.Now()},
		logger:  logger,
		emitter: emitter,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Last returns the most recent transition.
func (l *Lifecycle) Last() Transition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// TransitionTo moves to next if the transition table allows it. Leaving an
// idle state the wrong way yields ErrNotRunning, leaving an active one
// ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !slices.Contains(transitions[prev], next) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.last = Transition{From: prev, To: next, Reason: reason, At: time.Now()}
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

func (l *Lifecycle) in(states ...State) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(states, l.state)
}

// CanStart reports whether Start may be called.
func (l *Lifecycle) CanStart() bool { return l.in(StateStopped, StateCrashed) }

// CanStop reports whether Stop may be called.
func (l *Lifecycle) CanStop() bool { return l.in(StateStarting, StateRunning) }

// IsRunning reports whether the instance accepts pushes.
func (l *Lifecycle) IsRunning() bool { return l.in(StateStarting, StateRunning) }

// Go runs fn as a tracked worker.
func (l *Lifecycle) Go(fn func()) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

// WaitWithTimeout waits for every worker started with Go.
// Returns ErrShutdownTimeout if the timeout expires first.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("workers still running after timeout",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}

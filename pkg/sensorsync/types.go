package sensorsync

import (
	"context"
	"time"

	"github.com/bft-labs/sensorsync/internal/adapters/sink"
	"github.com/bft-labs/sensorsync/internal/app"
	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// Domain types re-exported for library users.
type (
	// StreamID identifies one source of timestamped messages.
	StreamID = domain.StreamID

	// Message is one observation from one stream.
	Message = domain.Message

	// AlignedTuple is one message per stream, all within the tolerance.
	AlignedTuple = domain.AlignedTuple

	// Payload is the stream-specific content of a Message.
	Payload = domain.Payload

	// Record is an undecoded arrival read from a RecordReader.
	Record = domain.Record

	// Stats is a point-in-time summary of a run.
	Stats = domain.Status

	// DropReason says why a message left a queue without joining a tuple.
	DropReason = app.DropReason
)

// Ports re-exported for library users.
type (
	// Sink consumes aligned tuples.
	Sink = ports.Sink

	// RecordReader delivers undecoded arrivals from a feed.
	RecordReader = ports.RecordReader

	// RecordFlusher is an optional RecordReader extension that yields an
	// unterminated last line once a run-once feed is drained.
	RecordFlusher = ports.RecordFlusher

	// Decoder turns records into payloads.
	Decoder = ports.Decoder

	// StatusRepository persists run status.
	StatusRepository = ports.StatusRepository

	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// LogField represents a structured log field.
	LogField = ports.Field

	// SinkFunc adapts a function to Sink. Close is a no-op.
	SinkFunc = sink.Func
)

// Drop reasons reported to EventHandler.OnDrop.
const (
	DropEvicted   = app.DropEvicted
	DropStale     = app.DropStale
	DropDuplicate = app.DropDuplicate
	DropMalformed = app.DropMalformed
)

// Errors returned by the public API. Check them with errors.Is.
var (
	ErrAlreadyRunning   = domain.ErrAlreadyRunning
	ErrNotRunning       = domain.ErrNotRunning
	ErrShutdownTimeout  = domain.ErrShutdownTimeout
	ErrInvalidConfig    = domain.ErrInvalidConfig
	ErrUnknownStream    = domain.ErrUnknownStream
	ErrMalformedPayload = domain.ErrMalformedPayload
	ErrSinkFailed       = domain.ErrSinkFailed
	ErrClosed           = domain.ErrClosed
)

// NewMessage creates a message stamped in unix nanoseconds.
func NewMessage(stream StreamID, timestamp int64, payload Payload) Message {
	return domain.NewMessage(stream, timestamp, payload)
}

// State represents the lifecycle state of a Syncer.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// CanStart reports whether Start may be called in this state.
func (s State) CanStart() bool {
	return s == StateStopped || s == StateCrashed
}

// CanStop reports whether Stop may be called in this state.
func (s State) CanStop() bool {
	return s == StateRunning || s == StateStarting
}

// IsRunning reports whether the Syncer is accepting messages.
func (s State) IsRunning() bool {
	return s == StateRunning
}

// Events delivered to an EventHandler.
type (
	// StateChangeEvent is emitted on every lifecycle transition.
	StateChangeEvent struct {
		Previous State
		Current  State
		Reason   string
	}

	// TupleEvent is emitted when a tuple is matched, before it is handed to the sinks.
	TupleEvent struct {
		Tuple *AlignedTuple
	}

	// DropEvent is emitted when a message is discarded without joining a tuple.
	DropEvent struct {
		Message Message
		Reason  DropReason
	}

	// SinkErrorEvent is emitted when a sink rejects a tuple.
	SinkErrorEvent struct {
		Error error
		Tuple *AlignedTuple
	}

	// DecodeErrorEvent is emitted when a source record cannot be decoded.
	DecodeErrorEvent struct {
		Error  error
		Record Record
	}
)

// EventHandler receives notifications about Syncer operations.
//
// OnTuple and OnDrop are called while the matching lock is held and must not
// call back into the Syncer. OnSinkError is called from the sink writer goroutine.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnTuple(event TupleEvent)
	OnDrop(event DropEvent)
	OnSinkError(event SinkErrorEvent)
	OnDecodeError(event DecodeErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle a
// subset of events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnTuple(TupleEvent)             {}
func (BaseEventHandler) OnDrop(DropEvent)               {}
func (BaseEventHandler) OnSinkError(SinkErrorEvent)     {}
func (BaseEventHandler) OnDecodeError(DecodeErrorEvent) {}

// Tuner adjusts a running Syncer. *Syncer implements it.
type Tuner interface {
	Tolerance() time.Duration
	SetTolerance(ctx context.Context, tolerance time.Duration) error
}

// PluginConfig is handed to every plugin on Start.
type PluginConfig struct {
	Streams    []StreamID
	StateDir   string
	ConfigPath string
	Tuner      Tuner
	Logger     Logger
}

// Plugin extends a Syncer with optional behavior. Plugins are initialized in
// registration order on Start and shut down in reverse order on Stop.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// BasePlugin implements Plugin with no-ops. Embed it and override what you need.
type BasePlugin struct {
	name string
}

// NewBasePlugin creates a BasePlugin with the given name.
func NewBasePlugin(name string) BasePlugin {
	return BasePlugin{name: name}
}

func (p BasePlugin) Name() string                                  { return p.name }
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }
func (BasePlugin) Shutdown(context.Context) error                 { return nil }

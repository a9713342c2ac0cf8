package sensorsync

import (
	"github.com/bft-labs/sensorsync/internal/adapters/sink"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// Option configures optional behavior of a Syncer.
type Option func(*options)

// options holds the optional configuration for a Syncer instance.
type options struct {
	logger       ports.Logger
	eventHandler EventHandler
	plugins      []Plugin
	sinks        []sink.Named
	reader       ports.RecordReader
	decoder      ports.Decoder
	handoff      int
	statusRepo   ports.StatusRepository
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSink adds a sink. Every tuple is delivered to each sink in the order
// they were added; a failing sink does not stop delivery to the others.
// The Syncer owns the sink and closes it on Stop.
func WithSink(name string, s Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sink.Named{Name: name, Sink: s})
	}
}

// WithSource makes the Syncer read records from reader, decode them with
// decoder and push them itself. A nil decoder passes payloads through as raw bytes.
func WithSource(reader RecordReader, decoder Decoder) Option {
	return func(o *options) {
		o.reader = reader
		o.decoder = decoder
	}
}

// WithEventHandler sets a handler for sensorsync events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the Syncer starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithHandoff overrides Config.Handoff, the number of tuples buffered between
// matching and the sinks.
func WithHandoff(n int) Option {
	return func(o *options) {
		o.handoff = n
	}
}

// WithStatusRepository replaces the status.json file written to Config.StateDir.
func WithStatusRepository(repo StatusRepository) Option {
	return func(o *options) {
		o.statusRepo = repo
	}
}

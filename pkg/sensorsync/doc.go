// Package sensorsync provides an embeddable approximate-time synchronizer for
// multi-sensor recordings.
//
// A Syncer keeps one bounded queue per stream. Every new message triggers a
// matching pass; when each stream holds a message and the timestamps of the
// best combination lie within the tolerance, the combination is emitted as an
// [AlignedTuple] and handed to the sinks. Tuples are emitted in
// non-decreasing reference order (the reference is the earliest member
// timestamp) and no message joins more than one tuple.
//
// # Basic Usage
//
//	cfg := sensorsync.DefaultConfig()
//	cfg.Streams = []sensorsync.StreamConfig{{Name: "depth"}, {Name: "rgb"}}
//	cfg.Tolerance = 20 * time.Millisecond
//
//	s, err := sensorsync.New(cfg,
//	    sensorsync.WithSink("print", sensorsync.SinkFunc(func(ctx context.Context, t *sensorsync.AlignedTuple) error {
//	        fmt.Println(t.Reference, t.Spread)
//	        return nil
//	    })),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	_ = s.Push(ctx, sensorsync.NewMessage("depth", stamp, payload))
//	...
//	if err := s.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Sources
//
// Instead of calling Push, register a [RecordReader] and a [Decoder] with
// [WithSource]. The Syncer then reads, decodes on a bounded worker pool and
// pushes by itself. With Config.Once set the run ends when the feed is
// drained and [Syncer.Done] is closed.
//
// # Sinks
//
// Tuples are handed to the sinks through a bounded queue drained by a single
// writer, so a slow sink only stalls matching once the queue is full. Sink
// failures are counted, logged and reported to [EventHandler.OnSinkError];
// the tuple is not redelivered.
//
// # Lifecycle States
//
// A Syncer can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Syncer.Status] to
// query the current state and [Syncer.Stats] for counters and the spread
// distribution.
//
// # Plugins
//
// Plugins receive a [Tuner] on Start and can adjust the running instance:
//
//	import "github.com/bft-labs/sensorsync/plugins/configwatcher"
//
//	cfg.ConfigPath = "/etc/sensorsync/config.toml"
//	s, err := sensorsync.New(cfg,
//	    sensorsync.WithSink("csv", csvSink),
//	    configwatcher.WithDefaultConfigWatcher(),
//	)
package sensorsync

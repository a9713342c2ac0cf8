// Package sensorsync runs an approximate-time synchronizer to completion.
//
// Example usage:
//
//	import (
//	    "github.com/bft-labs/sensorsync"
//	    syncer "github.com/bft-labs/sensorsync/pkg/sensorsync"
//	)
//
//	cfg := sensorsync.DefaultConfig()
//	cfg.Once = true
//	err := sensorsync.Run(ctx, cfg,
//	    syncer.WithSource(reader, decoder),
//	    syncer.WithSink("csv", csvSink),
//	)
//
// For long-lived or embedded use, build a Syncer from pkg/sensorsync directly.
package sensorsync

import (
	"context"
	"errors"

	"github.com/bft-labs/sensorsync/pkg/sensorsync"
)

// Config holds the synchronizer configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = sensorsync.Config

// DefaultConfig returns a Config for the default sensor rig.
func DefaultConfig() Config {
	return sensorsync.DefaultConfig()
}

// Run builds a Syncer, starts it and blocks until the run ends or ctx is
// cancelled, then stops it. With cfg.Once and a source the run ends when the
// feed is drained. Without a source it runs until ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts ...sensorsync.Option) error {
	s, err := sensorsync.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.Done():
	}

	if s.Status() == sensorsync.StateCrashed {
		_ = s.Close()
		return errors.New("sensorsync: source failed")
	}
	if err := s.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

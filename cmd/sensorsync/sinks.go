package main

import (
	"fmt"
	"os"

	csvsink "github.com/bft-labs/sensorsync/internal/adapters/csv"
	"github.com/bft-labs/sensorsync/internal/adapters/decode"
	httpsink "github.com/bft-labs/sensorsync/internal/adapters/http"
	"github.com/bft-labs/sensorsync/internal/adapters/sqlite"
	"github.com/bft-labs/sensorsync/internal/cliconfig"
	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/pkg/sensorsync"
)

type namedSink struct {
	name string
	sink sensorsync.Sink
}

// sinkSet holds the sinks opened for a run in registration order.
type sinkSet []namedSink

func (ss sinkSet) options() []sensorsync.Option {
	opts := make([]sensorsync.Option, 0, len(ss))
	for _, ns := range ss {
		opts = append(opts, sensorsync.WithSink(ns.name, ns.sink))
	}
	return opts
}

func (ss sinkSet) closeAll() {
	for _, ns := range ss {
		_ = ns.sink.Close()
	}
}

// openSinks opens every sink the configuration names. On error the sinks
// opened so far are closed.
func openSinks(cfg cliconfig.Config, logger sensorsync.Logger) (sinkSet, error) {
	var ss sinkSet

	if cfg.OutDir != "" {
		cs, err := csvsink.NewSink(csvsink.DefaultConfig(cfg.OutDir), logger)
		if err != nil {
			ss.closeAll()
			return nil, fmt.Errorf("open csv sink: %w", err)
		}
		ss = append(ss, namedSink{name: "csv", sink: cs})
	}

	if cfg.IndexDB != "" {
		idx, err := sqlite.Open(cfg.IndexDB, logger)
		if err != nil {
			ss.closeAll()
			return nil, fmt.Errorf("open index: %w", err)
		}
		ss = append(ss, namedSink{name: "index", sink: idx})
	}

	if cfg.SinkURL != "" {
		hs := httpsink.NewTupleSink(httpsink.SinkConfig{
			ServiceURL: cfg.SinkURL,
			AuthKey:    cfg.AuthKey,
			Hostname:   hostname(),
		}, httpsink.NewDefaultClient(cfg.HTTPTimeout), logger)
		ss = append(ss, namedSink{name: "http", sink: hs})
	}

	return ss, nil
}

// decoderKinds maps each configured stream to its payload kind. Streams
// without an explicit kind use the default rig's kind for their name.
func decoderKinds(streams []cliconfig.StreamConfig) map[domain.StreamID]domain.PayloadKind {
	defaults := decode.DefaultKinds()
	kinds := make(map[domain.StreamID]domain.PayloadKind, len(streams))
	for _, sc := range streams {
		id := domain.StreamID(sc.Name)
		switch {
		case sc.Kind != "":
			kinds[id] = domain.PayloadKind(sc.Kind)
		case defaults[id] != "":
			kinds[id] = defaults[id]
		default:
			kinds[id] = domain.KindRaw
		}
	}
	return kinds
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

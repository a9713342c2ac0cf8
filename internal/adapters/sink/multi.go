// Package sink combines several tuple sinks into one.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// Named pairs a sink with a name used in errors.
type Named struct {
	Name string
	Sink ports.Sink
}

// Multi delivers every tuple to each sink in order. A failing sink does not
// stop delivery to the others; all failures are returned joined.
type Multi struct {
	sinks []Named
}

// NewMulti creates a fan-out over sinks.
func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) Accept(ctx context.Context, tuple *domain.AlignedTuple) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Accept(ctx, tuple); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every tuple.
type Discard struct{}

func (Discard) Accept(context.Context, *domain.AlignedTuple) error { return nil }
func (Discard) Close() error                                      { return nil }

// Func adapts a function to ports.Sink.
type Func func(ctx context.Context, tuple *domain.AlignedTuple) error

func (f Func) Accept(ctx context.Context, tuple *domain.AlignedTuple) error { return f(ctx, tuple) }
func (Func) Close() error                                                { return nil }

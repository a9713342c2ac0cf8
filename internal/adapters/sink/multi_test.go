package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bft-labs/sensorsync/internal/domain"
)

type countingSink struct {
	accepted int
	closed   bool
	err      error
}

func (c *countingSink) Accept(context.Context, *domain.AlignedTuple) error {
	c.accepted++
	return c.err
}

func (c *countingSink) Close() error {
	c.closed = true
	return c.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &countingSink{}, &countingSink{err: boom}, &countingSink{}
	m := NewMulti(Named{"a", a}, Named{"b", b}, Named{"c", c})

	err := m.Accept(context.Background(), &domain.AlignedTuple{})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "b: boom") {
		t.Errorf("Accept() error = %v, want wrapped boom from b", err)
	}
	if a.accepted != 1 || b.accepted != 1 || c.accepted != 1 {
		t.Errorf("accepted = %d %d %d, want 1 each", a.accepted, b.accepted, c.accepted)
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want boom", err)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Error("not every sink was closed")
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestMulti_Empty(t *testing.T) {
	m := NewMulti()
	if err := m.Accept(context.Background(), &domain.AlignedTuple{}); err != nil {
		t.Errorf("Accept() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFunc(t *testing.T) {
	var got string
	f := Func(func(_ context.Context, tup *domain.AlignedTuple) error {
		got = tup.ID
		return nil
	})
	_ = f.Accept(context.Background(), &domain.AlignedTuple{ID: "t1"})
	if got != "t1" {
		t.Errorf("got %q, want t1", got)
	}
	if err := (Discard{}).Accept(context.Background(), nil); err != nil {
		t.Errorf("Discard.Accept() error = %v", err)
	}
}

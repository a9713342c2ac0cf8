package app

import (
	"context"
	"sync"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// DefaultHandoffSize is the default number of tuples buffered between the
// synchronizer and a slow sink.
const DefaultHandoffSize = 64

type handoff struct {
	ctx   context.Context
	tuple *domain.AlignedTuple
}

// Dispatcher is a Sink that hands tuples to a single writer goroutine through a
// bounded FIFO queue, so a slow sink does not stall matching until the queue
// fills. Tuples reach the wrapped sink in the order they were accepted.
type Dispatcher struct {
	next    ports.Sink
	logger  ports.Logger
	onError func(err error, tuple *domain.AlignedTuple)

	mu     sync.RWMutex
	closed bool
	queue  chan handoff
	done   chan struct{}
}

// NewDispatcher starts a writer goroutine delivering to next.
// onError, if non-nil, is called from the writer goroutine for every tuple next rejects.
func NewDispatcher(next ports.Sink, size int, logger ports.Logger, onError func(error, *domain.AlignedTuple)) *Dispatcher {
	if size <= 0 {
		size = DefaultHandoffSize
	}
	d := &Dispatcher{
		next:    next,
		logger:  logger,
		onError: onError,
		queue:   make(chan handoff, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Accept queues tuple for the writer. It blocks while the queue is full and
// returns ctx.Err() if ctx ends first. Write errors are not returned here;
// they go to the logger and onError.
func (d *Dispatcher) Accept(ctx context.Context, tuple *domain.AlignedTuple) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return domain.ErrClosed
	}

	select {
	case d.queue <- handoff{ctx: context.WithoutCancel(ctx), tuple: tuple}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of tuples waiting for the writer.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting tuples, waits for the writer to drain the queue and
// closes the wrapped sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return d.next.Close()
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for h := range d.queue {
		if err := d.next.Accept(h.ctx, h.tuple); err != nil {
			d.logger.Error("sink write failed",
				ports.String("id", h.tuple.ID),
				ports.Err(err),
			)
			if d.onError != nil {
				d.onError(err, h.tuple)
			}
		}
	}
}

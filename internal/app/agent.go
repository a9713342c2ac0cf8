package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// DefaultWorkers is the default size of the decode worker pool.
const DefaultWorkers = 4

// AgentConfig contains configuration for the ingest loop.
type AgentConfig struct {
	// PollInterval is how long to wait for new records once the feed is drained
	PollInterval time.Duration

	// Workers bounds the number of records decoded concurrently.
	// Messages are pushed in read order whatever the pool size.
	Workers int

	// StatusInterval is the minimum time between status saves
	StatusInterval time.Duration

	// Once stops the loop when the feed is drained instead of polling
	Once bool
}

// AgentEventEmitter is called when a record cannot be decoded.
type AgentEventEmitter interface {
	OnDecodeError(err error, rec domain.Record)
}

// Agent reads records from a feed, decodes them on a bounded worker pool and
// pushes the resulting messages into the synchronizer in the order they were
// read.
type Agent struct {
	config     AgentConfig
	reader     ports.RecordReader
	decoder    ports.Decoder
	syncer     *Synchronizer
	statusRepo ports.StatusRepository
	logger     ports.Logger
	emitter    AgentEventEmitter
	stats      *Stats

	lastStatus time.Time
}

// NewAgent creates a new agent with the given dependencies.
// statusRepo and emitter may be nil.
func NewAgent(
	config AgentConfig,
	reader ports.RecordReader,
	decoder ports.Decoder,
	syncer *Synchronizer,
	statusRepo ports.StatusRepository,
	logger ports.Logger,
	emitter AgentEventEmitter,
) *Agent {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	return &Agent{
		config:     config,
		reader:     reader,
		decoder:    decoder,
		syncer:     syncer,
		statusRepo: statusRepo,
		logger:     logger,
		emitter:    emitter,
		stats:      syncer.stats,
	}
}

// Run executes the ingest loop.
// It returns nil when Once is set and the feed is drained, ctx.Err() when the
// context is canceled, or an error if the feed cannot be opened.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.reader.Open(ctx); err != nil {
		return err
	}
	defer a.reader.Close()

	var pool errgroup.Group
	pool.SetLimit(a.config.Workers)
	turns := newTurnstile()
	var seq uint64
	dispatch := func(rec domain.Record) {
		n := seq
		seq++
		pool.Go(func() error {
			a.ingest(ctx, rec, turns, n)
			return nil
		})
	}
	defer func() {
		_ = pool.Wait()
		a.saveStatus(context.WithoutCancel(ctx), true)
	}()

	backoff := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := a.reader.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if a.config.Once {
					if tail, ok := a.flushTail(ctx); ok {
						dispatch(tail)
					}
				}
				// Drained: let in-flight decodes land before deciding to stop.
				_ = pool.Wait()
				a.saveStatus(ctx, false)

				if a.config.Once {
					return nil
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(a.config.PollInterval):
					continue
				}
			}

			if errors.Is(err, domain.ErrMalformedPayload) {
				a.decodeFailed(err, rec)
				continue
			}

			a.logger.Error("read error", ports.Err(err))
			if werr := backoff.Wait(ctx); werr != nil {
				return werr
			}
			continue
		}
		backoff.Reset()

		dispatch(rec)
		a.saveStatus(ctx, false)
	}
}

// ingest decodes one record, then waits for turn seq to push it. Failures
// are reported, never returned.
func (a *Agent) ingest(ctx context.Context, rec domain.Record, turns *turnstile, seq uint64) {
	payload, err := a.decoder.Decode(rec)
	turns.do(seq, func() {
		if err != nil {
			a.decodeFailed(err, rec)
			return
		}
		a.push(ctx, rec, payload)
	})
}

func (a *Agent) push(ctx context.Context, rec domain.Record, payload domain.Payload) {
	msg := domain.NewMessage(rec.Stream, rec.Timestamp, payload)
	if err := a.syncer.Push(ctx, msg); err != nil {
		// Sink failures were already logged by the synchronizer.
		if !errors.Is(err, domain.ErrSinkFailed) {
			a.logger.Warn("push rejected",
				ports.String("stream", string(rec.Stream)),
				ports.Int64("line", rec.Line),
				ports.Err(err),
			)
		}
	}
}

// flushTail returns the unterminated last line of a drained feed when the
// reader holds one back.
func (a *Agent) flushTail(ctx context.Context) (domain.Record, bool) {
	f, ok := a.reader.(ports.RecordFlusher)
	if !ok {
		return domain.Record{}, false
	}
	rec, err := f.Flush(ctx)
	switch {
	case err == nil:
		return rec, true
	case errors.Is(err, io.EOF):
	case errors.Is(err, domain.ErrMalformedPayload):
		a.decodeFailed(err, rec)
	default:
		a.logger.Error("read error", ports.Err(err))
	}
	return domain.Record{}, false
}

func (a *Agent) decodeFailed(err error, rec domain.Record) {
	a.stats.addDrop(DropMalformed)
	a.logger.Warn("dropping malformed record",
		ports.String("stream", string(rec.Stream)),
		ports.Int64("line", rec.Line),
		ports.Err(err),
	)
	if a.emitter != nil {
		a.emitter.OnDecodeError(err, rec)
	}
}

// saveStatus persists the synchronizer status when the interval has elapsed
// or force is set.
func (a *Agent) saveStatus(ctx context.Context, force bool) {
	if a.statusRepo == nil {
		return
	}
	if !force && time.Since(a.lastStatus) < a.config.StatusInterval {
		return
	}
	a.lastStatus = time.Now()

	if err := a.statusRepo.Save(ctx, a.syncer.Status()); err != nil {
		a.logger.Error("failed to save status", ports.Err(err))
	}
}

// turnstile lets concurrent workers run a step strictly in sequence order.
type turnstile struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
}

func newTurnstile() *turnstile {
	t := &turnstile{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// do blocks until every sequence number below seq has run, then runs fn.
func (t *turnstile) do(seq uint64, fn func()) {
	t.mu.Lock()
	for t.next != seq {
		t.cond.Wait()
	}
	t.mu.Unlock()

	fn()

	t.mu.Lock()
	t.next++
	t.cond.Broadcast()
	t.mu.Unlock()
}

package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

// StreamSpec configures one synchronized stream.
type StreamSpec struct {
	ID       domain.StreamID
	Capacity int
}

// SyncConfig contains configuration for the synchronizer.
type SyncConfig struct {
	// Streams lists the streams that make up a tuple, in tuple order
	Streams []StreamSpec

	// Tolerance is the maximum timestamp spread allowed inside a tuple
	Tolerance time.Duration
}

// DefaultStreamSpecs returns the default sensor rig with capacity applied to
// every stream.
func DefaultStreamSpecs(capacity int) []StreamSpec {
	ids := domain.DefaultStreams()
	specs := make([]StreamSpec, len(ids))
	for i, id := range ids {
		specs[i] = StreamSpec{ID: id, Capacity: capacity}
	}
	return specs
}

// Validate checks the configuration for errors.
func (c SyncConfig) Validate() error {
	if len(c.Streams) == 0 {
		return fmt.Errorf("%w: at least one stream is required", domain.ErrInvalidConfig)
	}
	seen := make(map[domain.StreamID]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.ID == "" {
			return fmt.Errorf("%w: stream name is empty", domain.ErrInvalidConfig)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate stream %q", domain.ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// DropReason says why a message left a queue without joining a tuple.
type DropReason string

const (
	DropEvicted   DropReason = "evicted"
	DropStale     DropReason = "stale"
	DropDuplicate DropReason = "duplicate"
	DropMalformed DropReason = "malformed"
)

// SyncEventEmitter is called when the synchronizer emits a tuple or drops a message.
// Calls happen while the synchronizer lock is held; implementations must not
// call back into the synchronizer.
type SyncEventEmitter interface {
	OnTupleEmitted(tuple *domain.AlignedTuple)
	OnMessageDropped(msg domain.Message, reason DropReason)
	OnSinkError(err error, tuple *domain.AlignedTuple)
}

// Synchronizer aligns messages from several streams into tuples.
//
// Every push triggers one matching pass. The pushed message is the pivot: each
// other stream must hold a message within the tolerance of the pivot, and among
// all such combinations the one with the smallest timestamp spread is emitted.
// Ties go to the earliest combination. Tuple references (earliest member
// timestamp) never decrease; messages older than the last reference are pruned
// and late arrivals older than it are dropped as stale.
//
// All queue mutation, matching and sink delivery happen under one lock.
type Synchronizer struct {
	mu        sync.Mutex
	streams   []domain.StreamID
	queues    map[domain.StreamID]*domain.StreamQueue
	tolerance time.Duration

	sink    ports.Sink
	logger  ports.Logger
	emitter SyncEventEmitter
	stats   *Stats

	lastRef    int64
	hasEmitted bool
}

// NewSynchronizer creates a synchronizer delivering to sink.
// stats may be nil, in which case a private Stats is created.
func NewSynchronizer(
	cfg SyncConfig,
	sink ports.Sink,
	logger ports.Logger,
	emitter SyncEventEmitter,
	stats *Stats,
) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", domain.ErrInvalidConfig)
	}
	if stats == nil {
		stats = NewStats()
	}

	s := &Synchronizer{
		queues:    make(map[domain.StreamID]*domain.StreamQueue, len(cfg.Streams)),
		tolerance: cfg.Tolerance,
		sink:      sink,
		logger:    logger,
		emitter:   emitter,
		stats:     stats,
	}
	for _, spec := range cfg.Streams {
		s.streams = append(s.streams, spec.ID)
		s.queues[spec.ID] = domain.NewStreamQueue(spec.ID, spec.Capacity)
	}
	return s, nil
}

// Streams returns the configured streams in tuple order.
func (s *Synchronizer) Streams() []domain.StreamID {
	return slices.Clone(s.streams)
}

// Push queues m and emits every tuple that becomes possible.
//
// Missing data is never an error. Push returns ErrUnknownStream for streams
// that are not configured, and an error wrapping ErrSinkFailed when the sink
// rejects a tuple; in that case the tuple has still been removed from the queues.
func (s *Synchronizer) Push(ctx context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[m.Stream]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownStream, m.Stream)
	}
	s.stats.addPushed()

	if s.hasEmitted && m.Timestamp < s.lastRef {
		s.drop(m, DropStale)
		return nil
	}

	res, evicted := q.Push(m)
	switch res {
	case domain.PushDuplicate:
		s.drop(m, DropDuplicate)
		return nil
	case domain.PushEvicted:
		s.drop(evicted, DropEvicted)
		if evicted.Same(m) {
			return nil
		}
	}

	return s.match(ctx, m)
}

// SetTolerance replaces the tolerance and emits any tuples the new value allows.
func (s *Synchronizer) SetTolerance(ctx context.Context, tolerance time.Duration) error {
	if tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative", domain.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tolerance == s.tolerance {
		return nil
	}
	s.logger.Info("tolerance changed",
		ports.Duration("from", s.tolerance),
		ports.Duration("to", tolerance),
	)
	s.tolerance = tolerance

	return s.sweep(ctx)
}

// Tolerance returns the tolerance in effect.
func (s *Synchronizer) Tolerance() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tolerance
}

// QueueLen returns the number of pending messages for stream.
func (s *Synchronizer) QueueLen(stream domain.StreamID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[stream]; ok {
		return q.Len()
	}
	return 0
}

// Pending returns a copy of the pending messages for stream, oldest first.
func (s *Synchronizer) Pending(stream domain.StreamID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[stream]; ok {
		return q.Snapshot()
	}
	return nil
}

// Status returns a summary of the synchronizer state.
func (s *Synchronizer) Status() domain.Status {
	s.mu.Lock()
	depth := make(map[domain.StreamID]int, len(s.queues))
	evicted := make(map[domain.StreamID]uint64, len(s.queues))
	for id, q := range s.queues {
		depth[id] = q.Len()
		evicted[id] = q.Evicted()
	}
	tol := s.tolerance
	s.mu.Unlock()

	st := s.stats.Status()
	st.Tolerance = tol
	st.QueueDepth = depth
	st.QueueEvicted = evicted
	return st
}

// match runs one matching pass for a freshly queued trigger message.
func (s *Synchronizer) match(ctx context.Context, trigger domain.Message) error {
	s.prune()

	members := s.bestFor(trigger)
	if members == nil {
		return nil
	}
	err := s.emit(ctx, members)
	return errors.Join(err, s.sweep(ctx))
}

// sweep emits tuples until none can be formed, earliest pivot first.
func (s *Synchronizer) sweep(ctx context.Context) error {
	var errs []error
	for {
		s.prune()
		members := s.earliest()
		if members == nil {
			return errors.Join(errs...)
		}
		if err := s.emit(ctx, members); err != nil {
			errs = append(errs, err)
		}
	}
}

// earliest returns the tuple found for the oldest pivot that has one.
func (s *Synchronizer) earliest() []domain.Message {
	var all []domain.Message
	for _, id := range s.streams {
		q := s.queues[id]
		if q.IsEmpty() {
			return nil
		}
		all = append(all, q.Snapshot()...)
	}
	slices.SortFunc(all, func(a, b domain.Message) int {
		return cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), cmp.Compare(a.Seq, b.Seq))
	})
	for _, pivot := range all {
		if members := s.bestFor(pivot); members != nil {
			return members
		}
	}
	return nil
}

// bestFor returns the tuple containing pivot with the smallest spread, or nil
// when some stream has no candidate or the best spread exceeds the tolerance.
//
// Members are returned in stream order.
func (s *Synchronizer) bestFor(pivot domain.Message) []domain.Message {
	r := pivot.Timestamp
	cands := make([][]domain.Message, len(s.streams))
	var lows []int64

	for i, id := range s.streams {
		if id == pivot.Stream {
			cands[i] = []domain.Message{pivot}
			lows = append(lows, r)
			continue
		}
		for m := range s.queues[id].Candidates(r, s.tolerance) {
			cands[i] = append(cands[i], m)
			if m.Timestamp <= r {
				lows = append(lows, m.Timestamp)
			}
		}
		if len(cands[i]) == 0 {
			return nil
		}
	}

	// A tuple containing the pivot starts at some candidate at or before r.
	// For a fixed start, taking the earliest candidate at or after it in every
	// stream minimizes the tuple's latest member.
	slices.Sort(lows)
	lows = slices.Compact(lows)

	var (
		best       []domain.Message
		bestSpread int64 = math.MaxInt64
	)
	members := make([]domain.Message, len(cands))
	for _, lo := range lows {
		first, last := r, r
		complete := true
		for i, list := range cands {
			j := sort.Search(len(list), func(k int) bool {
				return list[k].Timestamp >= lo
			})
			if j == len(list) {
				complete = false
				break
			}
			members[i] = list[j]
			first = min(first, list[j].Timestamp)
			last = max(last, list[j].Timestamp)
		}
		if !complete {
			continue
		}
		if spread := last - first; spread < bestSpread {
			best = slices.Clone(members)
			bestSpread = spread
		}
	}

	if best == nil || bestSpread > int64(s.tolerance) {
		return nil
	}
	return best
}

// emit removes members from their queues and delivers them as one tuple.
func (s *Synchronizer) emit(ctx context.Context, members []domain.Message) error {
	tuple := domain.NewAlignedTuple(members)
	for _, m := range members {
		s.queues[m.Stream].Consume(m)
	}
	s.lastRef = tuple.Reference
	s.hasEmitted = true
	s.stats.recordTuple(tuple)

	s.logger.Debug("tuple emitted",
		ports.String("id", tuple.ID),
		ports.Stamp("reference", tuple.Reference),
		ports.Duration("spread", tuple.Spread),
	)
	if s.emitter != nil {
		s.emitter.OnTupleEmitted(tuple)
	}

	if err := s.sink.Accept(ctx, tuple); err != nil {
		s.stats.addSinkError()
		s.logger.Error("sink rejected tuple",
			ports.String("id", tuple.ID),
			ports.Err(err),
		)
		if s.emitter != nil {
			s.emitter.OnSinkError(err, tuple)
		}
		return fmt.Errorf("%w: tuple %s: %w", domain.ErrSinkFailed, tuple.ID, err)
	}
	return nil
}

// prune drops messages that can no longer join a tuple without moving the
// reference backwards.
func (s *Synchronizer) prune() {
	if !s.hasEmitted {
		return
	}
	for _, id := range s.streams {
		if n := s.queues[id].PruneBefore(s.lastRef); n > 0 {
			s.stats.addPruned(n)
			s.logger.Debug("pruned stale messages",
				ports.String("stream", string(id)),
				ports.Int("count", n),
			)
		}
	}
}

func (s *Synchronizer) drop(m domain.Message, reason DropReason) {
	s.stats.addDrop(reason)
	s.logger.Debug("message dropped",
		ports.String("stream", string(m.Stream)),
		ports.Stamp("stamp", m.Timestamp),
		ports.String("reason", string(reason)),
	)
	if s.emitter != nil {
		s.emitter.OnMessageDropped(m, reason)
	}
}

package domain

import (
	"iter"
	"slices"
	"sort"
	"time"
)

// DefaultCapacity is the per-stream queue capacity used when none is configured.
const DefaultCapacity = 20

// PushResult reports what a Push did to the queue.
type PushResult int

const (
	// PushAccepted means the message was queued and nothing was evicted.
	PushAccepted PushResult = iota

	// PushEvicted means the message was queued and the oldest message was dropped.
	PushEvicted

	// PushDuplicate means the message was rejected because a message with the
	// same timestamp has already been consumed from this queue.
	PushDuplicate
)

// String returns a human-readable representation of the result.
func (r PushResult) String() string {
	switch r {
	case PushAccepted:
		return "accepted"
	case PushEvicted:
		return "evicted"
	case PushDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// StreamQueue is the bounded buffer of pending messages for one stream.
// Messages are kept in ascending timestamp order; equal timestamps keep
// insertion order. When the queue grows past its capacity the oldest message is
// evicted (drop-oldest).
//
// StreamQueue is not safe for concurrent use.
type StreamQueue struct {
	stream   StreamID
	capacity int
	items    []Message

	// consumed holds timestamps that already left the queue inside a tuple.
	consumed map[int64]struct{}

	evicted uint64
}

// NewStreamQueue creates an empty queue for stream with the given capacity.
// A non-positive capacity selects DefaultCapacity.
func NewStreamQueue(stream StreamID, capacity int) *StreamQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &StreamQueue{
		stream:   stream,
		capacity: capacity,
		items:    make([]Message, 0, capacity+1),
		consumed: make(map[int64]struct{}),
	}
}

// Stream returns the stream this queue buffers.
func (q *StreamQueue) Stream() StreamID {
	return q.stream
}

// Push inserts m in timestamp order.
// If the queue then exceeds its capacity, the oldest message is removed and
// returned together with PushEvicted. Overflow is not an error.
func (q *StreamQueue) Push(m Message) (PushResult, Message) {
	if _, ok := q.consumed[m.Timestamp]; ok {
		return PushDuplicate, Message{}
	}

	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Timestamp > m.Timestamp
	})
	q.items = slices.Insert(q.items, i, m)

	if len(q.items) <= q.capacity {
		return PushAccepted, Message{}
	}

	oldest := q.items[0]
	q.items = slices.Delete(q.items, 0, 1)
	q.evicted++
	return PushEvicted, oldest
}

// Candidates returns the messages whose timestamp lies in [ref-tol, ref+tol],
// oldest first. The sequence is lazy and can be ranged over more than once; it
// does not modify the queue and must not be used across a mutation.
func (q *StreamQueue) Candidates(ref int64, tol time.Duration) iter.Seq[Message] {
	lo, hi := ref-int64(tol), ref+int64(tol)
	return func(yield func(Message) bool) {
		start := sort.Search(len(q.items), func(i int) bool {
			return q.items[i].Timestamp >= lo
		})
		for _, m := range q.items[start:] {
			if m.Timestamp > hi {
				return
			}
			if !yield(m) {
				return
			}
		}
	}
}

// Remove deletes m by identity. It is a no-op returning false when m is not
// queued, for example because it was already evicted.
func (q *StreamQueue) Remove(m Message) bool {
	i := q.index(m)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// Consume removes m and records its timestamp as consumed so that a duplicate
// delivery of the same observation is rejected by Push.
func (q *StreamQueue) Consume(m Message) bool {
	if !q.Remove(m) {
		return false
	}
	q.consumed[m.Timestamp] = struct{}{}
	return true
}

// PruneBefore removes every message older than ts and forgets consumed
// timestamps older than ts. It returns the number of messages removed.
func (q *StreamQueue) PruneBefore(ts int64) int {
	n := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Timestamp >= ts
	})
	if n > 0 {
		q.items = slices.Delete(q.items, 0, n)
	}
	for c := range q.consumed {
		if c < ts {
			delete(q.consumed, c)
		}
	}
	return n
}

// IsEmpty reports whether the queue holds no messages.
func (q *StreamQueue) IsEmpty() bool {
	return len(q.items) == 0
}

// Len returns the number of queued messages.
func (q *StreamQueue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *StreamQueue) Cap() int {
	return q.capacity
}

// Evicted returns how many messages overflow has dropped.
func (q *StreamQueue) Evicted() uint64 {
	return q.evicted
}

// Snapshot returns a copy of the queued messages, oldest first.
func (q *StreamQueue) Snapshot() []Message {
	return slices.Clone(q.items)
}

func (q *StreamQueue) index(m Message) int {
	return slices.IndexFunc(q.items, func(x Message) bool {
		return x.Same(m)
	})
}

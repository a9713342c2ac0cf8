package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlignedTuple is one message per stream, all mutually within the sync tolerance.
// Ownership passes to the Sink on delivery.
type AlignedTuple struct {
	// ID uniquely identifies the tuple across runs
	ID string

	// Reference is the tuple's effective time: the earliest member timestamp
	Reference int64

	// Spread is the largest pairwise timestamp difference among members
	Spread time.Duration

	// Messages holds one message per stream, in configured stream order
	Messages []Message
}

// NewAlignedTuple builds a tuple from members, which must be in stream order
// and non-empty. Reference and Spread are derived from the member timestamps.
func NewAlignedTuple(members []Message) *AlignedTuple {
	lo, hi := members[0].Timestamp, members[0].Timestamp
	for _, m := range members[1:] {
		lo = min(lo, m.Timestamp)
		hi = max(hi, m.Timestamp)
	}
	msgs := make([]Message, len(members))
	copy(msgs, members)
	return &AlignedTuple{
		ID:        uuid.NewString(),
		Reference: lo,
		Spread:    time.Duration(hi - lo),
		Messages:  msgs,
	}
}

// Get returns the member from stream.
func (t *AlignedTuple) Get(stream StreamID) (Message, bool) {
	for _, m := range t.Messages {
		if m.Stream == stream {
			return m, true
		}
	}
	return Message{}, false
}

// Size returns the number of members.
func (t *AlignedTuple) Size() int {
	return len(t.Messages)
}

// ReferenceTime returns Reference as a time.Time.
func (t *AlignedTuple) ReferenceTime() time.Time {
	return time.Unix(0, t.Reference)
}

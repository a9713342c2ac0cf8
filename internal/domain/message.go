package domain

import (
	"sync/atomic"
	"time"
)

// StreamID identifies one independent source of timestamped messages.
type StreamID string

// Stream identifiers for the default sensor rig.
const (
	StreamDepth       StreamID = "depth"
	StreamRGB         StreamID = "rgb"
	StreamCloud       StreamID = "cloud"
	StreamOdom        StreamID = "odom"
	StreamCmdVel      StreamID = "cmd_vel"
	StreamVelSmoother StreamID = "vel_smoother"
)

// DefaultStreams returns the six streams recorded by the default sensor rig,
// in tuple order.
func DefaultStreams() []StreamID {
	return []StreamID{
		StreamDepth,
		StreamRGB,
		StreamCloud,
		StreamOdom,
		StreamCmdVel,
		StreamVelSmoother,
	}
}

var messageSeq atomic.Uint64

// Message is one observation from one stream.
// A message is the atomic unit pushed into a StreamQueue.
type Message struct {
	// Stream is the stream this message belongs to
	Stream StreamID

	// Timestamp is the observation time in unix nanoseconds
	Timestamp int64

	// Payload is the decoded, stream-specific data
	Payload Payload

	// Seq is the process-unique identity of this message.
	// Two messages with equal timestamps are still distinct.
	Seq uint64
}

// NewMessage creates a message with a fresh identity.
func NewMessage(stream StreamID, timestamp int64, payload Payload) Message {
	return Message{
		Stream:    stream,
		Timestamp: timestamp,
		Payload:   payload,
		Seq:       messageSeq.Add(1),
	}
}

// Time returns the timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// Same reports whether m and other are the same message.
func (m Message) Same(other Message) bool {
	return m.Seq == other.Seq && m.Stream == other.Stream
}

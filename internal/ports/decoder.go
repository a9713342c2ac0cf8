package ports

import "github.com/bft-labs/sensorsync/internal/domain"

// Decoder turns an undecoded record into a message payload.
// Decode must be safe for concurrent use; the agent calls it from a worker pool.
type Decoder interface {
	// Decode returns the payload for rec, or an error wrapping
	// domain.ErrMalformedPayload when rec cannot be decoded.
	Decode(rec domain.Record) (domain.Payload, error)
}

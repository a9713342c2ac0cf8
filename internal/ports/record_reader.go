package ports

import (
	"context"
	"io"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// RecordReader delivers undecoded arrivals from a feed.
type RecordReader interface {
	// Open prepares the reader.
	Open(ctx context.Context) error

	// Next returns the next record.
	// Returns io.EOF when no more records are available (should poll and retry).
	// Returns other errors for records that could not be read; the caller may
	// skip them and keep reading.
	Next(ctx context.Context) (domain.Record, error)

	// Close releases all resources held by the reader.
	Close() error
}

// ErrNoMoreRecords indicates that the feed is drained for now.
var ErrNoMoreRecords = io.EOF

// RecordFlusher is implemented by readers that hold back an unterminated last
// line while the feed may still grow.
type RecordFlusher interface {
	// Flush returns the held-back line as a record once the caller knows the
	// feed is complete. Returns io.EOF when nothing is held back.
	Flush(ctx context.Context) (domain.Record, error)
}

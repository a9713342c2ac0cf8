package ports

import (
	"context"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// Sink consumes aligned tuples.
// Implementations convert, serialize and persist (or display) the tuple.
type Sink interface {
	// Accept takes ownership of tuple. Tuples arrive in emission order and the
	// synchronizer waits for Accept to return, so it must not block indefinitely.
	// A returned error is reported to the caller; the tuple is not redelivered.
	Accept(ctx context.Context, tuple *domain.AlignedTuple) error

	// Close flushes buffered output and releases resources.
	Close() error
}

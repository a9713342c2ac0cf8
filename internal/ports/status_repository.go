package ports

import (
	"context"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// StatusRepository persists run status for external inspection.
// Status is informational; nothing is restored from it on restart.
type StatusRepository interface {
	// Load retrieves the last saved status.
	// Returns an empty status and nil error if none exists.
	Load(ctx context.Context) (domain.Status, error)

	// Save persists the status atomically.
	Save(ctx context.Context, status domain.Status) error
}

// Package remote defines the pattern store contract the sync engine
// consumes, its error taxonomy, and an HTTP implementation. The core only
// requires create/read/update-with-version/delete; the store's query and
// search surface is out of scope.
package remote

import (
	"context"

	"github.com/patternloom/loom/internal/pattern"
)

// Store is the remote pattern store consumed by the sync engine.
//
// Update must fail with a CodeVersionConflict StoreError when the stored
// version no longer matches expectedVersion, so callers can distinguish
// stale data from transient failures.
type Store interface {
	// Create stores a new pattern and returns it with the server-assigned
	// id and initial version.
	Create(ctx context.Context, p pattern.Pattern) (pattern.Pattern, error)

	// Get returns the pattern by id, or a CodeNotFound error.
	Get(ctx context.Context, id string) (pattern.Pattern, error)

	// Update applies a partial change under optimistic locking and returns
	// the updated pattern with its advanced version.
	Update(ctx context.Context, id string, ch pattern.Change, expectedVersion int64) (pattern.Pattern, error)

	// Delete removes the pattern. Deleting an absent pattern returns a
	// CodeNotFound error; callers treat that as success (idempotent delete).
	Delete(ctx context.Context, id string) error
}

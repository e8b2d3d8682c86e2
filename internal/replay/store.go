// Package replay provides the keyed record store that makes payment
// processing exactly-once. The Store interface is the contract boundary:
// a Redis backing gives atomicity across service instances, while the
// in-process fallback is only safe for a single instance.
package replay

import (
	"context"
	"time"
)

// Store is a keyed record store with an atomic create-if-absent primitive.
// All operations must be atomic with respect to concurrent callers using the
// same key; Reserve is the mutual-exclusion gate that guarantees at most one
// in-flight attempt per key. Expired records read as absent.
type Store interface {
	// Reserve creates the record only if no live record exists for the key.
	// Returns true when the reservation was won.
	Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Read returns the record and whether a live one exists.
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write unconditionally overwrites the record.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes the record, freeing the key for a new reservation.
	Remove(ctx context.Context, key string) error
}

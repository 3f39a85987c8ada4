// Package keyval is a narrow client for the networked key/value store
// the control plane uses as its cross-request coordination point.
//
// Handlers themselves are stateless, so every at-most-once guarantee in
// the system (token revocation, idempotency admission) reduces to the
// atomicity of SetNX here. Implementations must keep that operation
// atomic or the guarantees upstream silently disappear.
package keyval

import (
	"context"
	"errors"
	"time"
)

// Returned by Get when the key is absent or its TTL has elapsed
var ErrKeyNotFound = errors.New("key not found")

type Store interface {
	// Create the key only if it does not exist yet. Returns true if the
	// value was written. Atomic with respect to concurrent SetNX calls.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// Get the value or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Overwrite the value unconditionally and reset its TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	// Atomic counters. The key is created at zero on first use.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	DecrBy(ctx context.Context, key string, n int64) (int64, error)
}

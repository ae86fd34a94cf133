package ports

import "context"

// UpdateFunc receives the current value (nil when absent) and returns the value to
// persist. Returning a nil slice removes the key.
type UpdateFunc func(current []byte) ([]byte, error)

type KeyValueStore interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, entries map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
	// Update runs fn against the latest persisted value and writes its result
	// without letting another writer interleave. fn may run more than once when
	// the backend retries an optimistic transaction.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

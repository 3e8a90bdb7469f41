package ports

import "context"

// KeyValueStore is the storage slot abstraction used by the session manager.
// Two flavours are wired: a persistent one for tokens and a session-scoped one
// (short TTL) for in-flight PKCE parameters.
type KeyValueStore interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value atomically, replacing any previous one
	Set(ctx context.Context, key string, value string) error

	// Remove deletes the key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error

	// Take returns the value and deletes the key in one atomic step.
	// Concurrent callers never both observe the same value.
	Take(ctx context.Context, key string) (string, bool, error)
}

// Package storage implements spec.md §4.1's StorageBackend variants: a
// uniform key->serialized-blob persistence contract with graceful
// fallback across media that fail in different ways (disk permissions,
// disabled keyring daemons, a misconfigured DSN). "custom" providers are
// wrapped verbatim so their errors propagate unchanged, exactly as
// spec.md requires.
package storage

import "context"

// Backend is the uniform storage contract every variant implements.
// subkey is empty for blob backends (the whole payload lives at one
// key) and non-empty for keyed backends, where each token has its own
// record.
type Backend interface {
	// GetItem returns the stored value, or ("", false, nil) if absent.
	GetItem(ctx context.Context, subkey string) (value string, ok bool, err error)

	// SetItem persists value under subkey. A quota/permission failure is
	// returned, not panicked, so the cascade can fall back.
	SetItem(ctx context.Context, subkey string, value string) error

	// RemoveItem deletes subkey. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, subkey string) error

	// Clear removes every record this backend holds for this manager.
	Clear(ctx context.Context) error

	// Keyed reports whether this backend stores one record per token
	// (true, e.g. cookies) or a single blob for the whole token map
	// (false, e.g. localStorage-alikes).
	Keyed() bool

	// Name identifies the backend for cascade warnings and logging
	// ("memory", "file", "keyring", "cookie", "custom:sqlite", ...).
	Name() string
}

// Prober is implemented by backends that can self-test availability at
// construction time via a write-and-delete probe (spec.md §4.1). Backends
// that are always available (memory) don't need to implement it.
type Prober interface {
	Probe(ctx context.Context) error
}

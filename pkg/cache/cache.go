package cache

import (
	"context"
	"time"
)

// TTLLayout is how long computed layout results stay cached.
const TTLLayout = 7 * 24 * time.Hour

// Cache stores opaque byte values under string keys.
//
// Implementations must be safe for concurrent use. A missing or expired key
// is reported as a miss (hit == false) with a nil error; errors are reserved
// for backend failures.
type Cache interface {
	// Get returns the value for key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by backends that can drop all their entries.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Keyer derives cache keys for layout results.
type Keyer interface {
	// LayoutKey returns the key for a layout of the graph with graphHash
	// computed under the config with configHash.
	LayoutKey(graphHash, configHash string) string
}

// DefaultKeyer hashes key components into fixed-length keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// LayoutKey returns "layout:<sha256>" over both hashes.
func (DefaultKeyer) LayoutKey(graphHash, configHash string) string {
	return hashKey("layout", graphHash, configHash)
}

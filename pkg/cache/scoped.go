package cache

// ScopedKeyer wraps a Keyer with a prefix so several tenants or deployments
// can share one backend without colliding.
//
// Example usage:
//
//	// Keys for one HTTP deployment
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "forcelayout:prod:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// LayoutKey generates a prefixed key for layout caching.
func (k *ScopedKeyer) LayoutKey(graphHash, configHash string) string {
	return k.prefix + k.inner.LayoutKey(graphHash, configHash)
}

package chronicle

import lru "github.com/hashicorp/golang-lru"

// ChangeCache caches decoded changes loaded from a Persist. Changes are
// immutable, so entries never go stale; Remove is only needed when a
// change is removed from its index.
type ChangeCache interface {
	// Add adds a freshly-stored or freshly-loaded change.
	Add(key, value interface{})
	// Get retrieves the already-decoded change with the given id, if cached.
	Get(key interface{}) (value interface{}, ok bool)
	Remove(key interface{})
}

// NewChangeCache creates a new ARC-based change cache of the given size.
// One cache must not be shared by indexes over different stores.
func NewChangeCache(size int) ChangeCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}

package chronicle

import "context"

// Persist is the key-value store under a PersistentIndex. Store
// overwrites; Load of an absent key returns an error wrapping ErrNotFound.
// List returns the keys starting with prefix, in no particular order.
type Persist interface {
	Store(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

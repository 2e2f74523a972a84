package chronicle

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Index stores the changes of a graph and its refs. Changes are
// append-only; refs are named, mutable pointers to change ids such as
// "master:HEAD" or "/remote/origin/master". Every Index contains RootID.
//
// Implementations are safe for concurrent use.
type Index[O any] interface {
	// Add appends a change whose parents are already present.
	Add(ctx context.Context, c *Change[O]) error
	Get(ctx context.Context, id string) (*Change[O], error)
	Contains(id string) bool
	// Remove deletes one change, leaving any children in place. It is
	// meant for undoing a speculative Add.
	Remove(ctx context.Context, id string) error
	// List returns every change id, RootID included, sorted.
	List() []string

	SetRef(ctx context.Context, name, id string) error
	GetRef(name string) (string, bool)
	ListRefs() []string
}

// MemoryIndex is an Index held entirely in memory.
type MemoryIndex[O any] struct {
	l       sync.RWMutex
	changes map[string]*Change[O]
	refs    map[string]string
}

// NewIndex returns an empty in-memory index.
func NewIndex[O any]() *MemoryIndex[O] {
	return &MemoryIndex[O]{
		changes: map[string]*Change[O]{RootID: rootChange[O]()},
		refs:    map[string]string{},
	}
}

// validateAdd checks c against the ids already present.
func validateAdd[O any](c *Change[O], contains func(string) bool) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("add: change without id")
	}
	if contains(c.ID) {
		return fmt.Errorf("add %s: %w", c.ID, ErrDuplicateID)
	}
	parents := c.Parents()
	if len(parents) == 0 || parents[0] == "" {
		return fmt.Errorf("add %s: change without parent", c.ID)
	}
	for _, p := range parents {
		if !contains(p) {
			return fmt.Errorf("add %s: parent %s: %w", c.ID, p, ErrUnknownChange)
		}
	}
	return nil
}

func (i *MemoryIndex[O]) Add(ctx context.Context, c *Change[O]) error {
	i.l.Lock()
	defer i.l.Unlock()
	if err := validateAdd(c, i.containsLocked); err != nil {
		return err
	}
	i.changes[c.ID] = c
	return nil
}

func (i *MemoryIndex[O]) Get(ctx context.Context, id string) (*Change[O], error) {
	i.l.RLock()
	c, ok := i.changes[id]
	i.l.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrUnknownChange)
	}
	return c, nil
}

func (i *MemoryIndex[O]) Contains(id string) bool {
	i.l.RLock()
	defer i.l.RUnlock()
	return i.containsLocked(id)
}

func (i *MemoryIndex[O]) containsLocked(id string) bool {
	_, ok := i.changes[id]
	return ok
}

func (i *MemoryIndex[O]) Remove(ctx context.Context, id string) error {
	if id == RootID {
		return fmt.Errorf("remove: %s cannot be removed", RootID)
	}
	i.l.Lock()
	defer i.l.Unlock()
	if !i.containsLocked(id) {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownChange)
	}
	delete(i.changes, id)
	return nil
}

func (i *MemoryIndex[O]) List() []string {
	i.l.RLock()
	defer i.l.RUnlock()
	return sortedKeys(i.changes)
}

func (i *MemoryIndex[O]) SetRef(ctx context.Context, name, id string) error {
	i.l.Lock()
	defer i.l.Unlock()
	if !i.containsLocked(id) {
		return fmt.Errorf("set ref %s to %s: %w", name, id, ErrUnknownChange)
	}
	i.refs[name] = id
	return nil
}

func (i *MemoryIndex[O]) GetRef(name string) (string, bool) {
	i.l.RLock()
	defer i.l.RUnlock()
	id, ok := i.refs[name]
	return id, ok
}

func (i *MemoryIndex[O]) ListRefs() []string {
	i.l.RLock()
	defer i.l.RUnlock()
	return sortedKeys(i.refs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

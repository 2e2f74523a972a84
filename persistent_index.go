package chronicle

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	changesPrefix = "changes/"
	refsPrefix    = "refs/"

	DefaultCacheSize       = 1000
	DefaultLoadConcurrency = 16
)

func changeKey(id string) string {
	return changesPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func refKey(name string) string {
	return refsPrefix + base64.RawURLEncoding.EncodeToString([]byte(name))
}

// IsChangeKey reports whether a Persist key holds a change. Changes
// never change once stored, so a Persist may skip rewriting such keys.
func IsChangeKey(key string) bool {
	return strings.HasPrefix(key, changesPrefix)
}

func decodeKey(prefix, key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(key, prefix))
	if err != nil {
		return "", fmt.Errorf("bad key %q: %w", key, err)
	}
	return string(b), nil
}

// PersistentIndexOptions configures NewPersistentIndex. The zero value
// uses JSONCodec, a DefaultCacheSize change cache, and slog.Default().
type PersistentIndexOptions[O any] struct {
	Codec Codec[O]
	// Cache holds decoded changes. It must not be shared with an index
	// over a different Persist.
	Cache ChangeCache
	// Preload decodes every stored change during construction, which
	// verifies the store and warms Cache.
	Preload bool
	// LoadConcurrency bounds parallel loads during construction.
	LoadConcurrency int
	Logger          *slog.Logger
}

// PersistentIndex is an Index whose changes and refs live in a Persist.
// Ids and refs are kept in memory; change bodies are loaded on demand
// and cached. Every mutation is written through before it returns.
type PersistentIndex[O any] struct {
	persist Persist
	codec   Codec[O]
	cache   ChangeCache
	logger  *slog.Logger

	l    sync.RWMutex
	ids  map[string]struct{}
	refs map[string]string
}

// NewPersistentIndex rebuilds an index from the changes and refs already
// held by p.
func NewPersistentIndex[O any](ctx context.Context, p Persist, opts *PersistentIndexOptions[O]) (*PersistentIndex[O], error) {
	if opts == nil {
		opts = &PersistentIndexOptions[O]{}
	}
	i := &PersistentIndex[O]{
		persist: p,
		codec:   opts.Codec,
		cache:   opts.Cache,
		logger:  opts.Logger,
		ids:     map[string]struct{}{RootID: {}},
		refs:    map[string]string{},
	}
	if i.codec == nil {
		i.codec = JSONCodec[O]{}
	}
	if i.cache == nil {
		i.cache = NewChangeCache(DefaultCacheSize)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	concurrency := opts.LoadConcurrency
	if concurrency <= 0 {
		concurrency = DefaultLoadConcurrency
	}

	changeKeys, err := p.List(ctx, changesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	for _, key := range changeKeys {
		id, err := decodeKey(changesPrefix, key)
		if err != nil {
			return nil, err
		}
		i.ids[id] = struct{}{}
	}

	refKeys, err := p.List(ctx, refsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	names := make([]string, len(refKeys))
	targets := make([]string, len(refKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for n, key := range refKeys {
		n, key := n, key
		g.Go(func() error {
			name, err := decodeKey(refsPrefix, key)
			if err != nil {
				return err
			}
			b, err := i.loadRecord(gctx, key)
			if err != nil {
				return fmt.Errorf("ref %s: %w", name, err)
			}
			names[n], targets[n] = name, string(b)
			return nil
		})
	}
	if opts.Preload {
		for id := range i.ids {
			if id == RootID {
				continue
			}
			id := id
			g.Go(func() error {
				_, err := i.load(gctx, id)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for n, name := range names {
		i.refs[name] = targets[n]
	}
	i.logger.Debug("persistent index loaded", "changes", len(i.ids), "refs", len(i.refs))
	return i, nil
}

func (i *PersistentIndex[O]) loadRecord(ctx context.Context, key string) ([]byte, error) {
	b, err := i.persist.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", key, err)
	}
	payload, err := decodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return payload, nil
}

func (i *PersistentIndex[O]) load(ctx context.Context, id string) (*Change[O], error) {
	if c, ok := i.cache.Get(id); ok {
		return c.(*Change[O]), nil
	}
	payload, err := i.loadRecord(ctx, changeKey(id))
	if err != nil {
		return nil, err
	}
	c, err := i.codec.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", id, err)
	}
	if c.ID != id {
		return nil, fmt.Errorf("change stored as %s has id %s", id, c.ID)
	}
	i.cache.Add(id, c)
	return c, nil
}

func (i *PersistentIndex[O]) Add(ctx context.Context, c *Change[O]) error {
	i.l.Lock()
	defer i.l.Unlock()
	if err := validateAdd(c, i.containsLocked); err != nil {
		return err
	}
	encoded, err := i.codec.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.ID, err)
	}
	if err := i.persist.Store(ctx, changeKey(c.ID), encodeRecord(encoded)); err != nil {
		return fmt.Errorf("persist store %s: %w", c.ID, err)
	}
	i.ids[c.ID] = struct{}{}
	i.cache.Add(c.ID, c)
	return nil
}

func (i *PersistentIndex[O]) Get(ctx context.Context, id string) (*Change[O], error) {
	if id == RootID {
		return rootChange[O](), nil
	}
	if !i.Contains(id) {
		return nil, fmt.Errorf("get %s: %w", id, ErrUnknownChange)
	}
	return i.load(ctx, id)
}

func (i *PersistentIndex[O]) Contains(id string) bool {
	i.l.RLock()
	defer i.l.RUnlock()
	return i.containsLocked(id)
}

func (i *PersistentIndex[O]) containsLocked(id string) bool {
	_, ok := i.ids[id]
	return ok
}

func (i *PersistentIndex[O]) Remove(ctx context.Context, id string) error {
	if id == RootID {
		return fmt.Errorf("remove: %s cannot be removed", RootID)
	}
	i.l.Lock()
	defer i.l.Unlock()
	if !i.containsLocked(id) {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownChange)
	}
	if err := i.persist.Delete(ctx, changeKey(id)); err != nil {
		return fmt.Errorf("persist delete %s: %w", id, err)
	}
	delete(i.ids, id)
	i.cache.Remove(id)
	return nil
}

func (i *PersistentIndex[O]) List() []string {
	i.l.RLock()
	defer i.l.RUnlock()
	return sortedKeys(i.ids)
}

func (i *PersistentIndex[O]) SetRef(ctx context.Context, name, id string) error {
	i.l.Lock()
	defer i.l.Unlock()
	if !i.containsLocked(id) {
		return fmt.Errorf("set ref %s to %s: %w", name, id, ErrUnknownChange)
	}
	if err := i.persist.Store(ctx, refKey(name), encodeRecord([]byte(id))); err != nil {
		return fmt.Errorf("persist store ref %s: %w", name, err)
	}
	i.refs[name] = id
	return nil
}

func (i *PersistentIndex[O]) GetRef(name string) (string, bool) {
	i.l.RLock()
	defer i.l.RUnlock()
	id, ok := i.refs[name]
	return id, ok
}

func (i *PersistentIndex[O]) ListRefs() []string {
	i.l.RLock()
	defer i.l.RUnlock()
	return sortedKeys(i.refs)
}

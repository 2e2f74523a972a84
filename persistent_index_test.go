package chronicle

import (
	"context"
	"testing"

	"github.com/jrhy/chronicle/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersistentCounterIndex(t *testing.T, p Persist, opts *PersistentIndexOptions[ot.CounterOp]) Index[ot.CounterOp] {
	t.Helper()
	i, err := NewPersistentIndex[ot.CounterOp](ctx, p, opts)
	require.NoError(t, err)
	return i
}

func TestIndexes(t *testing.T) {
	t.Parallel()
	for name, newIndex := range map[string]func(t *testing.T) Index[ot.CounterOp]{
		"memory": func(*testing.T) Index[ot.CounterOp] { return NewIndex[ot.CounterOp]() },
		"persistent": func(t *testing.T) Index[ot.CounterOp] {
			return newPersistentCounterIndex(t, NewInMemoryStore(), nil)
		},
		"persistent proto uncached": func(t *testing.T) Index[ot.CounterOp] {
			return newPersistentCounterIndex(t, NewInMemoryStore(), &PersistentIndexOptions[ot.CounterOp]{
				Codec: ProtoCodec[ot.CounterOp]{},
				Cache: NewChangeCache(1),
			})
		},
	} {
		name, newIndex := name, newIndex
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			i := newIndex(t)
			assert.Equal(t, []string{RootID}, i.List())
			root, err := i.Get(ctx, RootID)
			require.NoError(t, err)
			assert.Nil(t, root.Parents())

			a := NewChange("a", RootID, ot.CounterOp{Kind: ot.Plus, Operand: 1})
			b := NewChange("b", RootID, ot.CounterOp{Kind: ot.Plus, Operand: 2})
			require.NoError(t, i.Add(ctx, a))
			require.NoError(t, i.Add(ctx, b))
			assert.ErrorIs(t, i.Add(ctx, a), ErrDuplicateID)
			assert.ErrorIs(t, i.Add(ctx, NewChange("c", "nope", ot.CounterOp{})), ErrUnknownChange)
			assert.Error(t, i.Add(ctx, NewChange("c", "", ot.CounterOp{})))

			m := &Change[ot.CounterOp]{ID: "m", Parent: "a", Merge: &Merge[ot.CounterOp]{Branch: "x"}}
			assert.ErrorIs(t, i.Add(ctx, m), ErrUnknownChange)
			m.Merge.Branch = "b"
			require.NoError(t, i.Add(ctx, m))
			assert.Equal(t, []string{"ROOT", "a", "b", "m"}, i.List())

			got, err := i.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, b, got)
			_, err = i.Get(ctx, "zz")
			assert.ErrorIs(t, err, ErrUnknownChange)

			require.NoError(t, i.SetRef(ctx, "main:HEAD", "m"))
			require.NoError(t, i.SetRef(ctx, "/remote/origin/main", "b"))
			assert.ErrorIs(t, i.SetRef(ctx, "main:HEAD", "zz"), ErrUnknownChange)
			id, ok := i.GetRef("main:HEAD")
			assert.True(t, ok)
			assert.Equal(t, "m", id)
			_, ok = i.GetRef("other")
			assert.False(t, ok)
			assert.Equal(t, []string{"/remote/origin/main", "main:HEAD"}, i.ListRefs())

			require.NoError(t, i.Remove(ctx, "m"))
			assert.False(t, i.Contains("m"))
			assert.ErrorIs(t, i.Remove(ctx, "m"), ErrUnknownChange)
			assert.Error(t, i.Remove(ctx, RootID))
		})
	}
}

func TestPersistentIndexReload(t *testing.T) {
	t.Parallel()
	store := NewInMemoryStore()
	i := newPersistentCounterIndex(t, store, nil)
	counter := 0.0
	c := New[ot.CounterOp](i, NewCounterAdapter(&counter), &Options{Branch: "main"})
	_, err := c.Record(ctx, ot.CounterOp{Kind: ot.Plus, Operand: 4})
	require.NoError(t, err)
	head, err := c.Record(ctx, ot.CounterOp{Kind: ot.Times, Operand: 3})
	require.NoError(t, err)

	for _, preload := range []bool{false, true} {
		reloaded := newPersistentCounterIndex(t, store, &PersistentIndexOptions[ot.CounterOp]{Preload: preload})
		assert.Equal(t, i.List(), reloaded.List())
		assert.Equal(t, []string{"main:HEAD", "main:LAST"}, reloaded.ListRefs())
		id, ok := reloaded.GetRef("main:HEAD")
		require.True(t, ok)
		assert.Equal(t, head, id)

		counter := 0.0
		c := New[ot.CounterOp](reloaded, NewCounterAdapter(&counter), nil)
		require.NoError(t, c.Open(ctx, id))
		assert.Equal(t, 12.0, counter)
	}
}

func TestPersistentIndexDetectsCorruption(t *testing.T) {
	t.Parallel()
	store := NewInMemoryStore()
	i := newPersistentCounterIndex(t, store, nil)
	require.NoError(t, i.Add(ctx, NewChange("a", RootID, ot.CounterOp{Kind: ot.Plus, Operand: 1})))

	key := changeKey("a")
	rec, err := store.Load(ctx, key)
	require.NoError(t, err)
	rec = append([]byte(nil), rec...)
	rec[len(rec)-2] ^= 0x20
	require.NoError(t, store.Store(ctx, key, rec))

	_, err = NewPersistentIndex[ot.CounterOp](ctx, store, &PersistentIndexOptions[ot.CounterOp]{Preload: true})
	assert.ErrorIs(t, err, ErrChecksum)

	lazy := newPersistentCounterIndex(t, store, nil)
	assert.True(t, lazy.Contains("a"))
	_, err = lazy.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrChecksum)
}

type failingStore struct {
	Persist
	fail bool
}

func (f *failingStore) Store(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return assert.AnError
	}
	return f.Persist.Store(ctx, key, value)
}

func TestPersistentIndexWriteFailure(t *testing.T) {
	t.Parallel()
	store := &failingStore{Persist: NewInMemoryStore()}
	i := newPersistentCounterIndex(t, store, nil)
	counter := 0.0
	c := New[ot.CounterOp](i, NewCounterAdapter(&counter), nil)
	_, err := c.Record(ctx, ot.CounterOp{Kind: ot.Plus, Operand: 1})
	require.NoError(t, err)

	store.fail = true
	_, err = c.Record(ctx, ot.CounterOp{Kind: ot.Plus, Operand: 1})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1.0, counter)
	assert.Len(t, i.List(), 2)
}

func TestKeysSurviveAnyID(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"a/b", "../x", "ü", "changes/"} {
		got, err := decodeKey(changesPrefix, changeKey(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.True(t, IsChangeKey(changeKey(id)))
		assert.False(t, IsChangeKey(refKey(id)))
	}
}

package badger

import (
	"context"
	"sort"
	"testing"

	"github.com/jrhy/chronicle"
	"github.com/jrhy/chronicle/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestStoreLoadDelete(t *testing.T) {
	t.Parallel()
	p, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Store(ctx, "refs/a", []byte("1")))
	require.NoError(t, p.Store(ctx, "refs/a", []byte("2")))
	b, err := p.Load(ctx, "refs/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), b)

	require.NoError(t, p.Delete(ctx, "refs/a"))
	_, err = p.Load(ctx, "refs/a")
	assert.ErrorIs(t, err, chronicle.ErrNotFound)
}

func TestList(t *testing.T) {
	t.Parallel()
	p, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer p.Close()

	for _, k := range []string{"changes/x", "changes/y", "refs/x"} {
		require.NoError(t, p.Store(ctx, k, []byte(k)))
	}
	keys, err := p.List(ctx, "changes/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"changes/x", "changes/y"}, keys)
}

func TestReopenOnDisk(t *testing.T) {
	t.Parallel()
	cfg := Config{Path: t.TempDir(), SyncWrites: true}
	p, err := Open(cfg)
	require.NoError(t, err)
	index, err := chronicle.NewPersistentIndex[ot.ArrayOp](ctx, p, nil)
	require.NoError(t, err)
	arr := []any{}
	c := chronicle.New[ot.ArrayOp](index, chronicle.NewArrayAdapter(&arr), nil)
	_, err = c.Record(ctx, ot.Insert(0, "a"))
	require.NoError(t, err)
	id, err := c.Record(ctx, ot.Insert(1, "b"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	p, err = Open(cfg)
	require.NoError(t, err)
	defer p.Close()
	index, err = chronicle.NewPersistentIndex[ot.ArrayOp](ctx, p, &chronicle.PersistentIndexOptions[ot.ArrayOp]{Preload: true})
	require.NoError(t, err)
	arr = []any{}
	c = chronicle.New[ot.ArrayOp](index, chronicle.NewArrayAdapter(&arr), nil)
	require.NoError(t, c.Open(ctx, id))
	assert.Equal(t, []any{"a", "b"}, arr)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{})
	assert.Error(t, err)
}

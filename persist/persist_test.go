package persist

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrhy/chronicle"
	"github.com/jrhy/chronicle/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
backend: s3
bucket: histories
prefix: team-a/
region: ca-west-1
cache_size: 50
`)
	t.Setenv(EnvPrefix+"PREFIX", "team-b/")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Backend:   S3,
		Bucket:    "histories",
		Prefix:    "team-b/",
		Region:    "ca-west-1",
		CacheSize: 50,
	}, cfg)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "backend: tape\n"))
	assert.ErrorContains(t, err, "unknown store backend")

	_, err = LoadConfig(writeConfig(t, "backend: sqlite\n"))
	assert.ErrorContains(t, err, "path is required")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenEachBackend(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, cfg := range []Config{
		{Backend: Memory},
		{Backend: File, Path: filepath.Join(dir, "files")},
		{Backend: SQLite, Path: filepath.Join(dir, "chronicle.db")},
		{Backend: Badger, InMemory: true},
	} {
		p, closer, err := Open(ctx, cfg)
		require.NoError(t, err, cfg.Backend)
		require.NoError(t, p.Store(ctx, "refs/x", []byte("y")), cfg.Backend)
		b, err := p.Load(ctx, "refs/x")
		require.NoError(t, err, cfg.Backend)
		assert.Equal(t, []byte("y"), b, cfg.Backend)
		_, err = p.Load(ctx, "refs/absent")
		assert.ErrorIs(t, err, chronicle.ErrNotFound, cfg.Backend)
		require.NoError(t, closer(), cfg.Backend)
	}
}

func TestBadgerLogger(t *testing.T) {
	t.Parallel()
	cfg := Config{Backend: Badger, Path: "/var/lib/chronicle", SyncWrites: true}
	bc := cfg.badgerConfig()
	assert.Equal(t, "/var/lib/chronicle", bc.Path)
	assert.True(t, bc.SyncWrites)
	assert.Same(t, slog.Default(), bc.Logger)

	var buf bytes.Buffer
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	assert.Same(t, cfg.Logger, cfg.badgerConfig().Logger)
}

func TestLoadConfigIgnoresLogger(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "backend: memory\nlogger: verbose\n"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Logger)
}

func TestOpenIndex(t *testing.T) {
	t.Parallel()
	cfg := Config{Backend: SQLite, Path: filepath.Join(t.TempDir(), "c.db"), CacheSize: 10}
	index, closer, err := OpenIndex[ot.CounterOp](ctx, cfg, nil)
	require.NoError(t, err)
	value := 0.0
	c := chronicle.New[ot.CounterOp](index, chronicle.NewCounterAdapter(&value), nil)
	id, err := c.Record(ctx, ot.CounterOp{Kind: ot.Plus, Operand: 2})
	require.NoError(t, err)
	require.NoError(t, closer())

	index, closer, err = OpenIndex[ot.CounterOp](ctx, cfg, nil)
	require.NoError(t, err)
	defer closer()
	assert.True(t, index.Contains(id))
}

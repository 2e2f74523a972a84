package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrhy/chronicle"
)

// Persist implements the chronicle.Persist interface for storing and
// loading entries as files. Slashes in keys become subdirectories.
type Persist struct {
	basepath string
}

// Load loads the bytes persisted in the named file.
func (p Persist) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(p.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", key, chronicle.ErrNotFound)
	}
	return b, err
}

// Store persists the given bytes in a file of the given name, replacing
// any previous contents. The file is written under a temporary name and
// renamed into place, so readers never see a partial entry.
func (p Persist) Store(ctx context.Context, key string, value []byte) error {
	path := p.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(value)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
	}
	return err
}

func (p Persist) Delete(ctx context.Context, key string) error {
	err := os.Remove(p.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the keys of the files under the base path that start with
// prefix.
func (p Persist) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(p.basepath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == p.basepath {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(p.basepath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return ctx.Err()
	})
	return keys, err
}

func (p Persist) path(key string) string {
	return filepath.Join(p.basepath, filepath.FromSlash(key))
}

// NewPersistForPath returns a Persist that loads and stores entries as
// files in the directory at the given path, creating it on first Store.
//
//	p := NewPersistForPath("/var/db/history")
//	blob, err := p.Load(ctx, "refs/bWFpbjpIRUFE")
func NewPersistForPath(path string) Persist {
	return Persist{path}
}

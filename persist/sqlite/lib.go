// Package sqlite stores chronicle entries in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jrhy/chronicle"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS chronicle_entries (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// Persist implements the chronicle.Persist interface over one SQLite
// table.
type Persist struct {
	sqlDB *sql.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Persist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Persist{sqlDB: sqlDB}, nil
}

func (p *Persist) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := p.sqlDB.ExecContext(ctx,
		`INSERT INTO chronicle_entries (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM chronicle_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite %s: %w", key, chronicle.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func (p *Persist) Delete(ctx context.Context, key string) error {
	if _, err := p.sqlDB.ExecContext(ctx, `DELETE FROM chronicle_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (p *Persist) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.sqlDB.QueryContext(ctx,
		`SELECT key FROM chronicle_entries WHERE substr(key, 1, length(?1)) = ?1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

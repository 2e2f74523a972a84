// Package persist selects and opens one of the chronicle.Persist
// backends from configuration.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/caarlos0/env/v11"
	"github.com/jrhy/chronicle"
	"github.com/jrhy/chronicle/persist/badger"
	"github.com/jrhy/chronicle/persist/file"
	"github.com/jrhy/chronicle/persist/s3"
	"github.com/jrhy/chronicle/persist/sqlite"
	"gopkg.in/yaml.v3"
)

type Backend string

const (
	Memory Backend = "memory"
	File   Backend = "file"
	S3     Backend = "s3"
	Badger Backend = "badger"
	SQLite Backend = "sqlite"
)

// EnvPrefix prefixes the environment variables that override a Config.
const EnvPrefix = "CHRONICLE_STORE_"

// Config describes a store. Path is a directory for file and badger
// stores and a database file for sqlite.
type Config struct {
	Backend Backend `yaml:"backend" env:"BACKEND"`
	Path    string  `yaml:"path" env:"PATH"`

	Bucket   string `yaml:"bucket" env:"BUCKET"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Region   string `yaml:"region" env:"REGION"`

	InMemory   bool `yaml:"in_memory" env:"IN_MEMORY"`
	SyncWrites bool `yaml:"sync_writes" env:"SYNC_WRITES"`

	// CacheSize bounds the decoded changes a PersistentIndex keeps.
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`

	// Logger receives the backend's own logging and the PersistentIndex
	// logging of OpenIndex. Nil means slog.Default().
	Logger *slog.Logger `yaml:"-" env:"-"`
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

func (cfg Config) badgerConfig() badger.Config {
	return badger.Config{
		Path:       cfg.Path,
		InMemory:   cfg.InMemory,
		SyncWrites: cfg.SyncWrites,
		Logger:     cfg.logger(),
	}
}

// DefaultConfig is an in-memory store.
func DefaultConfig() Config {
	return Config{
		Backend:   Memory,
		CacheSize: chronicle.DefaultCacheSize,
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file at path
// if path is not empty, then applies CHRONICLE_STORE_* variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	switch cfg.Backend {
	case Memory:
	case File, SQLite:
		if cfg.Path == "" {
			return fmt.Errorf("%s store: path is required", cfg.Backend)
		}
	case Badger:
		if cfg.Path == "" && !cfg.InMemory {
			return errors.New("badger store: path is required unless in_memory is set")
		}
	case S3:
		if cfg.Bucket == "" {
			return errors.New("s3 store: bucket is required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if cfg.CacheSize < 0 {
		return fmt.Errorf("cache_size %d is negative", cfg.CacheSize)
	}
	return nil
}

// Open returns the configured store and a func releasing it.
func Open(ctx context.Context, cfg Config) (chronicle.Persist, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }
	switch cfg.Backend {
	case File:
		return file.NewPersistForPath(cfg.Path), noop, nil
	case S3:
		awsConfig := aws.NewConfig()
		if cfg.Region != "" {
			awsConfig = awsConfig.WithRegion(cfg.Region)
		}
		if cfg.Endpoint != "" {
			awsConfig = awsConfig.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
		}
		sess, err := session.NewSession(awsConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 session: %w", err)
		}
		return s3.NewPersist(awss3.New(sess), cfg.Bucket, cfg.Prefix), noop, nil
	case Badger:
		p, err := badger.Open(cfg.badgerConfig())
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case SQLite:
		p, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return chronicle.NewInMemoryStore(), noop, nil
	}
}

// OpenIndex opens the configured store and builds a PersistentIndex on
// it. The returned func releases the store.
func OpenIndex[O any](ctx context.Context, cfg Config, opts *chronicle.PersistentIndexOptions[O]) (*chronicle.PersistentIndex[O], func() error, error) {
	p, closer, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	o := chronicle.PersistentIndexOptions[O]{}
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = cfg.logger()
	}
	if o.Cache == nil && cfg.CacheSize > 0 {
		o.Cache = chronicle.NewChangeCache(cfg.CacheSize)
	}
	index, err := chronicle.NewPersistentIndex[O](ctx, p, &o)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return index, closer, nil
}

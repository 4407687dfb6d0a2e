// Package cache provides the byte-oriented key/value store behind the
// profile directory: an in-process map or a shared Redis.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend is implemented by MemoryCache and RedisCache
type Backend interface {
	// Get returns (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// GetMultiple returns only the keys that were found
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)

	SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	Close() error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and sizes a backend
type Config struct {
	Backend  string // "memory" (default) or "redis"
	RedisURL string // redis://[:password@]host:port/db
	Prefix   string // key namespace, e.g. "zapboard:"

	MaxEntries      int
	CleanupInterval time.Duration
}

// DefaultConfig is an in-memory cache sized for a few thousand profiles
func DefaultConfig() Config {
	return Config{
		Backend:         BackendMemory,
		Prefix:          "zapboard:",
		MaxEntries:      5000,
		CleanupInterval: time.Minute,
	}
}

// New builds the configured backend
func New(cfg Config) (Backend, error) {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryCache(cfg.MaxEntries, cfg.CleanupInterval), nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("cache backend %q requires a redis URL", cfg.Backend)
		}
		return NewRedisCache(cfg.RedisURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

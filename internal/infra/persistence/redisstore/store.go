// Package redisstore persists cart snapshots in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/observability"
)

const (
	defaultConnectAttempts = 8
	pingTimeout            = 3 * time.Second
	maxConnectInterval     = 10 * time.Second
)

// Options configures the Redis snapshot store.
type Options struct {
	Addr      string
	DB        int
	Password  string
	KeyPrefix string
	// TTL expires idle carts. Zero keeps snapshots forever.
	TTL time.Duration
	// ConnectAttempts bounds the startup ping loop.
	ConnectAttempts int
}

// Store is a snapshotstore.Store backed by a go-redis client.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ snapshotstore.Store  = (*Store)(nil)
	_ snapshotstore.Closer = (*Store)(nil)
)

// Open dials Redis and waits, with exponential backoff, until it answers PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis store: addr required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := waitForPing(ctx, rdb, opts.ConnectAttempts); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	observability.Log().Info("redis snapshot store connected",
		observability.F("addr", addr),
		observability.F("db", opts.DB))
	return NewWithClient(rdb, opts.KeyPrefix, opts.TTL), nil
}

// NewWithClient wraps an existing client without probing it.
func NewWithClient(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func waitForPing(ctx context.Context, rdb *redis.Client, attempts int) error {
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxConnectInterval

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = rdb.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxConnectInterval
		}
		observability.Log().Info("redis not ready",
			observability.F("attempt", attempt),
			observability.F("retry_in", sleep.String()),
			observability.F("error", lastErr))
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis store: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("redis store: ping after %d attempts: %w", attempts, lastErr)
}

// Load fetches the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, snapshotstore.ErrNotFound
		}
		return nil, fmt.Errorf("redis store: get %q: %w", key, err)
	}
	return data, nil
}

// Save replaces the snapshot stored under key and refreshes its TTL.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set %q: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis store: del %q: %w", key, err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis store: close: %w", err)
	}
	return nil
}

func (s *Store) key(key string) string {
	return s.prefix + strings.TrimSpace(key)
}

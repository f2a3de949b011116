// Package persistence selects and opens the configured snapshot backend.
package persistence

import (
	"context"
	"fmt"
	"log"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/persistence/filestore"
	"github.com/maisonlune/storefront/internal/infra/persistence/memory"
	"github.com/maisonlune/storefront/internal/infra/persistence/migrations"
	"github.com/maisonlune/storefront/internal/infra/persistence/postgres"
	"github.com/maisonlune/storefront/internal/infra/persistence/redisstore"
)

// Store couples an opened snapshot backend with its driver name.
type Store struct {
	snapshotstore.Store
	driver config.StorageDriver
}

// Open builds the backend selected by cfg.Driver. Postgres migrations run when
// cfg.Database.RunMigrations is set. A nil logger disables migration logging.
func Open(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (*Store, error) {
	var (
		backend snapshotstore.Store
		err     error
	)
	switch cfg.Driver {
	case config.StorageMemory, "":
		backend = memory.New()
	case config.StorageFile:
		backend, err = filestore.New(cfg.File.Dir)
	case config.StorageRedis:
		backend, err = redisstore.Open(ctx, redisstore.Options{
			Addr:      cfg.Redis.Addr,
			DB:        cfg.Redis.DB,
			Password:  cfg.Redis.Password,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
	case config.StoragePostgres:
		backend, err = openPostgres(ctx, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("persistence: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageMemory
	}
	return &Store{Store: backend, driver: driver}, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (snapshotstore.Store, error) {
	if cfg.RunMigrations {
		if err := migrations.Apply(ctx, cfg.DSN, migrations.Embedded, logger); err != nil {
			return nil, err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	postgres.ObservePoolMetrics(pool, "snapshots")
	return postgres.NewSnapshotStore(pool), nil
}

// Driver reports the backend in use.
func (s *Store) Driver() config.StorageDriver {
	if s == nil {
		return ""
	}
	return s.driver
}

// Close releases backend connections when the backend holds any.
func (s *Store) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	if closer, ok := s.Store.(snapshotstore.Closer); ok {
		return closer.Close()
	}
	return nil
}

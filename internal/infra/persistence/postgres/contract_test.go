package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/persistence/migrations"
	pgstore "github.com/maisonlune/storefront/internal/infra/persistence/postgres"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "storefront"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		setupErr = fmt.Errorf("start postgres container: %w", err)
	} else {
		pgContainer = container
		setupErr = initialiseDatabase(ctx)
	}
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "postgres contract tests skipped: %v\n", setupErr)
	}

	exitCode := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/storefront?sslmode=disable", host, port.Port())

	if err := migrations.Apply(ctx, dsn, migrations.Embedded, nil); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Re-applying must be a no-op.
	if err := migrations.Apply(ctx, dsn, migrations.Embedded, nil); err != nil {
		return fmt.Errorf("reapply migrations: %w", err)
	}

	cfg := config.Default().Storage.Database
	cfg.DSN = dsn
	pool, err := pgstore.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func TestPostgresSnapshotStore(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := pgstore.NewSnapshotStore(testPool)
	pgstore.ObservePoolMetrics(testPool, "contract")

	key := "shopify-cart-storage:session-1"
	_, err := store.Load(ctx, key)
	require.ErrorIs(t, err, snapshotstore.ErrNotFound)

	require.NoError(t, store.Save(ctx, key, []byte(`{"items":[{"variantId":"v1","quantity":1}]}`)))
	require.NoError(t, store.Save(ctx, key, []byte(`{"items":[{"variantId":"v1","quantity":3}]}`)))

	payload, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[{"variantId":"v1","quantity":3}]}`, string(payload))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	require.ErrorIs(t, err, snapshotstore.ErrNotFound)

	require.NoError(t, store.Save(ctx, "demo-cart-storage:session-2", []byte(`{"items":[]}`)))
	payload, err = store.Load(ctx, "demo-cart-storage:session-2")
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[]}`, string(payload))
}

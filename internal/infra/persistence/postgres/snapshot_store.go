package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
)

// SnapshotStore persists cart snapshots in the cart_snapshots table.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var (
	_ snapshotstore.Store  = (*SnapshotStore)(nil)
	_ snapshotstore.Closer = (*SnapshotStore)(nil)
)

// NewSnapshotStore constructs a SnapshotStore backed by the provided pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const (
	snapshotLoadSQL = `
SELECT payload
FROM cart_snapshots
WHERE storage_key = $1;
`

	snapshotUpsertSQL = `
INSERT INTO cart_snapshots (storage_key, payload)
VALUES ($1, $2)
ON CONFLICT (storage_key) DO UPDATE
SET payload = EXCLUDED.payload,
    updated_at = NOW();
`

	snapshotDeleteSQL = `
DELETE FROM cart_snapshots
WHERE storage_key = $1;
`
)

// Load returns the payload stored under key.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("snapshot store: nil pool")
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, snapshotLoadSQL, strings.TrimSpace(key)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshotstore.ErrNotFound
		}
		return nil, fmt.Errorf("snapshot store: load %q: %w", key, err)
	}
	return payload, nil
}

// Save upserts the payload stored under key.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	if s.pool == nil {
		return fmt.Errorf("snapshot store: nil pool")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("snapshot store: key required")
	}
	if _, err := s.pool.Exec(ctx, snapshotUpsertSQL, trimmed, data); err != nil {
		return fmt.Errorf("snapshot store: save %q: %w", key, err)
	}
	return nil
}

// Delete removes the payload stored under key. Missing rows are ignored.
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if s.pool == nil {
		return fmt.Errorf("snapshot store: nil pool")
	}
	if _, err := s.pool.Exec(ctx, snapshotDeleteSQL, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("snapshot store: delete %q: %w", key, err)
	}
	return nil
}

// Close releases the pool.
func (s *SnapshotStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
)

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "carts")
	store, err := New(dir)
	require.NoError(t, err)

	key := "shopify-cart-storage:../../etc/passwd"
	_, err = store.Load(ctx, key)
	require.ErrorIs(t, err, snapshotstore.ErrNotFound)

	require.NoError(t, store.Save(ctx, key, []byte(`{"items":[{"quantity":1}]}`)))
	require.NoError(t, store.Save(ctx, key, []byte(`{"items":[]}`)))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `{"items":[]}`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	require.ErrorIs(t, err, snapshotstore.ErrNotFound)
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.Save(ctx, "k", []byte("v")), context.Canceled)
}

package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/infra/persistence/memory"
)

type testItem struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

func testKey(i testItem) string { return i.ID }

func testPrice(i testItem) decimal.Decimal { return decimal.RequireFromString(i.Price) }

func newTestStore(opts ...Option) *Store[testItem] {
	return New[testItem]("test", "test-cart-storage", testKey, testPrice, opts...)
}

type failingStorage struct {
	*memory.Store
	saveErr error
}

func (f *failingStorage) Save(ctx context.Context, key string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, key, data)
}

func TestEmptyCartTotals(t *testing.T) {
	s := newTestStore()
	require.Zero(t, s.TotalItems())
	require.True(t, s.TotalPrice().IsZero())
	require.Zero(t, s.TotalPriceFloat())
	require.Empty(t, s.Lines())
	require.False(t, s.IsOpen())
}

func TestAddMergesByKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "10.00"}, 1))
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "10.00"}, 2))

	require.Equal(t, 3, s.TotalItems())
	require.Equal(t, 1, s.Len())
	require.True(t, s.TotalPrice().Equal(decimal.RequireFromString("30.00")))
	require.Equal(t, 30.0, s.TotalPriceFloat())
	require.True(t, s.IsOpen())
}

func TestAddMergeKeepsFirstSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "10.00"}, 1))
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "12.00"}, 1))

	line, ok := s.Line("A")
	require.True(t, ok)
	require.Equal(t, "10.00", line.Item.Price)
	require.True(t, s.TotalPrice().Equal(decimal.NewFromInt(20)))
}

func TestAddTreatsNonPositiveQuantityAsOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 0))
	require.NoError(t, s.Add(ctx, testItem{ID: "B", Price: "1"}, -4))
	require.Equal(t, 2, s.TotalItems())
}

func TestInsertionOrderPreserved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	for _, id := range []string{"C", "A", "B"} {
		require.NoError(t, s.Add(ctx, testItem{ID: id, Price: "1"}, 1))
	}
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 1))

	var ids []string
	for _, line := range s.Lines() {
		ids = append(ids, line.Item.ID)
	}
	require.Equal(t, []string{"C", "A", "B"}, ids)
}

func TestUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "X", Price: "50"}, 1))
	require.NoError(t, s.Add(ctx, testItem{ID: "Y", Price: "20"}, 2))
	require.True(t, s.TotalPrice().Equal(decimal.NewFromInt(90)))

	require.NoError(t, s.Remove(ctx, "X"))
	require.True(t, s.TotalPrice().Equal(decimal.NewFromInt(40)))

	require.NoError(t, s.UpdateQuantity(ctx, "Y", 5))
	require.Equal(t, 5, s.TotalItems())

	require.NoError(t, s.UpdateQuantity(ctx, "Y", 0))
	_, ok := s.Line("Y")
	require.False(t, ok)
	require.Zero(t, s.Len())
}

func TestUpdateNegativeRemoves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "Y", Price: "20"}, 2))
	require.NoError(t, s.UpdateQuantity(ctx, "Y", -1))
	require.Zero(t, s.Len())
}

func TestAbsentKeysAreNoOps(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	s := newTestStore(WithStorage(storage))
	var notified int32
	s.Subscribe(func() { atomic.AddInt32(&notified, 1) })

	require.NoError(t, s.UpdateQuantity(ctx, "ghost", 3))
	require.NoError(t, s.Remove(ctx, "ghost"))
	require.Zero(t, s.Len())
	require.Zero(t, atomic.LoadInt32(&notified))
	require.Zero(t, storage.Len(), "no-ops must not write a snapshot")
}

func TestClearEmptiesCart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 3))
	require.NoError(t, s.Clear(ctx))
	require.Zero(t, s.TotalItems())
	require.True(t, s.TotalPrice().IsZero())
}

func TestSetOpenDoesNotPersist(t *testing.T) {
	storage := memory.New()
	s := newTestStore(WithStorage(storage))
	s.SetOpen(true)
	require.True(t, s.IsOpen())
	s.SetOpen(false)
	require.False(t, s.IsOpen())
	require.Zero(t, storage.Len())
}

func TestPersistAndRehydrate(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	s := newTestStore(WithStorage(storage))
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "10.00"}, 2))
	require.NoError(t, s.Add(ctx, testItem{ID: "B", Price: "5.50"}, 1))

	raw, err := storage.Load(ctx, "test-cart-storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[{"id":"A","price":"10.00","quantity":2},{"id":"B","price":"5.50","quantity":1}]}`, string(raw))

	restored := newTestStore(WithStorage(storage))
	require.NoError(t, restored.Init(ctx))
	require.Equal(t, s.Lines(), restored.Lines())
	require.True(t, restored.TotalPrice().Equal(decimal.RequireFromString("25.50")))
	require.False(t, restored.IsOpen(), "visibility is not persisted")
}

func TestInitMissingSnapshotIsEmpty(t *testing.T) {
	s := newTestStore(WithStorage(memory.New()))
	require.NoError(t, s.Init(context.Background()))
	require.Zero(t, s.Len())
}

func TestInitDiscardsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	require.NoError(t, storage.Save(ctx, "test-cart-storage", []byte("{not json")))

	s := newTestStore(WithStorage(storage))
	require.NoError(t, s.Init(ctx))
	require.Zero(t, s.Len())
}

func TestInitDropsInvalidAndMergesDuplicates(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	require.NoError(t, storage.Save(ctx, "test-cart-storage", []byte(`{"items":[
		{"id":"A","price":"1.00","quantity":2},
		{"id":"","price":"1.00","quantity":1},
		{"id":"B","price":"3.00","quantity":0},
		{"id":"A","price":"9.00","quantity":1},
		{"id":"C","price":"2.00","quantity":-3},
		"garbage"
	]}`)))

	s := newTestStore(WithStorage(storage))
	require.NoError(t, s.Init(ctx))
	lines := s.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, "A", lines[0].Item.ID)
	require.Equal(t, 3, lines[0].Quantity)
	require.Equal(t, "1.00", lines[0].Item.Price)
}

func TestInitReportsStorageFailure(t *testing.T) {
	s := newTestStore(WithStorage(&erroringLoad{Store: memory.New()}))
	err := s.Init(context.Background())
	require.True(t, errs.Is(err, errs.CodeStorage))
	require.Zero(t, s.Len())
}

type erroringLoad struct {
	*memory.Store
}

func (e *erroringLoad) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestPersistFailureStillAppliesMutation(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{Store: memory.New(), saveErr: errors.New("disk full")}
	s := newTestStore(WithStorage(storage))

	err := s.Add(ctx, testItem{ID: "A", Price: "4.00"}, 1)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeStorage))
	require.Equal(t, 1, s.TotalItems())

	storage.saveErr = nil
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "4.00"}, 1))
	raw, err := storage.Load(ctx, "test-cart-storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[{"id":"A","price":"4.00","quantity":2}]}`, string(raw))
}

func TestCloseFlushesAndRejectsMutations(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	s := newTestStore(WithStorage(storage))
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 1))
	require.NoError(t, storage.Delete(ctx, "test-cart-storage"))

	var notified int32
	s.Subscribe(func() { atomic.AddInt32(&notified, 1) })

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	_, err := storage.Load(ctx, "test-cart-storage")
	require.NoError(t, err, "close must flush the snapshot")

	require.ErrorIs(t, s.Add(ctx, testItem{ID: "B", Price: "1"}, 1), ErrClosed)
	require.ErrorIs(t, s.Clear(ctx), ErrClosed)
	require.Equal(t, 1, s.TotalItems())
	require.Zero(t, atomic.LoadInt32(&notified))
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	var count int32
	unsubscribe := s.Subscribe(func() { atomic.AddInt32(&count, 1) })

	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 1))
	s.SetOpen(false)
	require.Equal(t, int32(2), atomic.LoadInt32(&count))

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "1"}, 1))
	require.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestConcurrentAddsAreSerialised(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(WithStorage(memory.New()))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, testItem{ID: "A", Price: "0.10"}, 1)
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.TotalItems())
	require.True(t, s.TotalPrice().Equal(decimal.NewFromInt(5)))
}

func TestViewIsConsistent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, testItem{ID: "A", Price: "2.50"}, 2))
	view := s.View()
	require.Len(t, view.Lines, 1)
	require.Equal(t, 2, view.TotalItems)
	require.True(t, view.TotalPrice.Equal(decimal.NewFromInt(5)))
	require.True(t, view.Open)

	view.Lines[0].Quantity = 99
	require.Equal(t, 2, s.TotalItems(), "view lines are copies")
}

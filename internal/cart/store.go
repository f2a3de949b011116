// Package cart implements the storefront's shopping carts: one generic store
// instantiated for remote catalog variants and for demo products.
package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
	"github.com/maisonlune/storefront/internal/observability"
)

const component = "cart"

var (
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("cart: closed")
	// ErrEmptyCart is returned by checkout on a cart with no lines.
	ErrEmptyCart = errors.New("cart: empty")
	// ErrCheckoutInProgress is returned when a checkout is already in flight.
	ErrCheckoutInProgress = errors.New("cart: checkout already in progress")
)

// KeyFunc extracts the identity key of an item.
type KeyFunc[T any] func(T) string

// PriceFunc extracts the unit price of an item.
type PriceFunc[T any] func(T) decimal.Decimal

// Line is one cart entry.
type Line[T any] struct {
	Item     T
	Quantity int
}

// View is a consistent read of the cart taken under a single lock.
type View[T any] struct {
	Lines      []Line[T]
	TotalItems int
	TotalPrice decimal.Decimal
	Open       bool
}

// Store holds an ordered set of lines keyed by KeyFunc. Every mutation is
// written to the snapshot store under a fixed key before the call returns.
type Store[T any] struct {
	name    string
	key     string
	keyFn   KeyFunc[T]
	priceFn PriceFunc[T]
	storage snapshotstore.Store
	metrics *telemetry.StoreMetrics

	mu     sync.Mutex
	lines  []Line[T]
	open   bool
	closed bool

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// New constructs an empty store. name labels logs and metrics; storageKey is
// the snapshot key. Without WithStorage the cart lives in memory only.
func New[T any](name, storageKey string, keyFn KeyFunc[T], priceFn PriceFunc[T], opts ...Option) *Store[T] {
	o := buildOptions(opts)
	return &Store[T]{
		name:    name,
		key:     storageKey,
		keyFn:   keyFn,
		priceFn: priceFn,
		storage: o.storage,
		metrics: o.metrics,
		subs:    make(map[int]func()),
	}
}

// Name returns the cart label.
func (s *Store[T]) Name() string { return s.name }

// StorageKey returns the snapshot key.
func (s *Store[T]) StorageKey() string { return s.key }

// Init replaces the in-memory state with the persisted snapshot. A missing
// snapshot leaves the cart empty. A corrupt snapshot is logged and discarded.
func (s *Store[T]) Init(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	data, err := s.storage.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, snapshotstore.ErrNotFound) {
			return nil
		}
		return errs.New(component, errs.CodeStorage,
			errs.WithMessage("load snapshot"),
			errs.WithField("cart", s.name),
			errs.WithField("key", s.key),
			errs.WithCause(err))
	}

	lines, dropped, err := decodeSnapshot(data, s.keyFn)
	if err != nil {
		observability.Log().Error("discarding corrupt cart snapshot",
			observability.F("cart", s.name),
			observability.F("key", s.key),
			observability.F("error", err))
		lines = nil
	} else if dropped > 0 {
		observability.Log().Info("dropped invalid cart entries",
			observability.F("cart", s.name),
			observability.F("dropped", dropped))
	}

	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
	s.notify()
	return nil
}

// Close writes a final snapshot and detaches subscribers. Later mutations fail with ErrClosed.
func (s *Store[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.persistLocked(ctx, "close")
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[int]func())
	s.subMu.Unlock()
	return err
}

// Add merges quantity into the line with the item's key, or appends a new
// line. Quantities below one count as one. The stored item is not replaced
// on merge. The cart is opened.
func (s *Store[T]) Add(ctx context.Context, item T, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	key := s.keyFn(item)
	return s.mutate(ctx, "add", func() bool {
		s.open = true
		if idx := s.indexLocked(key); idx >= 0 {
			s.lines[idx].Quantity += quantity
			return true
		}
		s.lines = append(s.lines, Line[T]{Item: item, Quantity: quantity})
		return true
	})
}

// UpdateQuantity sets the quantity of the keyed line. A quantity of zero or
// less removes the line. Unknown keys are ignored.
func (s *Store[T]) UpdateQuantity(ctx context.Context, key string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, key)
	}
	return s.mutate(ctx, "update", func() bool {
		idx := s.indexLocked(key)
		if idx < 0 {
			return false
		}
		s.lines[idx].Quantity = quantity
		return true
	})
}

// Remove deletes the keyed line. Unknown keys are ignored.
func (s *Store[T]) Remove(ctx context.Context, key string) error {
	return s.mutate(ctx, "remove", func() bool {
		idx := s.indexLocked(key)
		if idx < 0 {
			return false
		}
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
		return true
	})
}

// Clear empties the cart.
func (s *Store[T]) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func() bool {
		s.lines = nil
		return true
	})
}

// SetOpen toggles drawer visibility. It is not persisted.
func (s *Store[T]) SetOpen(open bool) {
	s.mu.Lock()
	changed := s.open != open
	s.open = open
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// IsOpen reports drawer visibility.
func (s *Store[T]) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Lines returns a copy of the lines in insertion order.
func (s *Store[T]) Lines() []Line[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLinesLocked()
}

// Line returns the keyed line.
func (s *Store[T]) Line(key string) (Line[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(key); idx >= 0 {
		return s.lines[idx], true
	}
	return Line[T]{}, false
}

// Len returns the number of distinct lines.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// TotalItems sums line quantities.
func (s *Store[T]) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalItemsLocked()
}

// TotalPrice sums price times quantity over all lines.
func (s *Store[T]) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPriceLocked()
}

// TotalPriceFloat is TotalPrice as a float64 for display.
func (s *Store[T]) TotalPriceFloat() float64 {
	f, _ := s.TotalPrice().Float64()
	return f
}

// View returns lines, totals and visibility from one consistent read.
func (s *Store[T]) View() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View[T]{
		Lines:      s.copyLinesLocked(),
		TotalItems: s.totalItemsLocked(),
		TotalPrice: s.totalPriceLocked(),
		Open:       s.open,
	}
}

// Subscribe registers fn to run after every state change. fn runs on the
// mutating goroutine without locks held and must not block.
func (s *Store[T]) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store[T]) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mutate applies fn under the lock and persists when fn reports a change.
// The in-memory change stands even when the write fails; the write error is returned.
func (s *Store[T]) mutate(ctx context.Context, op string, fn func() bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !fn() {
		s.mu.Unlock()
		return nil
	}
	err := s.persistLocked(ctx, op)
	s.mu.Unlock()

	s.metrics.RecordMutation(ctx, s.name, op)
	s.notify()
	return err
}

func (s *Store[T]) persistLocked(ctx context.Context, op string) error {
	if s.storage == nil {
		return nil
	}
	payload, err := encodeSnapshot(s.lines)
	if err == nil {
		err = s.storage.Save(ctx, s.key, payload)
	}
	if err == nil {
		return nil
	}
	s.metrics.RecordPersistFailure(ctx, s.name, op)
	observability.Log().Error("cart snapshot write failed",
		observability.F("cart", s.name),
		observability.F("operation", op),
		observability.F("key", s.key),
		observability.F("error", err))
	return errs.New(component, errs.CodeStorage,
		errs.WithMessage("persist snapshot"),
		errs.WithField("cart", s.name),
		errs.WithField("operation", op),
		errs.WithCause(err))
}

func (s *Store[T]) indexLocked(key string) int {
	for i := range s.lines {
		if s.keyFn(s.lines[i].Item) == key {
			return i
		}
	}
	return -1
}

func (s *Store[T]) copyLinesLocked() []Line[T] {
	out := make([]Line[T], len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store[T]) totalItemsLocked() int {
	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total
}

func (s *Store[T]) totalPriceLocked() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.lines {
		total = total.Add(s.priceFn(line.Item).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

package cart

import (
	"time"

	"github.com/maisonlune/storefront/internal/domain/snapshotstore"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
)

const (
	defaultCheckoutTimeout = 20 * time.Second
	defaultCurrency        = "USD"
)

type options struct {
	storage         snapshotstore.Store
	metrics         *telemetry.StoreMetrics
	checkoutTimeout time.Duration
	currency        string
}

// Option configures a cart.
type Option func(*options)

// WithStorage persists the cart to store.
func WithStorage(store snapshotstore.Store) Option {
	return func(o *options) {
		o.storage = store
	}
}

// WithMetrics records cart instruments on m.
func WithMetrics(m *telemetry.StoreMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCheckoutTimeout bounds a remote checkout call.
func WithCheckoutTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkoutTimeout = d
		}
	}
}

// WithDefaultCurrency sets the currency reported by an empty cart.
func WithDefaultCurrency(code string) Option {
	return func(o *options) {
		if code != "" {
			o.currency = code
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		checkoutTimeout: defaultCheckoutTimeout,
		currency:        defaultCurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

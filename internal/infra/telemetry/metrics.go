package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names exported by the storefront.
const (
	CartMutations          = "storefront_cart_mutations_total"
	CartPersistFailures    = "storefront_cart_persist_failures_total"
	CheckoutTotal          = "storefront_checkout_total"
	CheckoutDuration       = "storefront_checkout_duration"
	CatalogRequestDuration = "storefront_catalog_request_duration"
)

// StoreMetrics records cart and catalog instruments. A nil *StoreMetrics is a
// valid no-op recorder.
type StoreMetrics struct {
	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
	checkouts       metric.Int64Counter
	checkoutLatency metric.Float64Histogram
	catalogLatency  metric.Float64Histogram
}

var (
	defaultMetrics     *StoreMetrics
	defaultMetricsOnce sync.Once
)

// Metrics returns the process-wide recorder bound to the global meter provider.
// It must be first called after the provider has been installed.
func Metrics() *StoreMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewStoreMetrics(otel.Meter("storefront"))
	})
	return defaultMetrics
}

// NewStoreMetrics creates the storefront instruments on the provided meter.
// Instruments that fail to register are left nil and skipped when recording.
func NewStoreMetrics(meter metric.Meter) *StoreMetrics {
	m := new(StoreMetrics)
	m.mutations, _ = meter.Int64Counter(CartMutations,
		metric.WithDescription("Cart mutations applied"),
		metric.WithUnit("{mutation}"))
	m.persistFailures, _ = meter.Int64Counter(CartPersistFailures,
		metric.WithDescription("Cart snapshot writes that failed"),
		metric.WithUnit("{write}"))
	m.checkouts, _ = meter.Int64Counter(CheckoutTotal,
		metric.WithDescription("Checkout attempts by outcome"),
		metric.WithUnit("{checkout}"))
	m.checkoutLatency, _ = meter.Float64Histogram(CheckoutDuration,
		metric.WithDescription("Checkout creation latency"),
		metric.WithUnit("ms"))
	m.catalogLatency, _ = meter.Float64Histogram(CatalogRequestDuration,
		metric.WithDescription("Storefront API request latency"),
		metric.WithUnit("ms"))
	return m
}

// RecordMutation counts a cart mutation.
func (m *StoreMetrics) RecordMutation(ctx context.Context, cart, operation string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(CartAttributes(cart, operation)...))
}

// RecordPersistFailure counts a failed snapshot write.
func (m *StoreMetrics) RecordPersistFailure(ctx context.Context, cart, operation string) {
	if m == nil || m.persistFailures == nil {
		return
	}
	m.persistFailures.Add(ctx, 1, metric.WithAttributes(CartAttributes(cart, operation)...))
}

// RecordCheckout counts a checkout attempt and its latency.
func (m *StoreMetrics) RecordCheckout(ctx context.Context, cart, result, currency string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(CheckoutAttributes(cart, result, currency)...)
	if m.checkouts != nil {
		m.checkouts.Add(ctx, 1, attrs)
	}
	if m.checkoutLatency != nil && elapsed > 0 {
		m.checkoutLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

// RecordCatalogRequest records the latency of a Storefront API call.
func (m *StoreMetrics) RecordCatalogRequest(ctx context.Context, operation, result string, elapsed time.Duration) {
	if m == nil || m.catalogLatency == nil {
		return
	}
	m.catalogLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(OperationResultAttributes(operation, result)...))
}

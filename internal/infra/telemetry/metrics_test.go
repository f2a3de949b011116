package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestStoreMetricsRecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	SetEnvironment("Staging")
	defer SetEnvironment("")

	m := NewStoreMetrics(provider.Meter("test"))
	ctx := context.Background()
	m.RecordMutation(ctx, "remote", "add")
	m.RecordMutation(ctx, "remote", "add")
	m.RecordPersistFailure(ctx, "demo", "remove")
	m.RecordCheckout(ctx, "remote", ResultSuccess, "USD", 120*time.Millisecond)
	m.RecordCatalogRequest(ctx, "products", ResultSuccess, 40*time.Millisecond)

	metrics := collect(t, reader)

	mutations, ok := metrics[CartMutations].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, mutations.DataPoints, 1)
	require.Equal(t, int64(2), mutations.DataPoints[0].Value)
	env, ok := mutations.DataPoints[0].Attributes.Value(AttrEnvironment)
	require.True(t, ok)
	require.Equal(t, "staging", env.AsString())

	failures, ok := metrics[CartPersistFailures].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(1), failures.DataPoints[0].Value)

	checkouts, ok := metrics[CheckoutTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	result, ok := checkouts.DataPoints[0].Attributes.Value(AttrResult)
	require.True(t, ok)
	require.Equal(t, ResultSuccess, result.AsString())

	latency, ok := metrics[CatalogRequestDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Equal(t, uint64(1), latency.DataPoints[0].Count)
}

func TestNilStoreMetricsIsNoop(t *testing.T) {
	var m *StoreMetrics
	ctx := context.Background()
	require.NotPanics(t, func() {
		m.RecordMutation(ctx, "remote", "add")
		m.RecordPersistFailure(ctx, "remote", "add")
		m.RecordCheckout(ctx, "remote", ResultFailed, "", time.Second)
		m.RecordCatalogRequest(ctx, "product", ResultFailed, time.Second)
	})
}

func TestEnvironmentDefaultsToDevelopment(t *testing.T) {
	SetEnvironment("")
	require.Equal(t, "development", Environment())
	SetEnvironment(" PROD ")
	require.Equal(t, "prod", Environment())
	SetEnvironment("")
}

func TestDisabledProviderIsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "dev"})
	require.NoError(t, err)
	require.False(t, provider.Enabled())
	require.NotNil(t, provider.Meter("noop"))
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

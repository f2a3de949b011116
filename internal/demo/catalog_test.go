package demo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBundledCatalog(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	all := catalog.All()
	require.NotEmpty(t, all)
	for _, p := range all {
		require.NotEmpty(t, p.ID)
		require.Equal(t, "USD", p.Currency)
		require.True(t, p.Price.IsPositive(), p.ID)
	}
	require.Equal(t, []string{"rings", "necklaces", "earrings", "bracelets"}, catalog.Categories())

	ring, ok := catalog.ByID("demo-ring-crescent")
	require.True(t, ok)
	require.Equal(t, "120", ring.Price.String())

	_, ok = catalog.ByID("missing")
	require.False(t, ok)
	require.Len(t, catalog.ByCategory("Rings"), 2)
	require.Empty(t, catalog.ByCategory("watches"))
}

func TestAllReturnsCopy(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)
	all := catalog.All()
	all[0].Name = "mutated"
	again := catalog.All()
	require.NotEqual(t, "mutated", again[0].Name)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	_, err := Parse([]byte("products:\n  - name: no id\n"))
	require.Error(t, err)

	_, err = Parse([]byte("products:\n  - id: a\n  - id: a\n"))
	require.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("products:\n  - id: a\n    price: \"-1\"\n"))
	require.ErrorContains(t, err, "negative")

	_, err = Parse([]byte("products: [unterminated"))
	require.Error(t, err)
}

func TestParseDefaultsCurrency(t *testing.T) {
	catalog, err := Parse([]byte("currency: eur\nproducts:\n  - id: a\n    price: \"5\"\n  - id: b\n    price: \"5\"\n    currency: GBP\n"))
	require.NoError(t, err)
	a, _ := catalog.ByID("a")
	b, _ := catalog.ByID("b")
	require.Equal(t, "EUR", a.Currency)
	require.Equal(t, "GBP", b.Currency)
}

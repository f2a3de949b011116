package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/maisonlune/storefront/internal/demo"
	"github.com/maisonlune/storefront/internal/infra/persistence/memory"
)

func product(id, price string) demo.Product {
	return demo.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Currency: "USD",
		Category: "rings",
	}
}

func TestLocalCartScenarioRemove(t *testing.T) {
	ctx := context.Background()
	c := NewLocal("demo-cart-storage")
	require.NoError(t, c.Add(ctx, product("X", "50"), 1))
	require.NoError(t, c.Add(ctx, product("Y", "20"), 2))
	require.True(t, c.TotalPrice().Equal(decimal.NewFromInt(90)))

	require.NoError(t, c.Remove(ctx, "X"))
	require.True(t, c.TotalPrice().Equal(decimal.NewFromInt(40)))
}

func TestLocalCheckoutEmpty(t *testing.T) {
	c := NewLocal("demo-cart-storage")
	_, err := c.Checkout(context.Background())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestLocalCheckoutReceipt(t *testing.T) {
	ctx := context.Background()
	c := NewLocal("demo-cart-storage", WithDefaultCurrency("EUR"))
	require.Equal(t, "EUR", c.Currency())
	require.NoError(t, c.Add(ctx, product("X", "50"), 1))
	require.NoError(t, c.Add(ctx, product("Y", "19.99"), 2))

	receipt, err := c.Checkout(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(receipt.Reference)
	require.NoError(t, err)
	require.Equal(t, 3, receipt.TotalItems)
	require.True(t, receipt.TotalPrice.Equal(decimal.RequireFromString("89.98")))
	require.Equal(t, "USD", receipt.Currency)
	require.Len(t, receipt.Lines, 2)
	require.False(t, receipt.CreatedAt.IsZero())
	require.Equal(t, 3, c.TotalItems(), "demo checkout keeps the cart")

	again, err := c.Checkout(ctx)
	require.NoError(t, err)
	require.NotEqual(t, receipt.Reference, again.Reference)
}

func TestLocalCartRehydratesEmbeddedProduct(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	c := NewLocal("demo-cart-storage", WithStorage(storage))
	p := product("X", "12.50")
	p.Images = []string{"/images/x.jpg"}
	require.NoError(t, c.Add(ctx, p, 2))

	restored := NewLocal("demo-cart-storage", WithStorage(storage))
	require.NoError(t, restored.Init(ctx))
	line, ok := restored.Line("X")
	require.True(t, ok)
	require.Equal(t, 2, line.Quantity)
	require.Equal(t, "Product X", line.Item.Name)
	require.Equal(t, []string{"/images/x.jpg"}, line.Item.Images)
	require.True(t, line.Item.Price.Equal(decimal.RequireFromString("12.50")))
}

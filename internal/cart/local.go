package cart

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maisonlune/storefront/internal/demo"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
)

// DemoName labels the demo cart in logs and metrics.
const DemoName = "demo"

// LocalCart holds demo catalog products. Its checkout never leaves the process.
type LocalCart struct {
	*Store[demo.Product]
	currency string
}

// DemoReceipt is what a demo checkout produces.
type DemoReceipt struct {
	Reference  string
	Lines      []Line[demo.Product]
	TotalItems int
	TotalPrice decimal.Decimal
	Currency   string
	CreatedAt  time.Time
}

// ProductKey is the demo cart identity: the product id.
func ProductKey(p demo.Product) string { return p.ID }

// ProductPrice is the demo product's unit price.
func ProductPrice(p demo.Product) decimal.Decimal { return p.Price }

// NewLocal constructs a demo cart persisted under storageKey.
func NewLocal(storageKey string, opts ...Option) *LocalCart {
	o := buildOptions(opts)
	return &LocalCart{
		Store:    New[demo.Product](DemoName, storageKey, ProductKey, ProductPrice, opts...),
		currency: o.currency,
	}
}

// Currency returns the first line's currency, or the default when empty.
func (c *LocalCart) Currency() string {
	lines := c.Lines()
	if len(lines) > 0 {
		if code := strings.TrimSpace(lines[0].Item.Currency); code != "" {
			return code
		}
	}
	return c.currency
}

// Checkout returns a receipt for the current contents. The cart is left as is.
func (c *LocalCart) Checkout(ctx context.Context) (DemoReceipt, error) {
	view := c.View()
	currency := c.Currency()
	if len(view.Lines) == 0 {
		c.metrics.RecordCheckout(ctx, DemoName, telemetry.ResultEmpty, currency, 0)
		return DemoReceipt{}, ErrEmptyCart
	}
	c.metrics.RecordCheckout(ctx, DemoName, telemetry.ResultSuccess, currency, 0)
	return DemoReceipt{
		Reference:  uuid.NewString(),
		Lines:      view.Lines,
		TotalItems: view.TotalItems,
		TotalPrice: view.TotalPrice,
		Currency:   currency,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/catalog"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
	"github.com/maisonlune/storefront/internal/observability"
)

// RemoteName labels the remote cart in logs and metrics.
const RemoteName = "remote"

// CheckoutCreator creates a remote checkout for a set of lines.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, lines []catalog.CartLineInput) (*catalog.Checkout, error)
}

// RemoteCart holds catalog variants and hands checkout off to the commerce platform.
type RemoteCart struct {
	*Store[catalog.LineItem]

	creator  CheckoutCreator
	timeout  time.Duration
	currency string

	checkoutMu  sync.Mutex
	busy        bool
	checkoutURL string
	generation  uint64
}

// VariantKey is the remote cart identity: the variant id.
func VariantKey(item catalog.LineItem) string { return item.VariantID }

// VariantPrice parses the variant unit price. Unparseable amounts count as zero.
func VariantPrice(item catalog.LineItem) decimal.Decimal {
	price, err := item.Price.Decimal()
	if err != nil {
		observability.Log().Error("unparseable variant price",
			observability.F("variant_id", item.VariantID),
			observability.F("amount", item.Price.Amount))
		return decimal.Zero
	}
	return price
}

// NewRemote constructs a remote cart persisted under storageKey.
func NewRemote(storageKey string, creator CheckoutCreator, opts ...Option) *RemoteCart {
	o := buildOptions(opts)
	return &RemoteCart{
		Store:    New[catalog.LineItem](RemoteName, storageKey, VariantKey, VariantPrice, opts...),
		creator:  creator,
		timeout:  o.checkoutTimeout,
		currency: o.currency,
	}
}

// Currency returns the first line's currency code, or the default when empty.
func (c *RemoteCart) Currency() string {
	lines := c.Lines()
	if len(lines) > 0 {
		if code := strings.TrimSpace(lines[0].Item.Price.CurrencyCode); code != "" {
			return code
		}
	}
	return c.currency
}

// Busy reports whether a checkout call is in flight.
func (c *RemoteCart) Busy() bool {
	c.checkoutMu.Lock()
	defer c.checkoutMu.Unlock()
	return c.busy
}

// CheckoutURL returns the URL produced by the last successful checkout.
func (c *RemoteCart) CheckoutURL() string {
	c.checkoutMu.Lock()
	defer c.checkoutMu.Unlock()
	return c.checkoutURL
}

// Clear empties the cart and discards any checkout URL. A closed cart is
// left untouched and ErrClosed is returned.
func (c *RemoteCart) Clear(ctx context.Context) error {
	err := c.Store.Clear(ctx)
	if errors.Is(err, ErrClosed) {
		return err
	}
	c.checkoutMu.Lock()
	c.checkoutURL = ""
	c.generation++
	c.checkoutMu.Unlock()
	return err
}

// CreateCheckout sends the cart lines to the commerce platform and returns
// the checkout URL. On failure it returns "" and the error; cart contents
// are never changed. The busy flag is released on every exit.
func (c *RemoteCart) CreateCheckout(ctx context.Context) (string, error) {
	start := time.Now()
	lines := c.Lines()
	currency := c.Currency()
	if len(lines) == 0 {
		c.metrics.RecordCheckout(ctx, RemoteName, telemetry.ResultEmpty, currency, 0)
		return "", ErrEmptyCart
	}
	if c.creator == nil {
		return "", errs.New(component, errs.CodeUnavailable, errs.WithMessage("remote checkout not configured"))
	}

	c.checkoutMu.Lock()
	if c.busy {
		c.checkoutMu.Unlock()
		return "", ErrCheckoutInProgress
	}
	c.busy = true
	generation := c.generation
	c.checkoutMu.Unlock()
	c.notify()

	defer func() {
		c.checkoutMu.Lock()
		c.busy = false
		c.checkoutMu.Unlock()
		c.notify()
	}()

	inputs := make([]catalog.CartLineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, catalog.CartLineInput{MerchandiseID: line.Item.VariantID, Quantity: line.Quantity})
	}

	checkout, err := c.callCreator(ctx, inputs)
	if err == nil && (checkout == nil || checkout.CheckoutURL == "") {
		err = errs.New(component, errs.CodeUserError, errs.WithMessage("no checkout URL returned"))
	}
	if err != nil {
		result := telemetry.ResultFailed
		switch errs.CodeOf(err) {
		case errs.CodeTimeout:
			result = telemetry.ResultTimeout
		case errs.CodeUserError:
			result = telemetry.ResultUserError
		}
		c.metrics.RecordCheckout(ctx, RemoteName, result, currency, time.Since(start))
		observability.Log().Error("checkout creation failed",
			observability.F("cart", c.StorageKey()),
			observability.F("lines", len(inputs)),
			observability.F("error", err))
		return "", err
	}

	c.checkoutMu.Lock()
	if c.generation == generation {
		c.checkoutURL = checkout.CheckoutURL
	}
	c.checkoutMu.Unlock()
	c.metrics.RecordCheckout(ctx, RemoteName, telemetry.ResultSuccess, currency, time.Since(start))
	return checkout.CheckoutURL, nil
}

type checkoutResult struct {
	checkout *catalog.Checkout
	err      error
}

// callCreator bounds the creator call by the checkout timeout even when the
// creator ignores its context. A panicking creator surfaces as an error.
func (c *RemoteCart) callCreator(ctx context.Context, inputs []catalog.CartLineInput) (*catalog.Checkout, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan checkoutResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- checkoutResult{err: errs.New(component, errs.CodeRemote,
					errs.WithMessage("checkout creator panicked"),
					errs.WithRawMessage(fmt.Sprint(r)))}
			}
		}()
		checkout, err := c.creator.CreateCheckout(callCtx, inputs)
		done <- checkoutResult{checkout: checkout, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errs.Is(res.err, errs.CodeTimeout) {
			return nil, timeoutError(c.timeout, res.err)
		}
		return res.checkout, res.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(c.timeout, callCtx.Err())
		}
		return nil, errs.New(component, errs.CodeNetwork,
			errs.WithMessage("checkout cancelled"),
			errs.WithCause(callCtx.Err()))
	}
}

func timeoutError(limit time.Duration, cause error) error {
	return errs.New(component, errs.CodeTimeout,
		errs.WithMessage("checkout timed out"),
		errs.WithField("timeout", limit.String()),
		errs.WithCause(cause))
}

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
	"github.com/maisonlune/storefront/internal/observability"
)

const (
	component = "catalog"

	// TokenHeader carries the public Storefront API access token.
	TokenHeader = "X-Shopify-Storefront-Access-Token"
	// MaxProducts is the largest page the API serves.
	MaxProducts = 250

	defaultTimeout  = 15 * time.Second
	maxResponseSize = 8 << 20
)

// Options configures a Client.
type Options struct {
	Endpoint          string
	AccessToken       string
	Channel           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Metrics           *telemetry.StoreMetrics
}

// Client is a thin GraphQL wrapper. It performs no retries and no caching;
// requests are throttled client-side and wait for a token instead of failing.
type Client struct {
	endpoint string
	token    string
	channel  string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	metrics  *telemetry.StoreMetrics
}

// New validates opts and constructs a Client.
func New(opts Options) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("catalog: endpoint must be an absolute URL")
	}
	token := strings.TrimSpace(opts.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("catalog: access token required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		channel:  strings.TrimSpace(opts.Channel),
		timeout:  timeout,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  opts.Metrics,
	}, nil
}

// NewFromConfig builds a Client for the configured store.
func NewFromConfig(cfg config.StorefrontConfig, metrics *telemetry.StoreMetrics) (*Client, error) {
	return New(Options{
		Endpoint:          cfg.Endpoint(),
		AccessToken:       cfg.AccessToken,
		Channel:           cfg.Channel,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Metrics:           metrics,
	})
}

// ListProducts fetches up to count products in API order. count is clamped to MaxProducts.
func (c *Client) ListProducts(ctx context.Context, count int, query string) ([]Product, error) {
	if count <= 0 {
		return nil, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("count must be positive"),
			errs.WithField("count", strconv.Itoa(count)))
	}
	if count > MaxProducts {
		count = MaxProducts
	}
	vars := map[string]any{"first": count}
	if q := strings.TrimSpace(query); q != "" {
		vars["query"] = q
	}

	var data productsData
	if err := c.do(ctx, "products", productsQuery, vars, &data); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(data.Products.Edges))
	for _, edge := range data.Products.Edges {
		products = append(products, edge.Node.toProduct())
	}
	return products, nil
}

// ProductByHandle fetches a single product. A missing product yields (nil, nil).
func (c *Client) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("handle required"))
	}
	var data productData
	if err := c.do(ctx, "product", productByHandleQuery, map[string]any{"handle": handle}, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, nil
	}
	product := data.Product.toProduct()
	return &product, nil
}

// CreateCheckout creates a remote cart from lines and returns its checkout
// URL tagged with the configured sales channel.
func (c *Client) CreateCheckout(ctx context.Context, lines []CartLineInput) (*Checkout, error) {
	if len(lines) == 0 {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("at least one line required"))
	}
	for _, line := range lines {
		if strings.TrimSpace(line.MerchandiseID) == "" || line.Quantity < 1 {
			return nil, errs.New(component, errs.CodeInvalid,
				errs.WithMessage("lines need a merchandise id and a positive quantity"),
				errs.WithField("merchandise_id", line.MerchandiseID))
		}
	}

	vars := map[string]any{"input": map[string]any{"lines": lines}}
	var data cartCreateData
	if err := c.do(ctx, "cartCreate", cartCreateMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.CartCreate == nil {
		return nil, errs.New(component, errs.CodeRemote,
			errs.WithMessage("cartCreate returned no payload"),
			errs.WithField("operation", "cartCreate"))
	}
	if len(data.CartCreate.UserErrors) > 0 {
		return nil, errs.New(component, errs.CodeUserError,
			errs.WithMessage(joinUserErrors(data.CartCreate.UserErrors)),
			errs.WithField("operation", "cartCreate"))
	}
	cart := data.CartCreate.Cart
	if cart == nil || strings.TrimSpace(cart.CheckoutURL) == "" {
		return nil, errs.New(component, errs.CodeUserError,
			errs.WithMessage("no checkout URL returned"),
			errs.WithField("operation", "cartCreate"))
	}
	checkoutURL, err := withChannel(cart.CheckoutURL, c.channel)
	if err != nil {
		return nil, errs.New(component, errs.CodeRemote,
			errs.WithMessage("invalid checkout URL"),
			errs.WithRawMessage(cart.CheckoutURL),
			errs.WithCause(err))
	}
	return &Checkout{
		CartID:      cart.ID,
		CheckoutURL: checkoutURL,
		TotalAmount: cart.Cost.TotalAmount,
	}, nil
}

// withChannel sets the channel query parameter, replacing any existing value.
func withChannel(raw, channel string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if channel == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func joinUserErrors(list []userError) string {
	parts := make([]string, 0, len(list))
	for _, ue := range list {
		field := strings.Join(ue.Field, ".")
		if field == "" {
			parts = append(parts, ue.Message)
			continue
		}
		parts = append(parts, field+": "+ue.Message)
	}
	return strings.Join(parts, "; ")
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) do(ctx context.Context, operation, query string, vars map[string]any, out any) (err error) {
	start := time.Now()
	defer func() {
		result := telemetry.ResultSuccess
		if err != nil {
			result = string(errs.CodeOf(err))
			if result == "" {
				result = telemetry.ResultFailed
			}
			observability.Log().Error("storefront api request failed",
				observability.F("operation", operation),
				observability.F("error", err))
		}
		c.metrics.RecordCatalogRequest(ctx, operation, result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return transportError(operation, err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return errs.New(component, errs.CodeInvalid,
			errs.WithMessage("encode request"),
			errs.WithField("operation", operation),
			errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.New(component, errs.CodeInvalid,
			errs.WithMessage("build request"),
			errs.WithField("operation", operation),
			errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(operation, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return transportError(operation, err)
	}
	if code, failed := statusCode(resp.StatusCode); failed {
		return errs.New(component, code,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("unexpected status "+strconv.Itoa(resp.StatusCode)),
			errs.WithRawMessage(truncate(string(respBody), 512)),
			errs.WithField("operation", operation))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return errs.New(component, errs.CodeRemote,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("malformed response"),
			errs.WithField("operation", operation),
			errs.WithCause(err))
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return errs.New(component, errs.CodeRemote,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(strings.Join(messages, "; ")),
			errs.WithField("operation", operation))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return errs.New(component, errs.CodeRemote,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("response carried no data"),
			errs.WithField("operation", operation))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errs.New(component, errs.CodeRemote,
			errs.WithMessage("decode "+operation+" payload"),
			errs.WithField("operation", operation),
			errs.WithCause(err))
	}
	return nil
}

func statusCode(status int) (errs.Code, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return errs.CodeRateLimited, true
	case status == http.StatusPaymentRequired:
		return errs.CodePaymentRequired, true
	case status < 200 || status >= 300:
		return errs.CodeRemote, true
	}
	return "", false
}

func transportError(operation string, err error) error {
	code := errs.CodeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = errs.CodeTimeout
	}
	return errs.New(component, code,
		errs.WithMessage(operation+" request failed"),
		errs.WithField("operation", operation),
		errs.WithCause(err))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

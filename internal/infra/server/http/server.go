// Package httpserver exposes the storefront JSON API: catalog browsing, the
// per-session remote and demo carts, cart change events and the assistant proxy.
package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/assistant"
	"github.com/maisonlune/storefront/internal/cart"
	"github.com/maisonlune/storefront/internal/catalog"
	"github.com/maisonlune/storefront/internal/demo"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/observability"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	defaultProductCount = 24

	productsPath        = "/products"
	productDetailPrefix = productsPath + "/"

	cartPath           = "/cart"
	cartOpenPath       = cartPath + "/open"
	cartItemsPath      = cartPath + "/items"
	cartItemPrefix     = cartItemsPath + "/"
	cartCheckoutPath   = cartPath + "/checkout"
	cartEventsPath     = cartPath + "/events"
	demoProductsPath   = "/demo/products"
	demoCartPath       = "/demo/cart"
	demoCartOpenPath   = demoCartPath + "/open"
	demoCartItemsPath  = demoCartPath + "/items"
	demoCartItemPrefix = demoCartItemsPath + "/"
	demoCheckoutPath   = demoCartPath + "/checkout"
	assistantChatPath  = "/assistant/chat"
	healthPath         = "/healthz"
)

// Catalog is the read side of the remote commerce API.
type Catalog interface {
	ListProducts(ctx context.Context, count int, query string) ([]catalog.Product, error)
	ProductByHandle(ctx context.Context, handle string) (*catalog.Product, error)
}

// Dependencies wires the handler. Catalog and Assistant may be nil; their
// routes then answer 503.
type Dependencies struct {
	Catalog       Catalog
	Demo          *demo.Catalog
	Assistant     *assistant.Proxy
	Sessions      *Sessions
	StorageDriver string
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	environment config.Environment
	catalog     Catalog
	demo        *demo.Catalog
	assistant   *assistant.Proxy
	sessions    *Sessions
	driver      string
}

// NewHandler returns the storefront API handler.
func NewHandler(environment config.Environment, deps Dependencies) http.Handler {
	server := &httpServer{
		environment: environment,
		catalog:     deps.Catalog,
		demo:        deps.Demo,
		assistant:   deps.Assistant,
		sessions:    deps.Sessions,
		driver:      deps.StorageDriver,
	}

	mux := http.NewServeMux()
	mux.Handle(productsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listProducts,
	}))
	mux.Handle(productDetailPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getProduct,
	}))

	mux.Handle(cartPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet:    server.getCart,
		http.MethodDelete: server.clearCart,
	}))
	mux.Handle(cartOpenPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut: server.setCartOpen,
	}))
	mux.Handle(cartItemsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.addCartItem,
	}))
	mux.Handle(cartItemPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut:    server.updateCartItem,
		http.MethodDelete: server.removeCartItem,
	}))
	mux.Handle(cartCheckoutPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.checkout,
	}))
	mux.Handle(cartEventsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.cartEvents,
	}))

	mux.Handle(demoProductsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listDemoProducts,
	}))
	mux.Handle(demoCartPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet:    server.getDemoCart,
		http.MethodDelete: server.clearDemoCart,
	}))
	mux.Handle(demoCartOpenPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut: server.setDemoCartOpen,
	}))
	mux.Handle(demoCartItemsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.addDemoCartItem,
	}))
	mux.Handle(demoCartItemPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodPut:    server.updateDemoCartItem,
		http.MethodDelete: server.removeDemoCartItem,
	}))
	mux.Handle(demoCheckoutPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.demoCheckout,
	}))

	mux.Handle(assistantChatPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.assistantChat,
	}))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"storage":    s.driver,
		"sessions":   s.sessions.Len(),
		"storefront": s.catalog != nil,
		"assistant":  s.assistant != nil,
	})
}

func (s *httpServer) listProducts(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "storefront not configured")
		return
	}
	count := defaultProductCount
	if raw := strings.TrimSpace(r.URL.Query().Get("first")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "first must be a positive integer")
			return
		}
		count = n
	}
	products, err := s.catalog.ListProducts(r.Context(), count, r.URL.Query().Get("query"))
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *httpServer) getProduct(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "storefront not configured")
		return
	}
	handle := pathParam(r, productDetailPrefix)
	if handle == "" {
		writeError(w, http.StatusNotFound, "product handle required")
		return
	}
	product, err := s.catalog.ProductByHandle(r.Context(), handle)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *httpServer) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := s.sessions.Get(r.Context(), sessionID(w, r))
	if err != nil {
		if errors.Is(err, ErrSessionsClosed) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return nil, false
		}
		observability.Log().Error("session restore failed", observability.F("error", err))
		writeError(w, http.StatusInternalServerError, "cart unavailable")
		return nil, false
	}
	return sess, true
}

func pathParam(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	limitRequestBody(w, r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, err)
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeDecodeError(w, err)
		return false
	}
	return true
}

// writeCartError maps cart and upstream failures onto HTTP statuses.
func writeCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrEmptyCart), errors.Is(err, cart.ErrCheckoutInProgress):
		writeError(w, http.StatusConflict, errorMessage(err))
		return
	case errors.Is(err, cart.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "cart closed")
		return
	case errs.Is(err, errs.CodeStorage):
		writeError(w, http.StatusInternalServerError, "cart changed but could not be saved")
		return
	}
	writeUpstreamError(w, err)
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch errs.CodeOf(err) {
	case errs.CodeInvalid:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeUserError:
		status = http.StatusUnprocessableEntity
	case errs.CodeTimeout:
		status = http.StatusGatewayTimeout
	case errs.CodeRateLimited:
		status = http.StatusTooManyRequests
	case errs.CodePaymentRequired:
		status = http.StatusPaymentRequired
	case errs.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, errorMessage(err))
}

func errorMessage(err error) string {
	var e *errs.E
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encodeJSON(payload))
}

func encodeJSON(payload any) []byte {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		observability.Log().Error("json encode failed", observability.F("error", err))
		return []byte(`{"status":"error","error":"encode response"}`)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

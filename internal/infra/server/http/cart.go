package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maisonlune/storefront/internal/cart"
	"github.com/maisonlune/storefront/internal/catalog"
	"github.com/maisonlune/storefront/internal/demo"
)

type remoteItem struct {
	catalog.LineItem
	Quantity int `json:"quantity"`
}

type demoItem struct {
	Product  demo.Product `json:"product"`
	Quantity int          `json:"quantity"`
}

type cartResponse struct {
	Items       any    `json:"items"`
	TotalItems  int    `json:"totalItems"`
	TotalPrice  string `json:"totalPrice"`
	Currency    string `json:"currency"`
	IsOpen      bool   `json:"isOpen"`
	IsLoading   bool   `json:"isLoading"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

type addItemRequest struct {
	Handle    string `json:"handle"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type addDemoItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type openRequest struct {
	Open *bool `json:"open"`
}

type demoReceiptResponse struct {
	Reference  string     `json:"reference"`
	Items      []demoItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice string     `json:"totalPrice"`
	Currency   string     `json:"currency"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func remoteCartResponse(c *cart.RemoteCart) cartResponse {
	view := c.View()
	items := make([]remoteItem, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, remoteItem{LineItem: line.Item, Quantity: line.Quantity})
	}
	return cartResponse{
		Items:       items,
		TotalItems:  view.TotalItems,
		TotalPrice:  formatPrice(view.TotalPrice),
		Currency:    c.Currency(),
		IsOpen:      view.Open,
		IsLoading:   c.Busy(),
		CheckoutURL: c.CheckoutURL(),
	}
}

func demoCartResponse(c *cart.LocalCart) cartResponse {
	view := c.View()
	return cartResponse{
		Items:      demoItems(view.Lines),
		TotalItems: view.TotalItems,
		TotalPrice: formatPrice(view.TotalPrice),
		Currency:   c.Currency(),
		IsOpen:     view.Open,
	}
}

func demoItems(lines []cart.Line[demo.Product]) []demoItem {
	items := make([]demoItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, demoItem{Product: line.Item, Quantity: line.Quantity})
	}
	return items
}

func formatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (s *httpServer) getCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

func (s *httpServer) clearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Remote.Clear(r.Context()); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

func (s *httpServer) setCartOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Open == nil {
		writeError(w, http.StatusBadRequest, "open required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Remote.SetOpen(*req.Open)
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

// addCartItem resolves the variant server side so clients cannot set prices.
func (s *httpServer) addCartItem(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "storefront not configured")
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Handle = strings.TrimSpace(req.Handle)
	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.Handle == "" || req.VariantID == "" {
		writeError(w, http.StatusBadRequest, "handle and variantId required")
		return
	}
	product, err := s.catalog.ProductByHandle(r.Context(), req.Handle)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	variant, found := product.Variant(req.VariantID)
	if !found {
		writeError(w, http.StatusNotFound, "variant not found")
		return
	}
	if !variant.AvailableForSale {
		writeError(w, http.StatusConflict, "variant not available for sale")
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Remote.Add(r.Context(), catalog.NewLineItem(*product, variant), req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

func (s *httpServer) updateCartItem(w http.ResponseWriter, r *http.Request) {
	variantID := pathParam(r, cartItemPrefix)
	if variantID == "" {
		writeError(w, http.StatusNotFound, "variant id required")
		return
	}
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Remote.UpdateQuantity(r.Context(), variantID, *req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

func (s *httpServer) removeCartItem(w http.ResponseWriter, r *http.Request) {
	variantID := pathParam(r, cartItemPrefix)
	if variantID == "" {
		writeError(w, http.StatusNotFound, "variant id required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Remote.Remove(r.Context(), variantID); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remoteCartResponse(sess.Remote))
}

func (s *httpServer) checkout(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "storefront not configured")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	url, err := sess.Remote.CreateCheckout(r.Context())
	if err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": url})
}

func (s *httpServer) listDemoProducts(w http.ResponseWriter, r *http.Request) {
	var products []demo.Product
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		products = s.demo.ByCategory(category)
	} else {
		products = s.demo.All()
	}
	if products == nil {
		products = []demo.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"categories": s.demo.Categories(),
	})
}

func (s *httpServer) getDemoCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) clearDemoCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Demo.Clear(r.Context()); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) setDemoCartOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Open == nil {
		writeError(w, http.StatusBadRequest, "open required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Demo.SetOpen(*req.Open)
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) addDemoCartItem(w http.ResponseWriter, r *http.Request) {
	var req addDemoItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.ProductID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "productId required")
		return
	}
	product, found := s.demo.ByID(id)
	if !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Demo.Add(r.Context(), product, req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) updateDemoCartItem(w http.ResponseWriter, r *http.Request) {
	productID := pathParam(r, demoCartItemPrefix)
	if productID == "" {
		writeError(w, http.StatusNotFound, "product id required")
		return
	}
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Demo.UpdateQuantity(r.Context(), productID, *req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) removeDemoCartItem(w http.ResponseWriter, r *http.Request) {
	productID := pathParam(r, demoCartItemPrefix)
	if productID == "" {
		writeError(w, http.StatusNotFound, "product id required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Demo.Remove(r.Context(), productID); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demoCartResponse(sess.Demo))
}

func (s *httpServer) demoCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	receipt, err := sess.Demo.Checkout(r.Context())
	if err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demoReceiptResponse{
		Reference:  receipt.Reference,
		Items:      demoItems(receipt.Lines),
		TotalItems: receipt.TotalItems,
		TotalPrice: formatPrice(receipt.TotalPrice),
		Currency:   receipt.Currency,
		CreatedAt:  receipt.CreatedAt,
	})
}

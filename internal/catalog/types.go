// Package catalog talks to the commerce platform's GraphQL Storefront API.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount as the API renders it: a decimal string plus an ISO currency code.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// Decimal parses Amount.
func (m Money) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(m.Amount))
}

// Image is a product image.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// SelectedOption is one name/value pair that identifies a variant, e.g. Size=7.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductOption lists the values an option can take across a product's variants.
type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Variant is a purchasable SKU of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	CompareAtPrice   *Money           `json:"compareAtPrice,omitempty"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

// Product is a catalog entry with its images, variants and options.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Handle      string          `json:"handle"`
	Description string          `json:"description"`
	Images      []Image         `json:"images"`
	Variants    []Variant       `json:"variants"`
	Options     []ProductOption `json:"options"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Ref returns the lightweight reference carried by cart lines.
func (p Product) Ref() ProductRef {
	ref := ProductRef{ID: p.ID, Handle: p.Handle, Title: p.Title}
	if len(p.Images) > 0 {
		ref.ImageURL = p.Images[0].URL
	}
	return ref
}

// ProductRef points back at a fetched product from a cart line.
type ProductRef struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// LineItem is the remote cart's item: one variant with the price and options
// captured when it was added.
type LineItem struct {
	Product         ProductRef       `json:"product"`
	VariantID       string           `json:"variantId"`
	VariantTitle    string           `json:"variantTitle"`
	Price           Money            `json:"price"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
}

// NewLineItem snapshots a product variant for the cart.
func NewLineItem(p Product, v Variant) LineItem {
	opts := make([]SelectedOption, len(v.SelectedOptions))
	copy(opts, v.SelectedOptions)
	return LineItem{
		Product:         p.Ref(),
		VariantID:       v.ID,
		VariantTitle:    v.Title,
		Price:           v.Price,
		SelectedOptions: opts,
	}
}

// CartLineInput is one line of a checkout request.
type CartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// Checkout is the result of a successful cart creation.
type Checkout struct {
	CartID      string `json:"cartId"`
	CheckoutURL string `json:"checkoutUrl"`
	TotalAmount Money  `json:"totalAmount"`
}

// Package demo provides the bundled product catalog that backs the local demo cart.
package demo

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var bundled []byte

// Product is a demo catalog entry. Cart lines embed the whole record.
type Product struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Currency    string          `json:"currency" yaml:"currency"`
	Category    string          `json:"category" yaml:"category"`
	Material    string          `json:"material" yaml:"material"`
	Images      []string        `json:"images" yaml:"images"`
}

type catalogFile struct {
	Currency string    `yaml:"currency"`
	Products []Product `yaml:"products"`
}

// Catalog is an immutable, ordered set of demo products.
type Catalog struct {
	products []Product
	byID     map[string]int
}

// Load returns the catalog compiled into the binary.
func Load() (*Catalog, error) {
	return Parse(bundled)
}

// Parse decodes a catalog document. Products inherit the document currency
// unless they set their own.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("demo catalog: decode: %w", err)
	}
	currency := strings.ToUpper(strings.TrimSpace(file.Currency))
	if currency == "" {
		currency = "USD"
	}
	c := &Catalog{
		products: make([]Product, 0, len(file.Products)),
		byID:     make(map[string]int, len(file.Products)),
	}
	for i, p := range file.Products {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("demo catalog: product %d: id required", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("demo catalog: duplicate product id %q", p.ID)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("demo catalog: product %q: negative price", p.ID)
		}
		if p.Currency == "" {
			p.Currency = currency
		}
		p.Category = strings.ToLower(strings.TrimSpace(p.Category))
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// All returns every product in catalog order.
func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// ByID looks a product up by id.
func (c *Catalog) ByID(id string) (Product, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, false
	}
	return c.products[idx], true
}

// ByCategory returns products in the category, in catalog order.
func (c *Catalog) ByCategory(category string) []Product {
	want := strings.ToLower(strings.TrimSpace(category))
	var out []Product
	for _, p := range c.products {
		if p.Category == want {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// Package catalog is the server-side source of truth for product prices.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

var ErrProductNotFound = errors.New("product not found")

// Product is a sellable item priced in minor currency units
type Product struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Price    int64  `json:"price" db:"price"`
	Currency string `json:"currency" db:"currency"`
	Active   bool   `json:"active" db:"active"`
}

// Source yields a consistent view of the catalog for one repricing pass
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot is an immutable set of active products in a single currency
type Snapshot struct {
	Currency string
	products map[string]Product
}

func NewSnapshot(currency string, products []Product) *Snapshot {
	s := &Snapshot{
		Currency: strings.ToUpper(currency),
		products: make(map[string]Product, len(products)),
	}
	for _, p := range products {
		if p.Active {
			s.products[p.ID] = p
		}
	}
	return s
}

// Lookup returns the active product with id.
func (s *Snapshot) Lookup(id string) (Product, error) {
	p, ok := s.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

func (s *Snapshot) Products() []Product {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemoryCatalog holds products in memory
type MemoryCatalog struct {
	mu       sync.RWMutex
	currency string
	products map[string]Product
}

func NewMemoryCatalog(currency string, products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{
		currency: strings.ToUpper(currency),
		products: make(map[string]Product),
	}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// LoadFile reads a JSON array of products. An empty path yields DefaultProducts.
func LoadFile(path, currency string) (*MemoryCatalog, error) {
	if path == "" {
		return NewMemoryCatalog(currency, DefaultProducts(currency)...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return NewMemoryCatalog(currency, products...), nil
}

// Put adds or replaces a product. A missing currency takes the catalog's.
func (c *MemoryCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Currency == "" {
		p.Currency = c.currency
	}
	c.products[p.ID] = p
}

func (c *MemoryCatalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	products := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, p)
	}
	return NewSnapshot(c.currency, products), nil
}

// DefaultProducts is the storefront's starter range.
func DefaultProducts(currency string) []Product {
	return []Product{
		{ID: "1", Name: "Velvet Matte Lipstick", Price: 89900, Currency: currency, Active: true},
		{ID: "2", Name: "Hydrating Rose Serum", Price: 149900, Currency: currency, Active: true},
		{ID: "3", Name: "Silk Finish Foundation", Price: 129900, Currency: currency, Active: true},
		{ID: "4", Name: "Lash Lift Mascara", Price: 69900, Currency: currency, Active: true},
		{ID: "5", Name: "Glow Highlighter Palette", Price: 99900, Currency: currency, Active: true},
		{ID: "6", Name: "Nourishing Night Cream", Price: 179900, Currency: currency, Active: true},
	}
}

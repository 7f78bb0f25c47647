package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Price is fixed
// once the product is catalog-loaded; only quantity changes afterwards, and
// only inside an order-commit transaction.
type Product struct {
	ID          string
	Name        string
	Category    string
	Description string
	Price       decimal.Decimal
	Quantity    int
}

// Validate checks the invariants enforced on catalog insertion. Both the
// single-product path and the bulk loader go through it.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name required")
	}
	if strings.TrimSpace(p.Category) == "" {
		return errors.New("product category required")
	}
	if p.Price.IsNegative() {
		return errors.Errorf("product %q: price must not be negative", p.Name)
	}
	if p.Quantity < 0 {
		return errors.Errorf("product %q: quantity must not be negative", p.Name)
	}
	return nil
}

// SearchFilter narrows a catalog search. Zero values mean "no constraint".
type SearchFilter struct {
	// Query is matched case-insensitively as a substring of name or description.
	Query string
	// Category is matched exactly, case-insensitively.
	Category string
	// MinPrice and MaxPrice are inclusive bounds.
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// CategoryCount is the number of in-stock products in one category.
type CategoryCount struct {
	Name         string
	ProductCount int
}

// PriceStats summarizes prices over the whole in-stock catalog.
type PriceStats struct {
	Min     decimal.Decimal
	Max     decimal.Decimal
	Average decimal.Decimal
}

// SearchResult carries matching products plus catalog-wide metadata. The
// metadata is computed over every in-stock product, independent of the
// filters that produced Products.
type SearchResult struct {
	Products   []Product
	Categories []CategoryCount
	Prices     PriceStats
}

// Repository defines catalog operations. All reads are restricted to
// products with stock on hand.
type Repository interface {
	// ListCategories returns the distinct categories that currently hold
	// at least one unit of stock.
	ListCategories(ctx context.Context) ([]string, error)
	// Search returns in-stock products matching the filter plus metadata.
	Search(ctx context.Context, filter SearchFilter) (*SearchResult, error)
	// Recommend returns up to limit in-stock products drawn from the given
	// categories, or from the whole catalog when categories is empty.
	// Selection order is unspecified.
	Recommend(ctx context.Context, categories []string, limit int) ([]Product, error)
	// Insert adds a product to the catalog after validation.
	Insert(ctx context.Context, p Product) error
}

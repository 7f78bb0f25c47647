package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListCategories returns the distinct categories with stock on hand.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT category FROM products WHERE quantity > 0 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Search returns in-stock products matching the filter, plus metadata
// computed over the whole in-stock catalog regardless of the filter.
func (r *ProductRepository) Search(ctx context.Context, filter product.SearchFilter) (*product.SearchResult, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, name, category, description, price, quantity
		FROM products WHERE quantity > 0`)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Query != "" {
		p := arg("%" + strings.ToLower(filter.Query) + "%")
		fmt.Fprintf(&sb, " AND (lower(name) LIKE %s OR lower(description) LIKE %s)", p, p)
	}
	if filter.Category != "" {
		fmt.Fprintf(&sb, " AND lower(category) = %s", arg(strings.ToLower(filter.Category)))
	}
	if filter.MinPrice != nil {
		fmt.Fprintf(&sb, " AND price >= %s", arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		fmt.Fprintf(&sb, " AND price <= %s", arg(*filter.MaxPrice))
	}
	sb.WriteString(" ORDER BY name")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	res := &product.SearchResult{Products: products}

	catRows, err := r.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM products WHERE quantity > 0 GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var c product.CategoryCount
		if err := catRows.Scan(&c.Name, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		res.Categories = append(res.Categories, c)
	}
	if err := catRows.Err(); err != nil {
		return nil, err
	}

	var minPrice, maxPrice, avgPrice *decimal.Decimal
	err = r.pool.QueryRow(ctx,
		`SELECT MIN(price), MAX(price), AVG(price) FROM products WHERE quantity > 0`).
		Scan(&minPrice, &maxPrice, &avgPrice)
	if err != nil {
		return nil, fmt.Errorf("aggregating prices: %w", err)
	}
	if minPrice != nil {
		res.Prices.Min = *minPrice
	}
	if maxPrice != nil {
		res.Prices.Max = *maxPrice
	}
	if avgPrice != nil {
		res.Prices.Average = avgPrice.Round(2)
	}

	return res, nil
}

// Recommend returns up to limit in-stock products, drawn from the given
// categories when provided. Ordering is random on purpose.
func (r *ProductRepository) Recommend(ctx context.Context, categories []string, limit int) ([]product.Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(categories) > 0 {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, category, description, price, quantity
			 FROM products
			 WHERE quantity > 0 AND category = ANY($1)
			 ORDER BY random() LIMIT $2`,
			categories, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, category, description, price, quantity
			 FROM products
			 WHERE quantity > 0
			 ORDER BY random() LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recommending products: %w", err)
	}
	return scanProducts(rows)
}

// Insert validates and adds a product. It is the single validation path
// used by both one-off inserts and the bulk catalog loader.
func (r *ProductRepository) Insert(ctx context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, name, category, description, price, quantity)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, strings.ToLower(p.Name), strings.ToLower(p.Category), p.Description, p.Price, p.Quantity)
	if err != nil {
		return fmt.Errorf("inserting product %q: %w", p.Name, err)
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]product.Product, error) {
	defer rows.Close()

	var products []product.Product
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

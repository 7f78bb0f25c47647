package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Every commit runs
// in a short-lived transaction scoped to the single order; no connection is
// held across calls.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// CreateOrder commits a new order atomically. Each product row is locked
// with SELECT ... FOR UPDATE before the stock check, so concurrent commits
// touching the same product are linearized: two orders racing for the last
// unit cannot both succeed. Any line failure rolls back the whole order —
// no order row, no lines, no stock decrements survive.
func (s *OrderStore) CreateOrder(ctx context.Context, customerID string, lines []order.LineRequest) (*order.Receipt, error) {
	if customerID == "" {
		return nil, errors.New("customer ID required")
	}
	if len(lines) == 0 {
		return nil, order.ErrEmptyItems
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	receipt := &order.Receipt{
		OrderID:   uuid.New().String(),
		Total:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, customer_id, order_date, status) VALUES ($1, $2, $3, $4)`,
		receipt.OrderID, customerID, receipt.CreatedAt, order.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("creating order %q: %w", receipt.OrderID, err)
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &order.InvalidQuantityError{Name: line.ProductName}
		}

		var (
			productID string
			name      string
			price     decimal.Decimal
			stock     int
		)
		err = tx.QueryRow(ctx,
			`SELECT id, name, price, quantity FROM products
			 WHERE lower(name) = lower($1) FOR UPDATE`,
			line.ProductName).Scan(&productID, &name, &price, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &order.ProductNotFoundError{Name: line.ProductName}
			}
			return nil, fmt.Errorf("locking product %q: %w", line.ProductName, err)
		}

		if stock < line.Quantity {
			return nil, &order.InsufficientStockError{
				Name:      line.ProductName,
				Requested: line.Quantity,
				Available: stock,
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)`,
			receipt.OrderID, productID, line.Quantity, price)
		if err != nil {
			return nil, fmt.Errorf("inserting order line for %q: %w", name, err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET quantity = quantity - $1 WHERE id = $2`,
			line.Quantity, productID)
		if err != nil {
			return nil, fmt.Errorf("decrementing stock for %q: %w", name, err)
		}

		receipt.Total = receipt.Total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		receipt.Lines = append(receipt.Lines, order.ReceiptLine{
			Name:      name,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2`,
		order.StatusCompleted, receipt.OrderID)
	if err != nil {
		return nil, fmt.Errorf("completing order %q: %w", receipt.OrderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing order %q: %w", receipt.OrderID, err)
	}
	return receipt, nil
}

// GetOrder returns one order belonging to customerID with its concatenated
// product summary and total, or order.ErrNotFound.
func (s *OrderStore) GetOrder(ctx context.Context, customerID, orderID string) (*order.Summary, error) {
	var sum order.Summary
	err := s.pool.QueryRow(ctx,
		`SELECT o.id, o.order_date, o.status,
		        string_agg(p.name || ' (x' || ol.quantity || ')', ', ' ORDER BY p.name),
		        COUNT(*),
		        SUM(ol.quantity * ol.unit_price)
		 FROM orders o
		 JOIN order_lines ol ON ol.order_id = o.id
		 JOIN products p ON p.id = ol.product_id
		 WHERE o.id = $1 AND o.customer_id = $2
		 GROUP BY o.id`,
		orderID, customerID).
		Scan(&sum.OrderID, &sum.Date, &sum.Status, &sum.Products, &sum.ItemCount, &sum.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	return &sum, nil
}

// ListOrders returns all of the customer's orders, newest first, each with
// its item count and total.
func (s *OrderStore) ListOrders(ctx context.Context, customerID string) ([]order.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.order_date, o.status, COUNT(*), SUM(ol.quantity * ol.unit_price)
		 FROM orders o
		 JOIN order_lines ol ON ol.order_id = o.id
		 WHERE o.customer_id = $1
		 GROUP BY o.id
		 ORDER BY o.order_date DESC`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var summaries []order.Summary
	for rows.Next() {
		var sum order.Summary
		if err := rows.Scan(&sum.OrderID, &sum.Date, &sum.Status, &sum.ItemCount, &sum.Total); err != nil {
			return nil, fmt.Errorf("scanning order summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// RecentCategories returns up to limit distinct categories from the
// customer's purchase history, most recently ordered first.
func (s *OrderStore) RecentCategories(ctx context.Context, customerID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category FROM (
		     SELECT p.category, MAX(o.order_date) AS last_ordered
		     FROM orders o
		     JOIN order_lines ol ON ol.order_id = o.id
		     JOIN products p ON p.id = ol.product_id
		     WHERE o.customer_id = $1
		     GROUP BY p.category
		 ) t ORDER BY last_ordered DESC LIMIT $2`,
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning recent category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

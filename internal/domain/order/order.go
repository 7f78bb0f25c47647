package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates order lifecycle states. A failed commit never persists
// an order row, so no failed status exists.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Sentinel errors for order operations.
var (
	// ErrNotFound is returned when an order does not exist or belongs to a
	// different customer. The two cases are deliberately indistinguishable.
	ErrNotFound = fmt.Errorf("order not found")
	// ErrEmptyItems is returned when an order request carries no lines.
	ErrEmptyItems = fmt.Errorf("items required")
)

// ProductNotFoundError indicates a requested product name matched nothing
// in the catalog. The whole transaction is rolled back.
type ProductNotFoundError struct {
	Name string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.Name)
}

// InsufficientStockError indicates the requested quantity exceeds available
// stock at commit time. The whole transaction is rolled back.
type InsufficientStockError struct {
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Name)
}

// InvalidQuantityError indicates a line request with a non-positive quantity.
type InvalidQuantityError struct {
	Name string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for %s", e.Name)
}

// LineRequest is one requested line of a new order, as proposed by the
// decision-maker: products are addressed by name, not ID.
type LineRequest struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// ReceiptLine is one committed line with the unit price captured at
// purchase time.
type ReceiptLine struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Receipt is the result of a successfully committed order.
// Total equals the decimal sum of quantity times unit price over Lines.
type Receipt struct {
	OrderID   string
	Total     decimal.Decimal
	Lines     []ReceiptLine
	CreatedAt time.Time
}

// Summary describes an existing order for status queries.
type Summary struct {
	OrderID string
	Date    time.Time
	Status  Status
	// Products is the concatenated "name (xN)" listing. Populated only when
	// a single order is fetched.
	Products  string
	ItemCount int
	Total     decimal.Decimal
}

// Store defines the transactional order ledger. CreateOrder is the only
// mutation in the system; everything else is read-only.
type Store interface {
	// CreateOrder commits a new order atomically: per line, the product is
	// resolved by case-insensitive name, stock is checked and decremented,
	// and the current price is captured. Any failure rolls the whole order
	// back; concurrent commits touching the same product are serialized.
	CreateOrder(ctx context.Context, customerID string, lines []LineRequest) (*Receipt, error)
	// GetOrder returns one order belonging to customerID, or ErrNotFound.
	GetOrder(ctx context.Context, customerID, orderID string) (*Summary, error)
	// ListOrders returns all of the customer's orders, newest first.
	ListOrders(ctx context.Context, customerID string) ([]Summary, error)
	// RecentCategories returns up to limit distinct categories from the
	// customer's purchase history, most recently ordered first.
	RecentCategories(ctx context.Context, customerID string, limit int) ([]string, error)
}

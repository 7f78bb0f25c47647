package agent

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/order"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
)

// ErrNoCustomer is the NotConfigured condition: an identity-requiring tool
// was invoked before a customer identity was resolved for the session. No
// store access is attempted.
var ErrNoCustomer = errors.New("no customer ID configured")

// Result is a structured tool outcome. Body is a JSON object carrying a
// "status" field of "success" or "error" plus a "message" on error; it is
// folded back into the conversation verbatim. OK mirrors the status field.
//
// Expected failures (unknown product, insufficient stock, missing identity)
// become error Results. Only infrastructure faults, where the operation is
// considered not-applied, surface as Go errors from the Executor.
type Result struct {
	OK   bool
	Body []byte
}

// Executor is the tool execution layer: it translates typed actions into
// store operations and structured results. It holds no cross-session state.
type Executor struct {
	products product.Repository
	orders   order.Store
}

// NewExecutor creates an Executor over the given stores.
func NewExecutor(products product.Repository, orders order.Store) *Executor {
	return &Executor{products: products, orders: orders}
}

// Execute runs one action for the given customer. Read-only actions have no
// side effects; CreateOrderAction commits atomically or not at all.
func (e *Executor) Execute(ctx context.Context, customerID string, a Action) (Result, error) {
	switch act := a.(type) {
	case ListCategoriesAction:
		return e.listCategories(ctx)
	case SearchProductsAction:
		return e.searchProducts(ctx, act)
	case CheckOrderStatusAction:
		return e.checkOrderStatus(ctx, customerID, act)
	case RecommendProductsAction:
		return e.recommendProducts(ctx, customerID)
	case CreateOrderAction:
		return e.createOrder(ctx, customerID, act)
	default:
		return Result{}, &ClassificationError{Name: a.ActionName()}
	}
}

func (e *Executor) listCategories(ctx context.Context) (Result, error) {
	categories, err := e.products.ListCategories(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "list categories")
	}

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("status")
	enc.Str("success")
	enc.FieldStart("categories")
	enc.ArrStart()
	for _, c := range categories {
		enc.Str(c)
	}
	enc.ArrEnd()
	enc.ObjEnd()
	return Result{OK: true, Body: enc.Bytes()}, nil
}

func (e *Executor) searchProducts(ctx context.Context, act SearchProductsAction) (Result, error) {
	res, err := e.products.Search(ctx, product.SearchFilter{
		Query:    act.Query,
		Category: act.Category,
		MinPrice: act.MinPrice,
		MaxPrice: act.MaxPrice,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "search products")
	}

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("status")
	enc.Str("success")
	enc.FieldStart("products")
	enc.ArrStart()
	for i := range res.Products {
		encodeProduct(&enc, &res.Products[i])
	}
	enc.ArrEnd()
	enc.FieldStart("metadata")
	enc.ObjStart()
	enc.FieldStart("total_results")
	enc.Int(len(res.Products))
	enc.FieldStart("categories")
	enc.ArrStart()
	for _, c := range res.Categories {
		enc.ObjStart()
		enc.FieldStart("name")
		enc.Str(c.Name)
		enc.FieldStart("product_count")
		enc.Int(c.ProductCount)
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("price_range")
	enc.ObjStart()
	enc.FieldStart("min")
	enc.Float64(res.Prices.Min.InexactFloat64())
	enc.FieldStart("max")
	enc.Float64(res.Prices.Max.InexactFloat64())
	enc.FieldStart("average")
	enc.Float64(res.Prices.Average.InexactFloat64())
	enc.ObjEnd()
	enc.ObjEnd()
	enc.ObjEnd()
	return Result{OK: true, Body: enc.Bytes()}, nil
}

func (e *Executor) checkOrderStatus(ctx context.Context, customerID string, act CheckOrderStatusAction) (Result, error) {
	if customerID == "" {
		return errResult(ErrNoCustomer.Error(), nil), nil
	}

	if act.OrderID != "" {
		summary, err := e.orders.GetOrder(ctx, customerID, act.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return errResult("Order not found", func(enc *jx.Encoder) {
					enc.FieldStart("customer_id")
					enc.Str(customerID)
					enc.FieldStart("order_id")
					enc.Str(act.OrderID)
				}), nil
			}
			return Result{}, errors.Wrap(err, "get order")
		}

		var enc jx.Encoder
		enc.ObjStart()
		enc.FieldStart("status")
		enc.Str("success")
		enc.FieldStart("order_id")
		enc.Str(summary.OrderID)
		enc.FieldStart("order_date")
		enc.Str(summary.Date.Format(time.RFC3339))
		enc.FieldStart("order_status")
		enc.Str(string(summary.Status))
		enc.FieldStart("products")
		enc.Str(summary.Products)
		enc.FieldStart("total_amount")
		enc.Float64(summary.Total.InexactFloat64())
		enc.FieldStart("customer_id")
		enc.Str(customerID)
		enc.ObjEnd()
		return Result{OK: true, Body: enc.Bytes()}, nil
	}

	summaries, err := e.orders.ListOrders(ctx, customerID)
	if err != nil {
		return Result{}, errors.Wrap(err, "list orders")
	}

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("status")
	enc.Str("success")
	enc.FieldStart("customer_id")
	enc.Str(customerID)
	enc.FieldStart("orders")
	enc.ArrStart()
	for _, s := range summaries {
		enc.ObjStart()
		enc.FieldStart("order_id")
		enc.Str(s.OrderID)
		enc.FieldStart("order_date")
		enc.Str(s.Date.Format(time.RFC3339))
		enc.FieldStart("status")
		enc.Str(string(s.Status))
		enc.FieldStart("item_count")
		enc.Int(s.ItemCount)
		enc.FieldStart("total_amount")
		enc.Float64(s.Total.InexactFloat64())
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.ObjEnd()
	return Result{OK: true, Body: enc.Bytes()}, nil
}

func (e *Executor) recommendProducts(ctx context.Context, customerID string) (Result, error) {
	if customerID == "" {
		return errResult(ErrNoCustomer.Error(), nil), nil
	}

	// Up to 5 products from the customer's 3 most recent categories; an
	// empty history falls back to the whole in-stock catalog.
	categories, err := e.orders.RecentCategories(ctx, customerID, 3)
	if err != nil {
		return Result{}, errors.Wrap(err, "recent categories")
	}
	recommendations, err := e.products.Recommend(ctx, categories, 5)
	if err != nil {
		return Result{}, errors.Wrap(err, "recommend products")
	}

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("status")
	enc.Str("success")
	enc.FieldStart("customer_id")
	enc.Str(customerID)
	enc.FieldStart("recommendations")
	enc.ArrStart()
	for i := range recommendations {
		encodeProduct(&enc, &recommendations[i])
	}
	enc.ArrEnd()
	enc.ObjEnd()
	return Result{OK: true, Body: enc.Bytes()}, nil
}

func (e *Executor) createOrder(ctx context.Context, customerID string, act CreateOrderAction) (Result, error) {
	if customerID == "" {
		return errResult(ErrNoCustomer.Error(), nil), nil
	}

	receipt, err := e.orders.CreateOrder(ctx, customerID, act.Items)
	if err != nil {
		if isOrderValidationError(err) {
			return errResult(err.Error(), func(enc *jx.Encoder) {
				enc.FieldStart("customer_id")
				enc.Str(customerID)
			}), nil
		}
		return Result{}, errors.Wrap(err, "create order")
	}

	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("order_id")
	enc.Str(receipt.OrderID)
	enc.FieldStart("status")
	enc.Str("success")
	enc.FieldStart("message")
	enc.Str("Order created successfully")
	enc.FieldStart("total_amount")
	enc.Float64(receipt.Total.InexactFloat64())
	enc.FieldStart("products")
	enc.ArrStart()
	for _, line := range receipt.Lines {
		enc.ObjStart()
		enc.FieldStart("name")
		enc.Str(line.Name)
		enc.FieldStart("quantity")
		enc.Int(line.Quantity)
		enc.FieldStart("unit_price")
		enc.Float64(line.UnitPrice.InexactFloat64())
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("customer_id")
	enc.Str(customerID)
	enc.ObjEnd()
	return Result{OK: true, Body: enc.Bytes()}, nil
}

// isOrderValidationError reports whether err is an expected order failure
// that should be folded into the conversation rather than propagated.
func isOrderValidationError(err error) bool {
	var (
		notFound     *order.ProductNotFoundError
		insufficient *order.InsufficientStockError
		badQuantity  *order.InvalidQuantityError
	)
	return errors.Is(err, order.ErrEmptyItems) ||
		errors.As(err, &notFound) ||
		errors.As(err, &insufficient) ||
		errors.As(err, &badQuantity)
}

// errResult builds a {"status":"error","message":...} object, with optional
// extra fields appended by extend.
func errResult(message string, extend func(*jx.Encoder)) Result {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("status")
	enc.Str("error")
	enc.FieldStart("message")
	enc.Str(message)
	if extend != nil {
		extend(&enc)
	}
	enc.ObjEnd()
	return Result{OK: false, Body: enc.Bytes()}
}

func encodeProduct(enc *jx.Encoder, p *product.Product) {
	enc.ObjStart()
	enc.FieldStart("product_id")
	enc.Str(p.ID)
	enc.FieldStart("name")
	enc.Str(p.Name)
	enc.FieldStart("category")
	enc.Str(p.Category)
	enc.FieldStart("description")
	enc.Str(p.Description)
	enc.FieldStart("price")
	enc.Float64(p.Price.InexactFloat64())
	enc.FieldStart("stock")
	enc.Int(p.Quantity)
	enc.ObjEnd()
}

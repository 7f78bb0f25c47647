//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/order"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/storage/postgres"
)

func seedProduct(t *testing.T, name, category, price string, quantity int) {
	t.Helper()
	repo := postgres.NewProductRepository(pool)
	err := repo.Insert(context.Background(), product.Product{
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	})
	if err != nil {
		t.Fatalf("seed product %q: %v", name, err)
	}
}

func stockOf(t *testing.T, name string) int {
	t.Helper()
	var quantity int
	err := pool.QueryRow(context.Background(),
		`SELECT quantity FROM products WHERE lower(name) = lower($1)`, name).Scan(&quantity)
	if err != nil {
		t.Fatalf("stock of %q: %v", name, err)
	}
	return quantity
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestProductRepository_Search(t *testing.T) {
	resetDB(t)
	seedProduct(t, "Banana", "Fruit", "3.00", 10)
	seedProduct(t, "Mango", "Fruit", "6.00", 10)
	seedProduct(t, "Carrot", "Vegetable", "1.50", 10)
	seedProduct(t, "Durian", "Fruit", "12.00", 0)

	repo := postgres.NewProductRepository(pool)
	ctx := context.Background()

	categories, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(categories) != 2 || categories[0] != "fruit" || categories[1] != "vegetable" {
		t.Errorf("categories: got %v, want [fruit vegetable]", categories)
	}

	maxPrice := decimal.RequireFromString("5.00")
	res, err := repo.Search(ctx, product.SearchFilter{Category: "fruit", MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Products) != 1 || res.Products[0].Name != "banana" {
		t.Fatalf("products: got %v, want [banana]", res.Products)
	}

	// Metadata covers every in-stock product, not just the matches.
	if len(res.Categories) != 2 {
		t.Errorf("metadata categories: got %d, want 2", len(res.Categories))
	}
	if !res.Prices.Min.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("min price: got %s, want 1.50", res.Prices.Min)
	}
	if !res.Prices.Max.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("max price: got %s, want 6.00", res.Prices.Max)
	}
	if !res.Prices.Average.Equal(decimal.RequireFromString("3.50")) {
		t.Errorf("average price: got %s, want 3.50", res.Prices.Average)
	}

	// Substring query hits descriptions as well as names.
	res, err = repo.Search(ctx, product.SearchFilter{Query: "ANG"})
	if err != nil {
		t.Fatalf("search by query: %v", err)
	}
	if len(res.Products) != 1 || res.Products[0].Name != "mango" {
		t.Errorf("query match: got %v, want [mango]", res.Products)
	}
}

func TestProductRepository_DuplicateNameRejected(t *testing.T) {
	resetDB(t)
	seedProduct(t, "Banana", "Fruit", "3.00", 10)

	repo := postgres.NewProductRepository(pool)
	err := repo.Insert(context.Background(), product.Product{
		Name:     "BANANA",
		Category: "fruit",
		Price:    decimal.RequireFromString("1.00"),
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}

func TestOrderStore_Commit(t *testing.T) {
	resetDB(t)
	seedProduct(t, "Banana", "Fruit", "2.99", 10)
	seedProduct(t, "Carrot", "Vegetable", "0.40", 10)

	store := postgres.NewOrderStore(pool)
	ctx := context.Background()

	receipt, err := store.CreateOrder(ctx, "c-1", []order.LineRequest{
		{ProductName: "BANANA", Quantity: 3},
		{ProductName: "carrot", Quantity: 7},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	want := decimal.RequireFromString("11.77")
	if !receipt.Total.Equal(want) {
		t.Errorf("total: got %s, want %s", receipt.Total, want)
	}
	if got := stockOf(t, "banana"); got != 7 {
		t.Errorf("banana stock: got %d, want 7", got)
	}
	if got := stockOf(t, "carrot"); got != 3 {
		t.Errorf("carrot stock: got %d, want 3", got)
	}

	sum, err := store.GetOrder(ctx, "c-1", receipt.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if sum.Status != order.StatusCompleted {
		t.Errorf("status: got %s, want %s", sum.Status, order.StatusCompleted)
	}
	if sum.Products != "banana (x3), carrot (x7)" {
		t.Errorf("products: got %q", sum.Products)
	}
	if !sum.Total.Equal(want) {
		t.Errorf("summary total: got %s, want %s", sum.Total, want)
	}

	// Ownership is enforced in the query itself.
	if _, err := store.GetOrder(ctx, "c-2", receipt.OrderID); !errors.Is(err, order.ErrNotFound) {
		t.Errorf("cross-customer get: got %v, want ErrNotFound", err)
	}
}

func TestOrderStore_RollbackIsTotal(t *testing.T) {
	resetDB(t)
	seedProduct(t, "Banana", "Fruit", "3.00", 10)
	seedProduct(t, "Carrot", "Vegetable", "1.50", 2)

	store := postgres.NewOrderStore(pool)
	ctx := context.Background()

	// The first line would succeed on its own; the second fails the stock
	// check. Nothing from the first line may survive.
	_, err := store.CreateOrder(ctx, "c-1", []order.LineRequest{
		{ProductName: "banana", Quantity: 1},
		{ProductName: "carrot", Quantity: 3},
	})
	var stockErr *order.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 3 {
		t.Errorf("stock error details: got %+v", stockErr)
	}

	if got := stockOf(t, "banana"); got != 10 {
		t.Errorf("banana stock after rollback: got %d, want 10", got)
	}
	if got := countRows(t, "orders"); got != 0 {
		t.Errorf("orders after rollback: got %d, want 0", got)
	}
	if got := countRows(t, "order_lines"); got != 0 {
		t.Errorf("order lines after rollback: got %d, want 0", got)
	}

	_, err = store.CreateOrder(ctx, "c-1", []order.LineRequest{
		{ProductName: "durian", Quantity: 1},
	})
	var notFoundErr *order.ProductNotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("expected ProductNotFoundError, got %v", err)
	}
}

// Two transactions race for the last unit. The FOR UPDATE row lock must
// serialize them: exactly one commits, the loser sees the post-commit stock.
func TestOrderStore_LastUnitRace(t *testing.T) {
	store := postgres.NewOrderStore(pool)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		resetDB(t)
		seedProduct(t, "Truffle", "Fungus", "90.00", 1)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = store.CreateOrder(ctx, "c-1", []order.LineRequest{
					{ProductName: "truffle", Quantity: 1},
				})
			}()
		}
		wg.Wait()

		var wins int
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			var stockErr *order.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Fatalf("loser error: got %v, want InsufficientStockError", err)
			}
			if stockErr.Available != 0 {
				t.Errorf("loser saw stale stock: got %d, want 0", stockErr.Available)
			}
		}
		if wins != 1 {
			t.Fatalf("round %d: got %d winners, want exactly 1", i, wins)
		}
		if got := stockOf(t, "truffle"); got != 0 {
			t.Fatalf("round %d: stock got %d, want 0", i, got)
		}
	}
}

func TestOrderStore_ListAndRecentCategories(t *testing.T) {
	resetDB(t)
	seedProduct(t, "Banana", "Fruit", "3.00", 10)
	seedProduct(t, "Carrot", "Vegetable", "1.50", 10)
	seedProduct(t, "Truffle", "Fungus", "90.00", 10)
	seedProduct(t, "Brie", "Cheese", "8.00", 10)

	store := postgres.NewOrderStore(pool)
	ctx := context.Background()

	// order_date granularity decides recency, so space the orders out.
	for _, name := range []string{"banana", "carrot", "truffle", "brie"} {
		if _, err := store.CreateOrder(ctx, "c-1", []order.LineRequest{{ProductName: name, Quantity: 1}}); err != nil {
			t.Fatalf("create order for %q: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	orders, err := store.ListOrders(ctx, "c-1")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 4 {
		t.Fatalf("orders: got %d, want 4", len(orders))
	}
	for i := 1; i < len(orders); i++ {
		if orders[i].Date.After(orders[i-1].Date) {
			t.Errorf("orders not newest-first at index %d", i)
		}
	}

	categories, err := store.RecentCategories(ctx, "c-1", 3)
	if err != nil {
		t.Fatalf("recent categories: %v", err)
	}
	want := []string{"cheese", "fungus", "vegetable"}
	if len(categories) != len(want) {
		t.Fatalf("recent categories: got %v, want %v", categories, want)
	}
	for i := range want {
		if categories[i] != want[i] {
			t.Errorf("recent categories[%d]: got %q, want %q", i, categories[i], want[i])
		}
	}

	other, err := store.ListOrders(ctx, "c-2")
	if err != nil {
		t.Fatalf("list other customer: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other customer sees %d orders, want 0", len(other))
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	resetDB(t)
	store := postgres.NewSessionStore(pool)
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("load missing: got %v, want ErrNotFound", err)
	}

	sess := session.New("s-1", "c-1")
	sess.Append(session.Message{Role: session.RoleUser, Content: "two bananas please"})
	sess.Pending = &session.PendingAction{
		Name:      "create_order",
		Arguments: json.RawMessage(`{"items":[{"product_name":"banana","quantity":2}]}`),
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh load sees the suspended action: it survives restarts.
	loaded, err := store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.CustomerID != "c-1" {
		t.Errorf("customer id: got %q, want c-1", loaded.CustomerID)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "two bananas please" {
		t.Errorf("messages: got %+v", loaded.Messages)
	}
	if loaded.Pending == nil || loaded.Pending.Name != "create_order" {
		t.Fatalf("pending: got %+v, want create_order", loaded.Pending)
	}

	// Upsert replaces the state wholesale.
	loaded.Pending = nil
	loaded.Append(session.Message{Role: session.RoleAssistant, Content: "Done!"})
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("save again: %v", err)
	}
	final, err := store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Pending != nil {
		t.Errorf("pending should be cleared, got %+v", final.Pending)
	}
	if len(final.Messages) != 2 {
		t.Errorf("messages: got %d, want 2", len(final.Messages))
	}
}

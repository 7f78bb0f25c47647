// Package memory provides in-process implementations of the store
// interfaces with the same semantics as the PostgreSQL layer: atomic order
// commits, per-product serialization, and not-found behavior. It backs unit
// tests; production uses the postgres package.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/order"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/product"
	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/session"
)

var (
	_ product.Repository = (*Store)(nil)
	_ order.Store        = (*Store)(nil)
	_ session.Store      = (*Store)(nil)
)

type orderRecord struct {
	id         string
	customerID string
	date       time.Time
	seq        int
	status     order.Status
	lines      []orderLine
}

type orderLine struct {
	productID string
	quantity  int
	unitPrice decimal.Decimal
}

// Store is a mutex-guarded in-memory catalog, order ledger, and session
// store. The single mutex makes every order commit a critical section, which
// gives the same per-product linearization the row locks give in PostgreSQL.
type Store struct {
	mu       sync.Mutex
	products map[string]*product.Product // by id
	byName   map[string]string           // lower(name) -> id
	orders   []*orderRecord
	sessions map[string][]byte
	seq      int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]*product.Product),
		byName:   make(map[string]string),
		sessions: make(map[string][]byte),
	}
}

// Insert validates and adds a product, mirroring the postgres validation
// path: names and categories are stored lowercased, duplicates rejected.
func (s *Store) Insert(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(p.Name)
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("inserting product %q: duplicate name", p.Name)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Name = name
	p.Category = strings.ToLower(p.Category)

	s.products[p.ID] = &p
	s.byName[name] = p.ID
	return nil
}

// ListCategories returns the distinct in-stock categories, sorted.
func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var categories []string
	for _, p := range s.products {
		if p.Quantity <= 0 {
			continue
		}
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// Search filters the in-stock catalog and computes filter-independent
// metadata over all in-stock products.
func (s *Store) Search(_ context.Context, filter product.SearchFilter) (*product.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &product.SearchResult{}
	counts := make(map[string]int)
	var (
		priceSum decimal.Decimal
		inStock  int
	)

	for _, p := range s.products {
		if p.Quantity <= 0 {
			continue
		}

		// Metadata population: every in-stock product.
		counts[p.Category]++
		if inStock == 0 {
			res.Prices.Min = p.Price
			res.Prices.Max = p.Price
		} else {
			if p.Price.LessThan(res.Prices.Min) {
				res.Prices.Min = p.Price
			}
			if p.Price.GreaterThan(res.Prices.Max) {
				res.Prices.Max = p.Price
			}
		}
		priceSum = priceSum.Add(p.Price)
		inStock++

		if matches(p, filter) {
			res.Products = append(res.Products, *p)
		}
	}

	if inStock > 0 {
		res.Prices.Average = priceSum.Div(decimal.NewFromInt(int64(inStock))).Round(2)
	}
	for name, count := range counts {
		res.Categories = append(res.Categories, product.CategoryCount{Name: name, ProductCount: count})
	}
	sort.Slice(res.Categories, func(i, j int) bool { return res.Categories[i].Name < res.Categories[j].Name })
	sort.Slice(res.Products, func(i, j int) bool { return res.Products[i].Name < res.Products[j].Name })
	return res, nil
}

func matches(p *product.Product, f product.SearchFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// Recommend returns up to limit in-stock products from the given categories,
// or from the whole catalog when categories is empty. Map iteration order
// keeps the selection unspecified.
func (s *Store) Recommend(_ context.Context, categories []string, limit int) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		wanted[strings.ToLower(c)] = struct{}{}
	}

	var recommendations []product.Product
	for _, p := range s.products {
		if len(recommendations) >= limit {
			break
		}
		if p.Quantity <= 0 {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[p.Category]; !ok {
				continue
			}
		}
		recommendations = append(recommendations, *p)
	}
	return recommendations, nil
}

// CreateOrder commits a new order atomically under the store lock: stock
// checks and decrements are a single critical section, so racing orders for
// the last unit are serialized and exactly one wins.
func (s *Store) CreateOrder(_ context.Context, customerID string, lines []order.LineRequest) (*order.Receipt, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer ID required")
	}
	if len(lines) == 0 {
		return nil, order.ErrEmptyItems
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line before mutating anything, so failure is total.
	type staged struct {
		p   *product.Product
		qty int
	}
	stagedLines := make([]staged, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &order.InvalidQuantityError{Name: line.ProductName}
		}
		id, ok := s.byName[strings.ToLower(line.ProductName)]
		if !ok {
			return nil, &order.ProductNotFoundError{Name: line.ProductName}
		}
		p := s.products[id]
		if p.Quantity < line.Quantity {
			return nil, &order.InsufficientStockError{
				Name:      line.ProductName,
				Requested: line.Quantity,
				Available: p.Quantity,
			}
		}
		stagedLines = append(stagedLines, staged{p: p, qty: line.Quantity})
	}

	s.seq++
	rec := &orderRecord{
		id:         uuid.New().String(),
		customerID: customerID,
		date:       time.Now().UTC(),
		seq:        s.seq,
		status:     order.StatusCompleted,
	}
	receipt := &order.Receipt{OrderID: rec.id, Total: decimal.Zero, CreatedAt: rec.date}

	for _, line := range stagedLines {
		line.p.Quantity -= line.qty
		rec.lines = append(rec.lines, orderLine{
			productID: line.p.ID,
			quantity:  line.qty,
			unitPrice: line.p.Price,
		})
		receipt.Total = receipt.Total.Add(line.p.Price.Mul(decimal.NewFromInt(int64(line.qty))))
		receipt.Lines = append(receipt.Lines, order.ReceiptLine{
			Name:      line.p.Name,
			Quantity:  line.qty,
			UnitPrice: line.p.Price,
		})
	}

	s.orders = append(s.orders, rec)
	return receipt, nil
}

// GetOrder returns one order belonging to customerID, or order.ErrNotFound.
func (s *Store) GetOrder(_ context.Context, customerID, orderID string) (*order.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.orders {
		if rec.id != orderID || rec.customerID != customerID {
			continue
		}
		return s.summarize(rec, true), nil
	}
	return nil, order.ErrNotFound
}

// ListOrders returns all of the customer's orders, newest first.
func (s *Store) ListOrders(_ context.Context, customerID string) ([]order.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*orderRecord
	for _, rec := range s.orders {
		if rec.customerID == customerID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	summaries := make([]order.Summary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, *s.summarize(rec, false))
	}
	return summaries, nil
}

// RecentCategories returns up to limit distinct categories from the
// customer's purchase history, most recent order first.
func (s *Store) RecentCategories(_ context.Context, customerID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*orderRecord
	for _, rec := range s.orders {
		if rec.customerID == customerID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	seen := make(map[string]struct{})
	var categories []string
	for _, rec := range recs {
		for _, line := range rec.lines {
			p, ok := s.products[line.productID]
			if !ok {
				continue
			}
			if _, dup := seen[p.Category]; dup {
				continue
			}
			seen[p.Category] = struct{}{}
			categories = append(categories, p.Category)
			if len(categories) >= limit {
				return categories, nil
			}
		}
	}
	return categories, nil
}

func (s *Store) summarize(rec *orderRecord, withProducts bool) *order.Summary {
	sum := &order.Summary{
		OrderID:   rec.id,
		Date:      rec.date,
		Status:    rec.status,
		ItemCount: len(rec.lines),
		Total:     decimal.Zero,
	}

	var names []string
	for _, line := range rec.lines {
		sum.Total = sum.Total.Add(line.unitPrice.Mul(decimal.NewFromInt(int64(line.quantity))))
		if withProducts {
			if p, ok := s.products[line.productID]; ok {
				names = append(names, fmt.Sprintf("%s (x%d)", p.Name, line.quantity))
			}
		}
	}
	if withProducts {
		sort.Strings(names)
		sum.Products = strings.Join(names, ", ")
	}
	return sum
}

// Load returns a deep copy of the stored session, or session.ErrNotFound.
func (s *Store) Load(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	var sess session.Session
	if err := unmarshalSession(state, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save persists a deep copy of the session.
func (s *Store) Save(_ context.Context, sess *session.Session) error {
	state, err := marshalSession(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = state
	return nil
}

// Stock reports the current stock for a product name; it exists for test
// assertions.
func (s *Store) Stock(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return -1
	}
	return s.products[id].Quantity
}

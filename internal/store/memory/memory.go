package memory

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
	"beachkiosk/backend/internal/xid"
)

type Store struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	expenses []domain.Expense
	settings domain.AppSettings
}

func New() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		expenses: make([]domain.Expense, 0, 128),
		settings: domain.DefaultSettings(),
	}
}

// NewSeeded returns a store preloaded with a small beach-kiosk catalog,
// useful for dev mode and tests.
func NewSeeded() *Store {
	s := New()
	s.settings.Products = []domain.Product{
		{ID: "prd-seed-01", Name: "Cerveja Lata", Category: domain.ProductDrink, PriceCents: 800, Stock: 120, Unit: domain.UnitPiece, Barcode: "7891149104401", MinStock: 24},
		{ID: "prd-seed-02", Name: "Água Mineral 500ml", Category: domain.ProductDrink, PriceCents: 400, Stock: 96, Unit: domain.UnitPiece, Barcode: "7894900011517", MinStock: 12},
		{ID: "prd-seed-03", Name: "Refrigerante Lata", Category: domain.ProductDrink, PriceCents: 600, Stock: 72, Unit: domain.UnitPiece},
		{ID: "prd-seed-04", Name: "Espetinho de Camarão", Category: domain.ProductFood, PriceCents: 1500, Stock: 40, Unit: domain.UnitPiece, MinStock: 8},
		{ID: "prd-seed-05", Name: "Açaí 300ml", Category: domain.ProductFood, PriceCents: 1200, Stock: 30, Unit: domain.UnitPiece},
		{ID: "prd-seed-06", Name: "Porção de Fritas", Category: domain.ProductFood, PriceCents: 2000, Stock: 25, Unit: domain.UnitPiece},
		{ID: "prd-seed-07", Name: "Caipirinha", Category: domain.ProductDrink, PriceCents: 1800, Stock: 50, Unit: domain.UnitPiece},
		{ID: "prd-seed-08", Name: "Picolé", Category: domain.ProductOther, PriceCents: 500, Stock: 60, Unit: domain.UnitPiece, MinStock: 10},
	}
	return s
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, cloneOrder(o))
	}

	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.Status != b.Status {
			if a.Status == domain.OrderStatusOpen {
				return -1
			}
			return 1
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneOrder(order)
	return &copied, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.TableOrName) == "" {
		return nil, store.ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrInvalidOrder
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusOpen
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}
	if order.SplitCount < 1 {
		order.SplitCount = 1
	}

	s.orders[order.ID] = cloneOrder(order)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) ReplaceOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if existing.Status == domain.OrderStatusClosed {
		return nil, store.ErrOrderClosed
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = existing.CreatedAt
	}
	s.orders[order.ID] = cloneOrder(order)
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) CloseOrder(_ context.Context, order domain.Order, entry domain.Expense) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if existing.Status == domain.OrderStatusClosed {
		return nil, store.ErrOrderClosed
	}

	// The caller's final order overwrites the stored one wholesale.
	order.Status = domain.OrderStatusClosed
	if order.ClosedAt == nil {
		now := time.Now().UTC()
		order.ClosedAt = &now
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = existing.CreatedAt
	}
	s.orders[order.ID] = cloneOrder(order)

	if entry.ID == "" {
		entry.ID = xid.New("exp")
	}
	s.expenses = append(s.expenses, entry)

	// Stock leaves for every item, courtesy and pending included. Items
	// with no matching product are skipped silently.
	for _, item := range order.Items {
		idx := s.findProductIndex(item.ProductID, item.Name)
		if idx < 0 {
			continue
		}
		next := s.settings.Products[idx].Stock - item.Quantity
		if next < 0 {
			next = 0
		}
		s.settings.Products[idx].Stock = next
	}

	closed := cloneOrder(order)
	return &closed, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) ReplaceAllOrders(_ context.Context, orders []domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			o.ID = xid.New("ord")
		}
		replacement[o.ID] = cloneOrder(o)
	}
	s.orders = replacement
	return nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, len(s.expenses))
	copy(result, s.expenses)
	sortExpenses(result)
	return result, nil
}

func (s *Store) ListExpensesByMonth(_ context.Context, year int, month int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if matchesMonth(e.Date, year, month) {
			result = append(result, e)
		}
	}
	sortExpenses(result)
	return result, nil
}

func (s *Store) AppendExpense(_ context.Context, entry domain.Expense) (*domain.Expense, error) {
	if entry.AmountCents < 0 || entry.Category == "" {
		return nil, store.ErrInvalidExpense
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("exp")
	}
	s.expenses = append(s.expenses, entry)
	created := entry
	return &created, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ReplaceAllExpenses(_ context.Context, entries []domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]domain.Expense, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = xid.New("exp")
		}
		replacement = append(replacement, e)
	}
	s.expenses = replacement
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.AppSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneSettings(s.settings), nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.Products == nil {
		settings.Products = []domain.Product{}
	}
	s.settings = cloneSettings(settings)
	return cloneSettings(s.settings), nil
}

// findProductIndex matches by product ID first, then by exact name.
// Callers must hold the lock.
func (s *Store) findProductIndex(productID string, name string) int {
	if productID != "" {
		for i, p := range s.settings.Products {
			if p.ID == productID {
				return i
			}
		}
	}
	for i, p := range s.settings.Products {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func cloneOrder(o domain.Order) domain.Order {
	copied := o
	copied.Items = make([]domain.OrderItem, len(o.Items))
	copy(copied.Items, o.Items)
	if o.ClosedAt != nil {
		at := *o.ClosedAt
		copied.ClosedAt = &at
	}
	return copied
}

func cloneSettings(s domain.AppSettings) domain.AppSettings {
	copied := s
	copied.Products = make([]domain.Product, len(s.Products))
	copy(copied.Products, s.Products)
	return copied
}

func sortExpenses(entries []domain.Expense) {
	slices.SortFunc(entries, func(a, b domain.Expense) int {
		if a.Date == b.Date {
			return cmpString(b.ID, a.ID)
		}
		return cmpString(b.Date, a.Date)
	})
}

// matchesMonth follows the ledger date convention: split on "-" and compare
// the year and month fields numerically, so "2026-8-05" matches month 8.
func matchesMonth(date string, year int, month int) bool {
	parts := strings.SplitN(date, "-", 3)
	if len(parts) < 2 {
		return false
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return y == year && m == month
}

func cmpString(a, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

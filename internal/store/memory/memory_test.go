package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
)

func TestCloseOrderWritesOrderLedgerAndStockTogether(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateOrder(ctx, domain.Order{TableOrName: "Mesa 1"})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	final := *created
	final.Items = []domain.OrderItem{
		{ID: "itm-1", ProductID: "prd-seed-01", Name: "Cerveja Lata", PriceCents: 800, Quantity: 3, Status: domain.ItemStatusPending},
	}
	final.TotalCents = 2400
	entry := domain.Expense{
		Category: domain.CategoryCashIn, Description: "Comanda: Mesa 1",
		AmountCents: 2400, Date: "2026-07-03", Type: domain.EntryTypeIncome,
	}

	closed, err := s.CloseOrder(ctx, final, entry)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Status != domain.OrderStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed order with timestamp, got %+v", closed)
	}

	expenses, err := s.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("list expenses failed: %v", err)
	}
	if len(expenses) != 1 || expenses[0].AmountCents != 2400 {
		t.Fatalf("expected one ledger entry of 2400, got %+v", expenses)
	}
	if expenses[0].ID == "" {
		t.Fatalf("expected generated expense id")
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.Products[0].Stock != 117 {
		t.Fatalf("expected stock 117 after close, got %d", settings.Products[0].Stock)
	}

	if _, err := s.CloseOrder(ctx, final, entry); !errors.Is(err, store.ErrOrderClosed) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
	if _, err := s.ReplaceOrder(ctx, final); !errors.Is(err, store.ErrOrderClosed) {
		t.Fatalf("expected replace on closed order to fail, got %v", err)
	}
}

func TestCloseOrderSkipsUnmatchedItemsAndFloorsStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateOrder(ctx, domain.Order{TableOrName: "Cadeira 2"})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	final := *created
	final.Items = []domain.OrderItem{
		{ID: "itm-1", Name: "Item Avulso", PriceCents: 1000, Quantity: 2, Status: domain.ItemStatusPending},
		{ID: "itm-2", ProductID: "prd-seed-05", Name: "Açaí 300ml", PriceCents: 1200, Quantity: 40, Status: domain.ItemStatusPending},
	}

	if _, err := s.CloseOrder(ctx, final, domain.Expense{Category: domain.CategoryCashIn, AmountCents: 1, Date: "2026-07-03", Type: domain.EntryTypeIncome}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	for _, p := range settings.Products {
		if p.ID == "prd-seed-05" && p.Stock != 0 {
			t.Fatalf("expected stock floored at 0, got %d", p.Stock)
		}
	}
}

func TestListOrdersSortsOpenFirstNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	if _, err := s.CreateOrder(ctx, domain.Order{ID: "ord-old", TableOrName: "Mesa 1", CreatedAt: older}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateOrder(ctx, domain.Order{ID: "ord-new", TableOrName: "Mesa 2", CreatedAt: newer}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateOrder(ctx, domain.Order{ID: "ord-done", TableOrName: "Mesa 3", CreatedAt: newer}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CloseOrder(ctx, domain.Order{ID: "ord-done", TableOrName: "Mesa 3", CreatedAt: newer}, domain.Expense{Category: domain.CategoryCashIn, AmountCents: 1, Date: "2026-07-03", Type: domain.EntryTypeIncome}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	orders, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].ID != "ord-new" || orders[1].ID != "ord-old" {
		t.Fatalf("expected open orders newest first, got %s then %s", orders[0].ID, orders[1].ID)
	}
	if orders[2].ID != "ord-done" {
		t.Fatalf("expected closed order last, got %s", orders[2].ID)
	}
}

func TestGetOrderReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateOrder(ctx, domain.Order{ID: "ord-1", TableOrName: "Mesa 1", Items: []domain.OrderItem{
		{ID: "itm-1", Name: "Cerveja", PriceCents: 800, Quantity: 1},
	}}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.Items[0].Quantity = 99

	again, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.Items[0].Quantity != 1 {
		t.Fatalf("expected stored order untouched by caller mutation, got qty %d", again.Items[0].Quantity)
	}
}

func TestMatchesMonth(t *testing.T) {
	cases := []struct {
		date  string
		year  int
		month int
		want  bool
	}{
		{"2026-07-03", 2026, 7, true},
		{"2026-7-3", 2026, 7, true},
		{"2026-07-03", 2026, 8, false},
		{"2025-07-03", 2026, 7, false},
		{"garbage", 2026, 7, false},
		{"2026", 2026, 7, false},
	}
	for _, tc := range cases {
		if got := matchesMonth(tc.date, tc.year, tc.month); got != tc.want {
			t.Fatalf("matchesMonth(%q, %d, %d) = %v, want %v", tc.date, tc.year, tc.month, got, tc.want)
		}
	}
}

func TestListExpensesSortsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, e := range []domain.Expense{
		{ID: "exp-a", Category: domain.CategoryFuel, AmountCents: 100, Date: "2026-07-01", Type: domain.EntryTypeExpense},
		{ID: "exp-b", Category: domain.CategoryFuel, AmountCents: 100, Date: "2026-07-15", Type: domain.EntryTypeExpense},
		{ID: "exp-c", Category: domain.CategoryFuel, AmountCents: 100, Date: "2026-07-08", Type: domain.EntryTypeExpense},
	} {
		if _, err := s.AppendExpense(ctx, e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := s.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if entries[0].ID != "exp-b" || entries[1].ID != "exp-c" || entries[2].ID != "exp-a" {
		t.Fatalf("expected newest first, got %s %s %s", entries[0].ID, entries[1].ID, entries[2].ID)
	}
}

func TestReplaceAllAssignsMissingIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.ReplaceAllExpenses(ctx, []domain.Expense{
		{Category: domain.CategoryFuel, AmountCents: 100, Date: "2026-07-01", Type: domain.EntryTypeExpense},
	}); err != nil {
		t.Fatalf("replace expenses failed: %v", err)
	}
	entries, err := s.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID == "" {
		t.Fatalf("expected one entry with generated id, got %+v", entries)
	}

	if err := s.ReplaceAllOrders(ctx, []domain.Order{{TableOrName: "Mesa 1"}}); err != nil {
		t.Fatalf("replace orders failed: %v", err)
	}
	orders, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID == "" {
		t.Fatalf("expected one order with generated id, got %+v", orders)
	}
}

func TestDeleteExpense(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.AppendExpense(ctx, domain.Expense{Category: domain.CategoryFuel, AmountCents: 100, Date: "2026-07-01", Type: domain.EntryTypeExpense})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.DeleteExpense(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.DeleteExpense(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
)

func TestCloseOrderTransaction(t *testing.T) {
	databaseURL := os.Getenv("BEACHKIOSK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BEACHKIOSK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	orderID := fmt.Sprintf("ord-close-it-%d", stamp)
	productID := fmt.Sprintf("prd-close-it-%d", stamp)
	expenseID := fmt.Sprintf("exp-close-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, expenseID)
	})

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	settings.Products = append(settings.Products, domain.Product{
		ID: productID, Name: "Produto Integração", PriceCents: 800, Stock: 10,
	})
	if _, err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	t.Cleanup(func() {
		current, err := s.GetSettings(ctx)
		if err != nil {
			return
		}
		kept := current.Products[:0]
		for _, p := range current.Products {
			if p.ID != productID {
				kept = append(kept, p)
			}
		}
		current.Products = kept
		_, _ = s.SaveSettings(ctx, current)
	})

	created, err := s.CreateOrder(ctx, domain.Order{ID: orderID, TableOrName: "Mesa IT"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	final := *created
	final.Items = []domain.OrderItem{
		{ID: "itm-1", ProductID: productID, Name: "Produto Integração", PriceCents: 800, Quantity: 3, Status: domain.ItemStatusPending},
	}
	final.SubtotalCents = 2400
	final.TotalCents = 2400
	entry := domain.Expense{
		ID: expenseID, Category: domain.CategoryCashIn, Description: "Comanda: Mesa IT",
		AmountCents: 2400, Date: time.Now().Format("2006-01-02"), Type: domain.EntryTypeIncome,
		PaymentMethod: domain.PaymentMoney,
	}

	closed, err := s.CloseOrder(ctx, final, entry)
	if err != nil {
		t.Fatalf("close order: %v", err)
	}
	if closed.Status != domain.OrderStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed order with timestamp, got %+v", closed)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status); err != nil {
		t.Fatalf("query order status: %v", err)
	}
	if status != domain.OrderStatusClosed {
		t.Fatalf("expected closed status in db, got %s", status)
	}

	var amount int64
	if err := s.db.QueryRowContext(ctx, `SELECT amount_cents FROM expenses WHERE id = $1`, expenseID).Scan(&amount); err != nil {
		t.Fatalf("query ledger entry: %v", err)
	}
	if amount != 2400 {
		t.Fatalf("expected ledger amount 2400, got %d", amount)
	}

	after, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings after close: %v", err)
	}
	for _, p := range after.Products {
		if p.ID == productID && p.Stock != 7 {
			t.Fatalf("expected stock 7 after close, got %d", p.Stock)
		}
	}

	if _, err := s.CloseOrder(ctx, final, entry); !errors.Is(err, store.ErrOrderClosed) {
		t.Fatalf("expected second close to fail with ErrOrderClosed, got %v", err)
	}
}

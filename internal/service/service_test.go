package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"beachkiosk/backend/internal/cache"
	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
	"beachkiosk/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, nil, time.Second)
}

func openOrder(t *testing.T, svc *Service, name string) domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), domain.OrderCreateRequest{TableOrName: name})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestComputeTotalsWithCourtesyDiscountAndServiceFee(t *testing.T) {
	order := domain.Order{
		Items: []domain.OrderItem{
			{ID: "itm-1", Name: "Cerveja", PriceCents: 1000, Quantity: 3},
			{ID: "itm-2", Name: "Água", PriceCents: 500, Quantity: 1, IsCourtesy: true},
		},
		DiscountCents: 500,
		ServiceFee:    true,
		SplitCount:    3,
	}

	totals := ComputeTotals(order)
	if totals.SubtotalCents != 3000 {
		t.Fatalf("expected subtotal 3000, got %d", totals.SubtotalCents)
	}
	if totals.ServiceFeeCents != 300 {
		t.Fatalf("expected service fee 300, got %d", totals.ServiceFeeCents)
	}
	if totals.TotalCents != 2800 {
		t.Fatalf("expected total 2800, got %d", totals.TotalCents)
	}
	if totals.SplitCents != 933 || totals.SplitRemainderCents != 1 {
		t.Fatalf("expected split 933 remainder 1, got %d remainder %d", totals.SplitCents, totals.SplitRemainderCents)
	}
}

func TestComputeTotalsClampsAtZeroAndCoercesDiscount(t *testing.T) {
	order := domain.Order{
		Items:         []domain.OrderItem{{ID: "itm-1", Name: "Picolé", PriceCents: 500, Quantity: 1}},
		DiscountCents: -2000,
	}

	totals := ComputeTotals(order)
	if totals.DiscountCents != 2000 {
		t.Fatalf("expected discount coerced to 2000, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 0 {
		t.Fatalf("expected total clamped at 0, got %d", totals.TotalCents)
	}
	if totals.SplitCents != 0 {
		t.Fatalf("expected split 0 for zero total, got %d", totals.SplitCents)
	}
}

func TestAddItemMergesPendingLines(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 4")

	for i := 0; i < 3; i++ {
		var err error
		order, err = svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-01"})
		if err != nil {
			t.Fatalf("add item failed: %v", err)
		}
	}

	if len(order.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", order.Items[0].Quantity)
	}
	if order.SubtotalCents != 2400 {
		t.Fatalf("expected subtotal 2400, got %d", order.SubtotalCents)
	}
}

func TestAddItemCourtesyLineDoesNotMerge(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 5")

	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-02"})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	order, err = svc.ToggleCourtesy(ctx, order.ID, order.Items[0].ID)
	if err != nil {
		t.Fatalf("toggle courtesy failed: %v", err)
	}

	order, err = svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-02"})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected courtesy line untouched plus a new line, got %d lines", len(order.Items))
	}
	if order.SubtotalCents != 400 {
		t.Fatalf("expected subtotal 400 with one courtesy line, got %d", order.SubtotalCents)
	}
}

func TestAddItemByNameSnapshotsCatalogPrice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Guarda-sol 2")

	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{Name: "Caipirinha"})
	if err != nil {
		t.Fatalf("add by name failed: %v", err)
	}
	if order.Items[0].PriceCents != 1800 {
		t.Fatalf("expected catalog price 1800, got %d", order.Items[0].PriceCents)
	}
	if order.Items[0].ProductID != "prd-seed-07" {
		t.Fatalf("expected catalog product id, got %q", order.Items[0].ProductID)
	}
}

func TestAddItemCustomNeedsPrice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 6")

	_, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{Name: "Água de Coco"})
	if !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected invalid order for priceless custom item, got %v", err)
	}

	order, err = svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{Name: "Água de Coco", PriceCents: 700})
	if err != nil {
		t.Fatalf("custom item with price failed: %v", err)
	}
	if order.Items[0].PriceCents != 700 || order.Items[0].ProductID != "" {
		t.Fatalf("expected priced custom line, got %+v", order.Items[0])
	}
}

func TestDecrementItemFloorsAtOne(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 7")

	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-03"})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	itemID := order.Items[0].ID

	order, err = svc.DecrementItem(ctx, order.ID, itemID)
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if order.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity floored at 1, got %d", order.Items[0].Quantity)
	}
}

func TestToggleDeliveredStopsMergingButNotTotals(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 9")

	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-01"})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	order, err = svc.ToggleDelivered(ctx, order.ID, order.Items[0].ID)
	if err != nil {
		t.Fatalf("toggle delivered failed: %v", err)
	}
	if order.Items[0].Status != domain.ItemStatusDelivered {
		t.Fatalf("expected delivered status, got %q", order.Items[0].Status)
	}
	if order.SubtotalCents != 800 {
		t.Fatalf("delivery must not affect totals, got subtotal %d", order.SubtotalCents)
	}

	// Delivered lines stay as-is; a new add opens a fresh pending line.
	order, err = svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-01"})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected delivered line untouched plus a new line, got %d lines", len(order.Items))
	}

	order, err = svc.ToggleDelivered(ctx, order.ID, order.Items[0].ID)
	if err != nil {
		t.Fatalf("toggle back failed: %v", err)
	}
	if order.Items[0].Status != domain.ItemStatusPending {
		t.Fatalf("expected pending after toggling back, got %q", order.Items[0].Status)
	}
}

func TestCreateProductDefaults(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Água de Coco", PriceCents: 700, Stock: 24})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if product.Category != domain.ProductOther {
		t.Fatalf("expected category to default to other, got %q", product.Category)
	}
	if product.MinStock != 5 {
		t.Fatalf("expected min stock to default to 5, got %d", product.MinStock)
	}

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Sorvete", Category: "sobremesa", PriceCents: 900}); err == nil {
		t.Fatalf("expected unknown category to be rejected")
	}
}

func TestUpdateOrderRecomputesTotalsAndIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 8")

	order.Items = []domain.OrderItem{
		{ID: "itm-a", Name: "Cerveja Lata", ProductID: "prd-seed-01", PriceCents: 800, Quantity: 2},
	}
	order.DiscountCents = -100
	order.SubtotalCents = 999999
	order.TotalCents = 999999

	updated, err := svc.UpdateOrder(ctx, order)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.SubtotalCents != 1600 || updated.TotalCents != 1500 {
		t.Fatalf("expected server-side totals 1600/1500, got %d/%d", updated.SubtotalCents, updated.TotalCents)
	}
	if updated.DiscountCents != 100 {
		t.Fatalf("expected discount coerced to 100, got %d", updated.DiscountCents)
	}

	again, err := svc.UpdateOrder(ctx, updated)
	if err != nil {
		t.Fatalf("replayed update failed: %v", err)
	}
	if again.SubtotalCents != updated.SubtotalCents || again.TotalCents != updated.TotalCents {
		t.Fatalf("expected replay to be a no-op, got %d/%d", again.SubtotalCents, again.TotalCents)
	}
}

func TestCloseOrderDecrementsStockAndRecordsIncome(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 1")

	for i := 0; i < 3; i++ {
		var err error
		order, err = svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-01"})
		if err != nil {
			t.Fatalf("add beer failed: %v", err)
		}
	}
	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{ProductID: "prd-seed-02"})
	if err != nil {
		t.Fatalf("add water failed: %v", err)
	}
	order, err = svc.ToggleCourtesy(ctx, order.ID, order.Items[1].ID)
	if err != nil {
		t.Fatalf("toggle courtesy failed: %v", err)
	}
	order.DiscountCents = 100
	order.ServiceFee = true

	closed, err := svc.CloseOrder(ctx, order.ID, domain.OrderCloseRequest{
		Order:         order,
		PaymentMethod: domain.PaymentPix,
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Status != domain.OrderStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed order with timestamp, got %+v", closed)
	}
	// 3x800 + courtesy water, 10% fee, 100 discount.
	if closed.TotalCents != 2540 {
		t.Fatalf("expected total 2540, got %d", closed.TotalCents)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	for _, p := range products {
		switch p.ID {
		case "prd-seed-01":
			if p.Stock != 117 {
				t.Fatalf("expected beer stock 117, got %d", p.Stock)
			}
		case "prd-seed-02":
			// Courtesy items still leave stock.
			if p.Stock != 95 {
				t.Fatalf("expected water stock 95, got %d", p.Stock)
			}
		}
	}

	now := time.Now()
	entries, err := svc.MonthlyExpenses(ctx, now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("monthly expenses failed: %v", err)
	}
	income := 0
	for _, e := range entries {
		if e.Type != domain.EntryTypeIncome {
			continue
		}
		income++
		if e.Category != domain.CategoryCashIn {
			t.Fatalf("expected category %q, got %q", domain.CategoryCashIn, e.Category)
		}
		if e.AmountCents != closed.TotalCents {
			t.Fatalf("expected ledger amount %d, got %d", closed.TotalCents, e.AmountCents)
		}
		if e.Description != "Comanda: Mesa 1" {
			t.Fatalf("unexpected ledger description %q", e.Description)
		}
		if e.PaymentMethod != domain.PaymentPix {
			t.Fatalf("expected payment method pix, got %q", e.PaymentMethod)
		}
	}
	if income != 1 {
		t.Fatalf("expected exactly one income entry, got %d", income)
	}

	_, err = svc.CloseOrder(ctx, order.ID, domain.OrderCloseRequest{Order: order, PaymentMethod: domain.PaymentMoney})
	if !errors.Is(err, store.ErrOrderClosed) {
		t.Fatalf("expected second close to fail with ErrOrderClosed, got %v", err)
	}
}

func TestCloseOrderFloorsStockAtZero(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	two := 2
	if _, err := svc.AdjustStock(ctx, "prd-seed-04", domain.StockAdjustRequest{Set: &two}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	order := openOrder(t, svc, "Mesa 2")
	order.Items = []domain.OrderItem{
		{ID: "itm-a", ProductID: "prd-seed-04", Name: "Espetinho de Camarão", PriceCents: 1500, Quantity: 5},
	}
	order, err := svc.UpdateOrder(ctx, order)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if _, err := svc.CloseOrder(ctx, order.ID, domain.OrderCloseRequest{Order: order, PaymentMethod: domain.PaymentMoney}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	for _, p := range products {
		if p.ID == "prd-seed-04" && p.Stock != 0 {
			t.Fatalf("expected stock floored at 0, got %d", p.Stock)
		}
	}
}

func TestCloseOrderSkipsItemsWithoutCatalogMatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Cadeira 9")

	order, err := svc.AddItem(ctx, order.ID, domain.OrderItemAddRequest{Name: "Item Avulso", PriceCents: 1000})
	if err != nil {
		t.Fatalf("add custom item failed: %v", err)
	}

	closed, err := svc.CloseOrder(ctx, order.ID, domain.OrderCloseRequest{Order: order, PaymentMethod: domain.PaymentMoney})
	if err != nil {
		t.Fatalf("close with unmatched item failed: %v", err)
	}
	if closed.TotalCents != 1000 {
		t.Fatalf("expected total 1000, got %d", closed.TotalCents)
	}
}

func TestCloseOrderRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	order := openOrder(t, svc, "Mesa 3")

	_, err := svc.CloseOrder(ctx, order.ID, domain.OrderCloseRequest{Order: order, PaymentMethod: "cheque"})
	if !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected invalid order for unknown payment method, got %v", err)
	}
}

func TestAdjustStockSetWinsOverDelta(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	ten := 10
	product, err := svc.AdjustStock(ctx, "prd-seed-08", domain.StockAdjustRequest{Set: &ten, Delta: 99})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("expected set to win, got %d", product.Stock)
	}

	product, err = svc.AdjustStock(ctx, "prd-seed-08", domain.StockAdjustRequest{Delta: -25})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected delta floored at 0, got %d", product.Stock)
	}
}

func TestLowStockProducts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	five := 5
	if _, err := svc.AdjustStock(ctx, "prd-seed-08", domain.StockAdjustRequest{Set: &five}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	low, err := svc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prd-seed-08" {
		t.Fatalf("expected only the drained product below its minimum, got %+v", low)
	}
}

func TestFindProductByBarcode(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product, err := svc.FindProductByBarcode(ctx, "7891149104401")
	if err != nil {
		t.Fatalf("barcode lookup failed: %v", err)
	}
	if product.Name != "Cerveja Lata" {
		t.Fatalf("unexpected product %q", product.Name)
	}

	if _, err := svc.FindProductByBarcode(ctx, "0000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown barcode, got %v", err)
	}
}

func TestPINLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	configured, err := svc.PINConfigured(ctx)
	if err != nil {
		t.Fatalf("pin configured check failed: %v", err)
	}
	if configured {
		t.Fatalf("expected fresh kiosk without a pin")
	}

	valid, err := svc.ValidatePIN(ctx, "7391")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if valid {
		t.Fatalf("expected validation to fail when no pin is configured")
	}

	settings, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{SecurityPIN: "7391"})
	if err != nil {
		t.Fatalf("set pin failed: %v", err)
	}
	if !settings.PINEnabled {
		t.Fatalf("expected pin enabled after set")
	}
	if settings.SecurityPIN != "" {
		t.Fatalf("expected pin hash redacted in response")
	}

	valid, err = svc.ValidatePIN(ctx, "7391")
	if err != nil || !valid {
		t.Fatalf("expected pin to validate, got valid=%v err=%v", valid, err)
	}
	valid, err = svc.ValidatePIN(ctx, "0000")
	if err != nil || valid {
		t.Fatalf("expected wrong pin to fail, got valid=%v err=%v", valid, err)
	}

	settings, err = svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{ClearPIN: true})
	if err != nil {
		t.Fatalf("clear pin failed: %v", err)
	}
	if settings.PINEnabled {
		t.Fatalf("expected pin disabled after clear")
	}
}

func TestUpdateSettingsRejectsWeakPINs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for _, pin := range []string{"1111", "1234", "4321", "12a4", "123", "73915"} {
		if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{SecurityPIN: pin}); err == nil {
			t.Fatalf("expected pin %q to be rejected", pin)
		}
	}
}

func TestUpdateSettingsPatchesFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	name := "Barraca do Zé"
	goal := int64(2500000)
	settings, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{
		KioskName:        &name,
		MonthlyGoalCents: &goal,
		Fees:             &domain.FeeConfig{Credit: 4.0, Debit: 2.0, Pix: 0.5},
	})
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if settings.KioskName != name || settings.MonthlyGoalCents != goal {
		t.Fatalf("expected patched settings, got %+v", settings.AppSettings)
	}
	if settings.Fees.Credit != 4.0 {
		t.Fatalf("expected patched fees, got %+v", settings.Fees)
	}

	empty := "  "
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{KioskName: &empty}); err == nil {
		t.Fatalf("expected blank kiosk name to be rejected")
	}
}

package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"beachkiosk/backend/internal/cache"
	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
	"beachkiosk/backend/internal/xid"
)

// Analyzer turns a financial prompt into generated commentary. A nil or
// failing analyzer never affects ledger state.
type Analyzer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	analyzer  Analyzer
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, analyzer Analyzer, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		analyzer:  analyzer,
		reportTTL: reportTTL,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	name := strings.TrimSpace(req.TableOrName)
	if name == "" {
		return domain.Order{}, store.ErrInvalidOrder
	}

	order := domain.Order{
		ID:          xid.New("ord"),
		TableOrName: name,
		Items:       []domain.OrderItem{},
		Status:      domain.OrderStatusOpen,
		CreatedAt:   time.Now().UTC(),
		SplitCount:  1,
	}
	applyTotals(&order)

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	return *created, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// UpdateOrder replaces the stored order with the caller's version, with
// totals recomputed server-side. Replaying the same payload is a no-op.
func (s *Service) UpdateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.TableOrName) == "" {
		return domain.Order{}, store.ErrInvalidOrder
	}
	for i := range order.Items {
		if order.Items[i].Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: item quantity must be at least 1", store.ErrInvalidOrder)
		}
		if order.Items[i].Status == "" {
			order.Items[i].Status = domain.ItemStatusPending
		}
	}
	order.Status = domain.OrderStatusOpen
	applyTotals(&order)

	updated, err := s.repo.ReplaceOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// AddItem merges into an existing pending, non-courtesy line for the same
// product, otherwise appends a new line with a catalog price snapshot.
// Custom items carry their own name and price.
func (s *Service) AddItem(ctx context.Context, orderID string, req domain.OrderItemAddRequest) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusClosed {
		return domain.Order{}, store.ErrOrderClosed
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var productID, name string
	var price int64
	switch {
	case strings.TrimSpace(req.ProductID) != "":
		product := findProduct(settings.Products, strings.TrimSpace(req.ProductID), "")
		if product == nil {
			return domain.Order{}, fmt.Errorf("%w: product %s", store.ErrNotFound, req.ProductID)
		}
		productID, name, price = product.ID, product.Name, product.PriceCents
	case strings.TrimSpace(req.Name) != "":
		name = strings.TrimSpace(req.Name)
		if product := findProduct(settings.Products, "", name); product != nil {
			productID, price = product.ID, product.PriceCents
		} else if req.PriceCents > 0 {
			price = req.PriceCents
		} else {
			return domain.Order{}, fmt.Errorf("%w: unknown item %q needs a price", store.ErrInvalidOrder, name)
		}
	default:
		return domain.Order{}, fmt.Errorf("%w: productId or name required", store.ErrInvalidOrder)
	}

	merged := false
	for i := range order.Items {
		item := &order.Items[i]
		if item.IsCourtesy || item.Status != domain.ItemStatusPending {
			continue
		}
		if (productID != "" && item.ProductID == productID) || (productID == "" && item.Name == name) {
			item.Quantity++
			merged = true
			break
		}
	}
	if !merged {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         xid.New("itm"),
			ProductID:  productID,
			Name:       name,
			PriceCents: price,
			Quantity:   1,
			Status:     domain.ItemStatusPending,
		})
	}
	applyTotals(order)

	updated, err := s.repo.ReplaceOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// DecrementItem lowers the line quantity, never below 1. Use RemoveItem to
// drop the line.
func (s *Service) DecrementItem(ctx context.Context, orderID string, itemID string) (domain.Order, error) {
	return s.mutateItem(ctx, orderID, itemID, func(item *domain.OrderItem) {
		if item.Quantity > 1 {
			item.Quantity--
		}
	})
}

func (s *Service) RemoveItem(ctx context.Context, orderID string, itemID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusClosed {
		return domain.Order{}, store.ErrOrderClosed
	}

	found := false
	items := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return domain.Order{}, store.ErrNotFound
	}
	order.Items = items
	applyTotals(order)

	updated, err := s.repo.ReplaceOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// ToggleCourtesy flips the courtesy flag: the line stops counting toward the
// subtotal but still leaves stock when the order closes.
func (s *Service) ToggleCourtesy(ctx context.Context, orderID string, itemID string) (domain.Order, error) {
	return s.mutateItem(ctx, orderID, itemID, func(item *domain.OrderItem) {
		item.IsCourtesy = !item.IsCourtesy
	})
}

// ToggleDelivered flips the line between pending and delivered. It is
// informational for totals, but delivered lines no longer merge on AddItem.
func (s *Service) ToggleDelivered(ctx context.Context, orderID string, itemID string) (domain.Order, error) {
	return s.mutateItem(ctx, orderID, itemID, func(item *domain.OrderItem) {
		if item.Status == domain.ItemStatusDelivered {
			item.Status = domain.ItemStatusPending
		} else {
			item.Status = domain.ItemStatusDelivered
		}
	})
}

// CloseOrder is the one conceptual transaction of the system: the caller's
// final order overwrites the stored one as closed, one income entry lands in
// the ledger for the order total, and stock leaves for every item.
func (s *Service) CloseOrder(ctx context.Context, orderID string, req domain.OrderCloseRequest) (domain.Order, error) {
	method := strings.TrimSpace(req.PaymentMethod)
	if !isValidPaymentMethod(method) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidOrder, method)
	}

	final := req.Order
	final.ID = orderID
	if strings.TrimSpace(final.TableOrName) == "" {
		existing, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		final.TableOrName = existing.TableOrName
		if len(final.Items) == 0 {
			final.Items = existing.Items
		}
	}
	final.PaymentMethod = method
	for i := range final.Items {
		if final.Items[i].Status == "" {
			final.Items[i].Status = domain.ItemStatusPending
		}
	}
	applyTotals(&final)

	entry := domain.Expense{
		ID:            xid.New("exp"),
		Category:      domain.CategoryCashIn,
		Description:   "Comanda: " + final.TableOrName,
		AmountCents:   final.TotalCents,
		Date:          localDateString(time.Now()),
		Type:          domain.EntryTypeIncome,
		PaymentMethod: method,
	}

	closed, err := s.repo.CloseOrder(ctx, final, entry)
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidateReport(ctx, entry.Date)
	return *closed, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	return s.repo.DeleteOrder(ctx, id)
}

func (s *Service) mutateItem(ctx context.Context, orderID string, itemID string, mutate func(*domain.OrderItem)) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusClosed {
		return domain.Order{}, store.ErrOrderClosed
	}

	found := false
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			mutate(&order.Items[i])
			found = true
			break
		}
	}
	if !found {
		return domain.Order{}, store.ErrNotFound
	}
	applyTotals(order)

	updated, err := s.repo.ReplaceOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Products, nil
}

// LowStockProducts lists products at or below their minimum stock level.
// Products without a configured minimum are never reported.
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, len(settings.Products))
	for _, p := range settings.Products {
		if p.MinStock > 0 && p.Stock <= p.MinStock {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Service) FindProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range settings.Products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return domain.Product{}, store.ErrNotFound
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.PriceCents < 1 || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidOrder
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.ProductOther
	}
	if !isValidProductCategory(category) {
		return domain.Product{}, fmt.Errorf("%w: unknown category %q", store.ErrInvalidOrder, category)
	}
	minStock := req.MinStock
	if minStock == 0 {
		minStock = 5
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:         xid.New("prd"),
		Name:       name,
		Category:   category,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Unit:       strings.TrimSpace(req.Unit),
		Barcode:    strings.TrimSpace(req.Barcode),
		MinStock:   minStock,
	}
	settings.Products = append(settings.Products, product)

	if _, err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	idx := -1
	for i, p := range settings.Products {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Product{}, store.ErrNotFound
	}

	updated := settings.Products[idx]
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if !isValidProductCategory(category) {
			return domain.Product{}, fmt.Errorf("%w: unknown category %q", store.ErrInvalidOrder, category)
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		stock := *req.Stock
		if stock < 0 {
			stock = 0
		}
		updated.Stock = stock
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.MinStock = *req.MinStock
	}

	settings.Products[idx] = updated
	if _, err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}

	found := false
	products := make([]domain.Product, 0, len(settings.Products))
	for _, p := range settings.Products {
		if p.ID == id {
			found = true
			continue
		}
		products = append(products, p)
	}
	if !found {
		return store.ErrNotFound
	}
	settings.Products = products

	_, err = s.repo.SaveSettings(ctx, settings)
	return err
}

// AdjustStock sets or shifts a product's stock level. The result floors at
// zero either way.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Product, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	idx := -1
	for i, p := range settings.Products {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Product{}, store.ErrNotFound
	}

	next := settings.Products[idx].Stock + req.Delta
	if req.Set != nil {
		next = *req.Set
	}
	if next < 0 {
		next = 0
	}
	settings.Products[idx].Stock = next

	if _, err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Product{}, err
	}
	return settings.Products[idx], nil
}

func (s *Service) Settings(ctx context.Context) (domain.SettingsResponse, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.SettingsResponse{}, err
	}
	return sanitizeSettings(settings), nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.SettingsResponse, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.SettingsResponse{}, err
	}

	if req.KioskName != nil {
		name := strings.TrimSpace(*req.KioskName)
		if name == "" {
			return domain.SettingsResponse{}, fmt.Errorf("%w: kiosk name required", store.ErrInvalidOrder)
		}
		settings.KioskName = name
	}
	if req.OwnerName != nil {
		settings.OwnerName = strings.TrimSpace(*req.OwnerName)
	}
	if req.ContactPhone != nil {
		settings.ContactPhone = strings.TrimSpace(*req.ContactPhone)
	}
	if req.LogoURL != nil {
		settings.LogoURL = strings.TrimSpace(*req.LogoURL)
	}
	if req.MonthlyGoalCents != nil {
		if *req.MonthlyGoalCents < 0 {
			return domain.SettingsResponse{}, fmt.Errorf("%w: monthly goal must not be negative", store.ErrInvalidOrder)
		}
		settings.MonthlyGoalCents = *req.MonthlyGoalCents
	}
	if req.Fees != nil {
		if req.Fees.Credit < 0 || req.Fees.Debit < 0 || req.Fees.Pix < 0 {
			return domain.SettingsResponse{}, fmt.Errorf("%w: fee percentages must not be negative", store.ErrInvalidOrder)
		}
		settings.Fees = *req.Fees
	}

	switch {
	case req.ClearPIN:
		settings.SecurityPIN = ""
	case strings.TrimSpace(req.SecurityPIN) != "":
		pin := strings.TrimSpace(req.SecurityPIN)
		if err := validatePIN(pin); err != nil {
			return domain.SettingsResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidOrder, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return domain.SettingsResponse{}, err
		}
		settings.SecurityPIN = string(hash)
	}

	saved, err := s.repo.SaveSettings(ctx, settings)
	if err != nil {
		return domain.SettingsResponse{}, err
	}
	return sanitizeSettings(saved), nil
}

// ValidatePIN compares a plain PIN against the stored hash. Returns false
// when no PIN is configured.
func (s *Service) ValidatePIN(ctx context.Context, pin string) (bool, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	if settings.SecurityPIN == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(settings.SecurityPIN), []byte(strings.TrimSpace(pin))) == nil, nil
}

func (s *Service) PINConfigured(ctx context.Context) (bool, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	return settings.SecurityPIN != "", nil
}

// applyTotals normalizes the money fields in place: discount coerced to its
// absolute value, split count floored at 1, courtesy items contributing zero,
// and the total clamped at zero.
func applyTotals(order *domain.Order) {
	if order.DiscountCents < 0 {
		order.DiscountCents = -order.DiscountCents
	}
	if order.SplitCount < 1 {
		order.SplitCount = 1
	}
	totals := ComputeTotals(*order)
	order.SubtotalCents = totals.SubtotalCents
	order.TotalCents = totals.TotalCents
}

// ComputeTotals derives the money view of an order without mutating it.
func ComputeTotals(order domain.Order) domain.OrderTotals {
	var subtotal int64
	for _, item := range order.Items {
		if item.IsCourtesy {
			continue
		}
		subtotal += item.PriceCents * int64(item.Quantity)
	}

	var fee int64
	if order.ServiceFee {
		fee = int64(math.Round(float64(subtotal) * 0.10))
	}

	discount := order.DiscountCents
	if discount < 0 {
		discount = -discount
	}

	total := subtotal + fee - discount
	if total < 0 {
		total = 0
	}

	split := int64(order.SplitCount)
	if split < 1 {
		split = 1
	}

	return domain.OrderTotals{
		SubtotalCents:       subtotal,
		ServiceFeeCents:     fee,
		DiscountCents:       discount,
		TotalCents:          total,
		SplitCents:          total / split,
		SplitRemainderCents: total % split,
	}
}

func findProduct(products []domain.Product, id string, name string) *domain.Product {
	if id != "" {
		for i := range products {
			if products[i].ID == id {
				return &products[i]
			}
		}
		return nil
	}
	for i := range products {
		if products[i].Name == name {
			return &products[i]
		}
	}
	return nil
}

func sanitizeSettings(settings domain.AppSettings) domain.SettingsResponse {
	enabled := settings.SecurityPIN != ""
	settings.SecurityPIN = ""
	if settings.Products == nil {
		settings.Products = []domain.Product{}
	}
	return domain.SettingsResponse{AppSettings: settings, PINEnabled: enabled}
}

func isValidProductCategory(category string) bool {
	for _, c := range domain.ProductCategories() {
		if c == category {
			return true
		}
	}
	return false
}

func isValidPaymentMethod(method string) bool {
	for _, m := range domain.PaymentMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// validatePIN requires exactly 4 digits and rejects all-same-digit and
// sequential PINs.
func validatePIN(pin string) error {
	if len(pin) != 4 {
		return fmt.Errorf("pin must be exactly 4 digits")
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return fmt.Errorf("pin must contain only digits")
		}
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit pin not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential pin not allowed")
	}

	return nil
}

// localDateString follows the ledger convention: the operator's wall-clock
// date, not UTC.
func localDateString(at time.Time) string {
	return at.Local().Format("2006-01-02")
}

func (s *Service) invalidateReport(ctx context.Context, date string) {
	parts := strings.SplitN(date, "-", 3)
	if len(parts) < 2 {
		return
	}
	if err := s.reports.Invalidate(ctx, "report:"+parts[0]+"-"+parts[1]); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache for %s: %v", date, err)
	}
}

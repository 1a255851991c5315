package domain

import "time"

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"priceCents"`
	Stock      int    `json:"stock"`
	Unit       string `json:"unit,omitempty"`
	Barcode    string `json:"barcode,omitempty"`
	MinStock   int    `json:"minStock,omitempty"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	PriceCents int64  `json:"priceCents"`
	Stock      int    `json:"stock"`
	Unit       string `json:"unit,omitempty"`
	Barcode    string `json:"barcode,omitempty"`
	MinStock   int    `json:"minStock,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"priceCents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	Barcode    *string `json:"barcode,omitempty"`
	MinStock   *int    `json:"minStock,omitempty"`
}

type StockAdjustRequest struct {
	// Set replaces the stock level outright; Delta adds to it. When Set is
	// non-nil it wins. Either way the result floors at zero.
	Set   *int `json:"set,omitempty"`
	Delta int  `json:"delta,omitempty"`
}

type OrderItem struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId,omitempty"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Quantity   int    `json:"quantity"`
	IsCourtesy bool   `json:"isCourtesy"`
	Status     string `json:"status"`
}

type Order struct {
	ID            string      `json:"id"`
	TableOrName   string      `json:"tableOrName"`
	Items         []OrderItem `json:"items"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	ClosedAt      *time.Time  `json:"closedAt,omitempty"`
	DiscountCents int64       `json:"discountCents"`
	ServiceFee    bool        `json:"serviceFee"`
	SplitCount    int         `json:"splitCount"`
	PaymentMethod string      `json:"paymentMethod,omitempty"`
	SubtotalCents int64       `json:"subtotalCents"`
	TotalCents    int64       `json:"totalCents"`
}

type OrderCreateRequest struct {
	TableOrName string `json:"tableOrName"`
}

type OrderItemAddRequest struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name,omitempty"`
	// PriceCents is only honored for custom items with no catalog match.
	PriceCents int64 `json:"priceCents,omitempty"`
}

type OrderCloseRequest struct {
	Order         Order  `json:"order"`
	PaymentMethod string `json:"paymentMethod"`
}

// OrderTotals is the derived money view of an order. SplitCents carries the
// per-person share; SplitRemainderCents is the leftover centavos when the
// total does not divide evenly.
type OrderTotals struct {
	SubtotalCents       int64 `json:"subtotalCents"`
	ServiceFeeCents     int64 `json:"serviceFeeCents"`
	DiscountCents       int64 `json:"discountCents"`
	TotalCents          int64 `json:"totalCents"`
	SplitCents          int64 `json:"splitCents"`
	SplitRemainderCents int64 `json:"splitRemainderCents"`
}

type Expense struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amountCents"`
	Date          string `json:"date"`
	Type          string `json:"type"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

type FeeConfig struct {
	Credit float64 `json:"credit"`
	Debit  float64 `json:"debit"`
	Pix    float64 `json:"pix"`
}

type AppSettings struct {
	KioskName        string    `json:"kioskName"`
	OwnerName        string    `json:"ownerName,omitempty"`
	ContactPhone     string    `json:"contactPhone,omitempty"`
	LogoURL          string    `json:"logoUrl,omitempty"`
	MonthlyGoalCents int64     `json:"monthlyGoalCents"`
	Fees             FeeConfig `json:"fees"`
	// SecurityPIN holds a bcrypt hash at rest, never the plain PIN.
	SecurityPIN string    `json:"securityPin,omitempty"`
	Products    []Product `json:"products"`
}

type SettingsUpdateRequest struct {
	KioskName        *string    `json:"kioskName,omitempty"`
	OwnerName        *string    `json:"ownerName,omitempty"`
	ContactPhone     *string    `json:"contactPhone,omitempty"`
	LogoURL          *string    `json:"logoUrl,omitempty"`
	MonthlyGoalCents *int64     `json:"monthlyGoalCents,omitempty"`
	Fees             *FeeConfig `json:"fees,omitempty"`
	// SecurityPIN is write-only: a 4-digit value sets a new PIN, an empty
	// string is ignored, ClearPIN removes the PIN entirely.
	SecurityPIN string `json:"securityPin,omitempty"`
	ClearPIN    bool   `json:"clearPin,omitempty"`
}

// SettingsResponse is the public view of settings: the PIN hash is redacted
// and replaced by a configured/not-configured flag.
type SettingsResponse struct {
	AppSettings
	PINEnabled bool `json:"pinEnabled"`
}

type PINValidateRequest struct {
	PIN string `json:"pin"`
}

type PINValidateResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

type DailyFlow struct {
	Date         string `json:"date"`
	IncomeCents  int64  `json:"incomeCents"`
	ExpenseCents int64  `json:"expenseCents"`
}

type PaymentBreakdown struct {
	PaymentMethod string `json:"paymentMethod"`
	Entries       int64  `json:"entries"`
	TotalCents    int64  `json:"totalCents"`
}

type MonthlyReport struct {
	Year               int                `json:"year"`
	Month              int                `json:"month"`
	TotalIncomeCents   int64              `json:"totalIncomeCents"`
	TotalExpensesCents int64              `json:"totalExpensesCents"`
	BalanceCents       int64              `json:"balanceCents"`
	EstimatedFeesCents int64              `json:"estimatedFeesCents"`
	MonthlyGoalCents   int64              `json:"monthlyGoalCents"`
	GoalProgress       float64            `json:"goalProgress"`
	ByCategory         map[string]int64   `json:"byCategory"`
	ByPayment          []PaymentBreakdown `json:"byPayment"`
	DailyFlow          []DailyFlow        `json:"dailyFlow"`
	Entries            int                `json:"entries"`
}

type AnalysisRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type AnalysisResponse struct {
	Analysis    string `json:"analysis"`
	GeneratedAt string `json:"generatedAt"`
}

// BackupPayload is the wholesale export/import shape. Orders are optional in
// older backups, so imports tolerate their absence.
type BackupPayload struct {
	Settings *AppSettings `json:"settings"`
	Expenses []Expense    `json:"expenses"`
	Orders   []Order      `json:"orders,omitempty"`
}

const (
	OrderStatusOpen   = "open"
	OrderStatusClosed = "closed"
)

const (
	ItemStatusPending   = "pending"
	ItemStatusDelivered = "delivered"
)

const (
	ProductFood  = "food"
	ProductDrink = "drink"
	ProductOther = "other"
)

const (
	EntryTypeIncome  = "income"
	EntryTypeExpense = "expense"
)

const (
	PaymentMoney      = "Dinheiro"
	PaymentPix        = "Pix"
	PaymentCreditCard = "Cartão de Crédito"
	PaymentDebitCard  = "Cartão de Débito"
)

const (
	CategoryStaffPayment = "Pagamento de Funcionário"
	CategoryRestock      = "Reposição de Estoque"
	CategoryFuel         = "Combustível do Veículo"
	CategoryWaterBill    = "Conta de Água"
	CategoryEnergyBill   = "Conta de Energia"
	CategoryGasBill      = "Conta de Gás"
	CategoryCashIn       = "Entrada de Dinheiro"
	CategoryCashOut      = "Saída de Dinheiro (Outros)"
)

const (
	UnitPiece = "un"
	UnitKilo  = "kg"
	UnitLiter = "L"
)

func ProductCategories() []string {
	return []string{ProductFood, ProductDrink, ProductOther}
}

func PaymentMethods() []string {
	return []string{PaymentMoney, PaymentPix, PaymentCreditCard, PaymentDebitCard}
}

func ExpenseCategories() []string {
	return []string{
		CategoryStaffPayment,
		CategoryRestock,
		CategoryFuel,
		CategoryWaterBill,
		CategoryEnergyBill,
		CategoryGasBill,
		CategoryCashIn,
		CategoryCashOut,
	}
}

// DefaultSettings returns the out-of-the-box configuration for a fresh kiosk.
func DefaultSettings() AppSettings {
	return AppSettings{
		KioskName:        "Estrela do Mar",
		MonthlyGoalCents: 1000000,
		Fees: FeeConfig{
			Credit: 3.5,
			Debit:  1.5,
			Pix:    0,
		},
		Products: []Product{},
	}
}

package store

import (
	"context"
	"errors"

	"beachkiosk/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidOrder   = errors.New("invalid order")
	ErrOrderClosed    = errors.New("order already closed")
	ErrInvalidExpense = errors.New("invalid expense")
	ErrInvalidBackup  = errors.New("invalid backup payload")
)

// Repository persists the three kiosk collections: orders, the expense
// ledger, and settings (which embeds the product catalog). Every mutation
// rewrites the affected collection as a whole; reads always return the
// current full state.
type Repository interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	ReplaceOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	// CloseOrder atomically overwrites the order as closed, appends the
	// income ledger entry, and decrements catalog stock for every item.
	CloseOrder(ctx context.Context, order domain.Order, entry domain.Expense) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ReplaceAllOrders(ctx context.Context, orders []domain.Order) error

	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	ListExpensesByMonth(ctx context.Context, year int, month int) ([]domain.Expense, error)
	AppendExpense(ctx context.Context, entry domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ReplaceAllExpenses(ctx context.Context, entries []domain.Expense) error

	GetSettings(ctx context.Context) (domain.AppSettings, error)
	SaveSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error)
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
	"beachkiosk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			table_or_name TEXT NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			service_fee BOOLEAN NOT NULL DEFAULT false,
			split_count INT NOT NULL DEFAULT 1,
			payment_method TEXT NOT NULL DEFAULT '',
			subtotal_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			amount_cents BIGINT NOT NULL,
			date TEXT NOT NULL,
			type TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY CHECK (id = 1),
			payload JSONB NOT NULL
		);
	`)
	return err
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_or_name, items, status, created_at, closed_at,
		       discount_cents, service_fee, split_count, payment_method,
		       subtotal_cents, total_cents
		FROM orders
		ORDER BY (status = 'open') DESC, created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_or_name, items, status, created_at, closed_at,
		       discount_cents, service_fee, split_count, payment_method,
		       subtotal_cents, total_cents
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.TableOrName) == "" {
		return nil, store.ErrInvalidOrder
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
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

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, table_or_name, items, status, created_at, closed_at,
		                    discount_cents, service_fee, split_count, payment_method,
		                    subtotal_cents, total_cents)
		VALUES ($1,$2,$3,$4,$5,NULL,$6,$7,$8,$9,$10,$11)
	`, order.ID, order.TableOrName, items, order.Status, order.CreatedAt,
		order.DiscountCents, order.ServiceFee, order.SplitCount, order.PaymentMethod,
		order.SubtotalCents, order.TotalCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) ReplaceOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidOrder
	}

	existing, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status == domain.OrderStatusClosed {
		return nil, store.ErrOrderClosed
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = existing.CreatedAt
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET table_or_name = $2, items = $3, status = $4, created_at = $5,
		    discount_cents = $6, service_fee = $7, split_count = $8,
		    payment_method = $9, subtotal_cents = $10, total_cents = $11
		WHERE id = $1 AND status = 'open'
	`, order.ID, order.TableOrName, items, order.Status, order.CreatedAt,
		order.DiscountCents, order.ServiceFee, order.SplitCount, order.PaymentMethod,
		order.SubtotalCents, order.TotalCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrOrderClosed
	}

	updated := order
	return &updated, nil
}

// CloseOrder runs the whole closing as one serializable transaction: the
// final order overwrites the stored row, the income entry is appended, and
// catalog stock is decremented for every item.
func (s *Store) CloseOrder(ctx context.Context, order domain.Order, entry domain.Expense) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidOrder
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT status, created_at FROM orders WHERE id = $1 FOR UPDATE
	`, order.ID).Scan(&status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.OrderStatusClosed {
		return nil, store.ErrOrderClosed
	}

	order.Status = domain.OrderStatusClosed
	if order.ClosedAt == nil {
		now := time.Now().UTC()
		order.ClosedAt = &now
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = createdAt.UTC()
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET table_or_name = $2, items = $3, status = $4, created_at = $5, closed_at = $6,
		    discount_cents = $7, service_fee = $8, split_count = $9,
		    payment_method = $10, subtotal_cents = $11, total_cents = $12
		WHERE id = $1
	`, order.ID, order.TableOrName, items, order.Status, order.CreatedAt, order.ClosedAt,
		order.DiscountCents, order.ServiceFee, order.SplitCount, order.PaymentMethod,
		order.SubtotalCents, order.TotalCents)
	if err != nil {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = xid.New("exp")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, category, description, amount_cents, date, type, payment_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Category, entry.Description, entry.AmountCents, entry.Date, entry.Type, entry.PaymentMethod)
	if err != nil {
		return nil, err
	}

	settings, err := getSettingsTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, item := range order.Items {
		idx := findProductIndex(settings.Products, item.ProductID, item.Name)
		if idx < 0 {
			continue
		}
		next := settings.Products[idx].Stock - item.Quantity
		if next < 0 {
			next = 0
		}
		settings.Products[idx].Stock = next
	}
	if err := saveSettingsTx(ctx, tx, settings); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	closed := order
	return &closed, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReplaceAllOrders(ctx context.Context, orders []domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return err
	}
	for _, order := range orders {
		if order.ID == "" {
			order.ID = xid.New("ord")
		}
		if order.CreatedAt.IsZero() {
			order.CreatedAt = time.Now().UTC()
		}
		items, err := json.Marshal(order.Items)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, table_or_name, items, status, created_at, closed_at,
			                    discount_cents, service_fee, split_count, payment_method,
			                    subtotal_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, order.ID, order.TableOrName, items, order.Status, order.CreatedAt, order.ClosedAt,
			order.DiscountCents, order.ServiceFee, order.SplitCount, order.PaymentMethod,
			order.SubtotalCents, order.TotalCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT id, category, description, amount_cents, date, type, payment_method
		FROM expenses
		ORDER BY date DESC, id DESC
	`)
}

func (s *Store) ListExpensesByMonth(ctx context.Context, year int, month int) ([]domain.Expense, error) {
	// Date is stored as text; match the year and month fields numerically,
	// the same way the in-memory store splits the string.
	return s.queryExpenses(ctx, `
		SELECT id, category, description, amount_cents, date, type, payment_method
		FROM expenses
		WHERE split_part(date, '-', 1) ~ '^[0-9]+$'
		  AND split_part(date, '-', 2) ~ '^[0-9]+$'
		  AND split_part(date, '-', 1)::int = $1
		  AND split_part(date, '-', 2)::int = $2
		ORDER BY date DESC, id DESC
	`, year, month)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Expense, 0, 128)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Category, &e.Description, &e.AmountCents, &e.Date, &e.Type, &e.PaymentMethod); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) AppendExpense(ctx context.Context, entry domain.Expense) (*domain.Expense, error) {
	if entry.AmountCents < 0 || entry.Category == "" {
		return nil, store.ErrInvalidExpense
	}
	if entry.ID == "" {
		entry.ID = xid.New("exp")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, category, description, amount_cents, date, type, payment_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Category, entry.Description, entry.AmountCents, entry.Date, entry.Type, entry.PaymentMethod)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidExpense
		}
		return nil, err
	}

	created := entry
	return &created, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReplaceAllExpenses(ctx context.Context, entries []domain.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = xid.New("exp")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, category, description, amount_cents, date, type, payment_method)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, entry.ID, entry.Category, entry.Description, entry.AmountCents, entry.Date, entry.Type, entry.PaymentMethod)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM settings WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		return domain.AppSettings{}, err
	}

	var settings domain.AppSettings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return domain.AppSettings{}, err
	}
	if settings.Products == nil {
		settings.Products = []domain.Product{}
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	if settings.Products == nil {
		settings.Products = []domain.Product{}
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return domain.AppSettings{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, payload) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
	`, payload)
	if err != nil {
		return domain.AppSettings{}, err
	}
	return settings, nil
}

func getSettingsTx(ctx context.Context, tx *sql.Tx) (domain.AppSettings, error) {
	var payload []byte
	err := tx.QueryRowContext(ctx, `SELECT payload FROM settings WHERE id = 1 FOR UPDATE`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		return domain.AppSettings{}, err
	}

	var settings domain.AppSettings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return domain.AppSettings{}, err
	}
	if settings.Products == nil {
		settings.Products = []domain.Product{}
	}
	return settings, nil
}

func saveSettingsTx(ctx context.Context, tx *sql.Tx, settings domain.AppSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, payload) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload
	`, payload)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var items []byte
	var closedAt sql.NullTime
	err := row.Scan(&order.ID, &order.TableOrName, &items, &order.Status, &order.CreatedAt, &closedAt,
		&order.DiscountCents, &order.ServiceFee, &order.SplitCount, &order.PaymentMethod,
		&order.SubtotalCents, &order.TotalCents)
	if err != nil {
		return domain.Order{}, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		order.ClosedAt = &at
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return domain.Order{}, err
	}
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}
	return order, nil
}

func findProductIndex(products []domain.Product, productID string, name string) int {
	if productID != "" {
		for i, p := range products {
			if p.ID == productID {
				return i
			}
		}
	}
	for i, p := range products {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

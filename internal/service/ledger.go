package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"beachkiosk/backend/internal/domain"
	"beachkiosk/backend/internal/store"
	"beachkiosk/backend/internal/xid"
)

func (s *Service) AddExpense(ctx context.Context, entry domain.Expense) (domain.Expense, error) {
	entry.Category = strings.TrimSpace(entry.Category)
	entry.Description = strings.TrimSpace(entry.Description)
	if !isValidCategory(entry.Category) {
		return domain.Expense{}, fmt.Errorf("%w: unknown category %q", store.ErrInvalidExpense, entry.Category)
	}
	if entry.AmountCents <= 0 {
		return domain.Expense{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidExpense)
	}
	if entry.Type == "" {
		entry.Type = domain.EntryTypeExpense
	}
	if entry.Type != domain.EntryTypeIncome && entry.Type != domain.EntryTypeExpense {
		return domain.Expense{}, fmt.Errorf("%w: type must be income or expense", store.ErrInvalidExpense)
	}
	if entry.PaymentMethod != "" && !isValidPaymentMethod(entry.PaymentMethod) {
		return domain.Expense{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidExpense, entry.PaymentMethod)
	}
	if entry.Date == "" {
		entry.Date = localDateString(time.Now())
	}
	if entry.ID == "" {
		entry.ID = xid.New("exp")
	}

	created, err := s.repo.AppendExpense(ctx, entry)
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidateReport(ctx, created.Date)
	return *created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	entries, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return err
	}
	date := ""
	for _, e := range entries {
		if e.ID == id {
			date = e.Date
			break
		}
	}

	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	if date != "" {
		s.invalidateReport(ctx, date)
	}
	return nil
}

func (s *Service) MonthlyExpenses(ctx context.Context, year int, month int) ([]domain.Expense, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	return s.repo.ListExpensesByMonth(ctx, year, month)
}

// MonthlyReport aggregates a month of ledger entries: totals, balance,
// per-category expense sums, per-day flow, payment breakdown, and the card
// fees estimated from the configured percentages.
func (s *Service) MonthlyReport(ctx context.Context, year int, month int) (domain.MonthlyReport, error) {
	if err := validateMonth(year, month); err != nil {
		return domain.MonthlyReport{}, err
	}

	key := reportKey(year, month)
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed for %s: %v", key, err)
	}

	entries, err := s.repo.ListExpensesByMonth(ctx, year, month)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.MonthlyReport{}, err
	}

	report := buildMonthlyReport(year, month, entries, settings)

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed for %s: %v", key, err)
	}
	return report, nil
}

// MonthlyLedgerCSV renders a month of entries as CSV with amounts in decimal
// reais.
func (s *Service) MonthlyLedgerCSV(ctx context.Context, year int, month int) (string, error) {
	entries, err := s.MonthlyExpenses(ctx, year, month)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"date", "category", "description", "paymentMethod", "type", "amount"}); err != nil {
		return "", err
	}
	for _, e := range entries {
		record := []string{e.Date, e.Category, e.Description, e.PaymentMethod, e.Type, centsToAmount(e.AmountCents)}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// AnalyzeMonth asks the configured analyzer for commentary on the month's
// numbers. It reads state only; a failure here changes nothing.
func (s *Service) AnalyzeMonth(ctx context.Context, year int, month int) (domain.AnalysisResponse, error) {
	report, err := s.MonthlyReport(ctx, year, month)
	if err != nil {
		return domain.AnalysisResponse{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.AnalysisResponse{}, err
	}
	if s.analyzer == nil {
		return domain.AnalysisResponse{}, fmt.Errorf("no analyzer configured")
	}

	text, err := s.analyzer.Generate(ctx, buildAnalysisPrompt(report, settings))
	if err != nil {
		return domain.AnalysisResponse{}, err
	}

	return domain.AnalysisResponse{
		Analysis:    text,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ExportBackup returns the full dataset in one payload.
func (s *Service) ExportBackup(ctx context.Context) (domain.BackupPayload, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.BackupPayload{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return domain.BackupPayload{}, err
	}
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return domain.BackupPayload{}, err
	}

	return domain.BackupPayload{
		Settings: &settings,
		Expenses: expenses,
		Orders:   orders,
	}, nil
}

// ImportBackup replaces every collection wholesale after a minimal shape
// check. Orders are optional; older backups did not carry them.
func (s *Service) ImportBackup(ctx context.Context, payload domain.BackupPayload) error {
	if payload.Settings == nil || payload.Expenses == nil {
		return store.ErrInvalidBackup
	}
	if strings.TrimSpace(payload.Settings.KioskName) == "" {
		return fmt.Errorf("%w: settings missing kiosk name", store.ErrInvalidBackup)
	}

	if _, err := s.repo.SaveSettings(ctx, *payload.Settings); err != nil {
		return err
	}
	if err := s.repo.ReplaceAllExpenses(ctx, payload.Expenses); err != nil {
		return err
	}
	if payload.Orders != nil {
		if err := s.repo.ReplaceAllOrders(ctx, payload.Orders); err != nil {
			return err
		}
	}

	s.invalidateReport(ctx, localDateString(time.Now()))
	return nil
}

// ClearLedger wipes expenses and orders but keeps settings and the catalog.
func (s *Service) ClearLedger(ctx context.Context) error {
	if err := s.repo.ReplaceAllExpenses(ctx, []domain.Expense{}); err != nil {
		return err
	}
	if err := s.repo.ReplaceAllOrders(ctx, []domain.Order{}); err != nil {
		return err
	}
	s.invalidateReport(ctx, localDateString(time.Now()))
	return nil
}

func buildMonthlyReport(year int, month int, entries []domain.Expense, settings domain.AppSettings) domain.MonthlyReport {
	report := domain.MonthlyReport{
		Year:             year,
		Month:            month,
		MonthlyGoalCents: settings.MonthlyGoalCents,
		ByCategory:       make(map[string]int64),
		ByPayment:        []domain.PaymentBreakdown{},
		DailyFlow:        []domain.DailyFlow{},
		Entries:          len(entries),
	}

	byPayment := make(map[string]*domain.PaymentBreakdown)
	byDay := make(map[string]*domain.DailyFlow)

	for _, e := range entries {
		day, ok := byDay[e.Date]
		if !ok {
			day = &domain.DailyFlow{Date: e.Date}
			byDay[e.Date] = day
		}

		if e.Type == domain.EntryTypeIncome {
			report.TotalIncomeCents += e.AmountCents
			day.IncomeCents += e.AmountCents
			report.EstimatedFeesCents += estimateFee(e, settings.Fees)

			method := e.PaymentMethod
			if method == "" {
				method = domain.PaymentMoney
			}
			breakdown, ok := byPayment[method]
			if !ok {
				breakdown = &domain.PaymentBreakdown{PaymentMethod: method}
				byPayment[method] = breakdown
			}
			breakdown.Entries++
			breakdown.TotalCents += e.AmountCents
			continue
		}

		report.TotalExpensesCents += e.AmountCents
		day.ExpenseCents += e.AmountCents
		report.ByCategory[e.Category] += e.AmountCents
	}

	report.BalanceCents = report.TotalIncomeCents - report.TotalExpensesCents
	if report.MonthlyGoalCents > 0 {
		report.GoalProgress = float64(report.BalanceCents) / float64(report.MonthlyGoalCents)
	}

	for _, b := range byPayment {
		report.ByPayment = append(report.ByPayment, *b)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentBreakdown) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	for _, d := range byDay {
		report.DailyFlow = append(report.DailyFlow, *d)
	}
	slices.SortFunc(report.DailyFlow, func(a, b domain.DailyFlow) int {
		return cmpString(a.Date, b.Date)
	})

	return report
}

// estimateFee applies the configured percentage for card and pix income.
// Cash carries no fee.
func estimateFee(entry domain.Expense, fees domain.FeeConfig) int64 {
	var pct float64
	switch entry.PaymentMethod {
	case domain.PaymentCreditCard:
		pct = fees.Credit
	case domain.PaymentDebitCard:
		pct = fees.Debit
	case domain.PaymentPix:
		pct = fees.Pix
	default:
		return 0
	}
	return int64(math.Round(float64(entry.AmountCents) * pct / 100))
}

func buildAnalysisPrompt(report domain.MonthlyReport, settings domain.AppSettings) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Você é um assistente financeiro do quiosque %q. Analise o mês %02d/%d e responda em português, em markdown, com no máximo 4 parágrafos curtos.\n\n", settings.KioskName, report.Month, report.Year)
	fmt.Fprintf(&sb, "Receita total: R$ %s\n", centsToAmount(report.TotalIncomeCents))
	fmt.Fprintf(&sb, "Despesa total: R$ %s\n", centsToAmount(report.TotalExpensesCents))
	fmt.Fprintf(&sb, "Saldo em caixa: R$ %s\n", centsToAmount(report.BalanceCents))
	fmt.Fprintf(&sb, "Taxas estimadas de cartão/pix: R$ %s\n", centsToAmount(report.EstimatedFeesCents))
	fmt.Fprintf(&sb, "Meta mensal: R$ %s\n", centsToAmount(report.MonthlyGoalCents))

	if len(report.ByCategory) > 0 {
		sb.WriteString("\nDespesas por categoria:\n")
		categories := make([]string, 0, len(report.ByCategory))
		for category := range report.ByCategory {
			categories = append(categories, category)
		}
		slices.Sort(categories)
		for _, category := range categories {
			fmt.Fprintf(&sb, "- %s: R$ %s\n", category, centsToAmount(report.ByCategory[category]))
		}
	}

	if len(report.DailyFlow) > 0 {
		sb.WriteString("\nFluxo diário (entrada/saída):\n")
		for _, day := range report.DailyFlow {
			fmt.Fprintf(&sb, "- %s: +R$ %s / -R$ %s\n", day.Date, centsToAmount(day.IncomeCents), centsToAmount(day.ExpenseCents))
		}
	}

	sb.WriteString("\nDestaque tendências, pontos de atenção e uma sugestão prática para o próximo mês.")
	return sb.String()
}

func isValidCategory(category string) bool {
	for _, c := range domain.ExpenseCategories() {
		if c == category {
			return true
		}
	}
	return false
}

func validateMonth(year int, month int) error {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return fmt.Errorf("%w: invalid year/month", store.ErrInvalidExpense)
	}
	return nil
}

func reportKey(year int, month int) string {
	return fmt.Sprintf("report:%04d-%02d", year, month)
}

// centsToAmount formats centavos as a decimal amount with two places.
func centsToAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
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

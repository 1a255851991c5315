package cache

import (
	"context"
	"time"

	"beachkiosk/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.MonthlyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.MonthlyReport, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.MonthlyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.MonthlyReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

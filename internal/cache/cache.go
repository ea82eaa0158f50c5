package cache

import (
	"context"
	"time"

	"tokoku/internal/domain"
)

// DashboardCache holds computed dashboard KPI reports keyed by store so the
// aggregate queries are not rerun on every dashboard load.
type DashboardCache interface {
	GetKPI(ctx context.Context, storeID string) (*domain.KPIReport, bool, error)
	SetKPI(ctx context.Context, storeID string, report *domain.KPIReport, ttl time.Duration) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) GetKPI(_ context.Context, _ string) (*domain.KPIReport, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) SetKPI(_ context.Context, _ string, _ *domain.KPIReport, _ time.Duration) error {
	return nil
}

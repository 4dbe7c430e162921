package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// Estimator computes the occupancy of a store inside a window.
type Estimator interface {
	Estimate(ctx context.Context, storeID string, start, end time.Time) (monitoring.Occupancy, error)
}

// StoreReportBuilder produces one report row per store from the three standard windows.
type StoreReportBuilder struct {
	estimator Estimator
}

// NewStoreReportBuilder constructs a builder.
func NewStoreReportBuilder(estimator Estimator) (*StoreReportBuilder, error) {
	if estimator == nil {
		return nil, errors.New("store report builder: nil estimator")
	}
	return &StoreReportBuilder{estimator: estimator}, nil
}

// Build computes the last hour, day and week estimates ending at now.
func (b *StoreReportBuilder) Build(ctx context.Context, storeID string, now time.Time) (monitoring.ReportRow, error) {
	hour, err := b.estimator.Estimate(ctx, storeID, now.Add(-monitoring.WindowHour), now)
	if err != nil {
		return monitoring.ReportRow{}, fmt.Errorf("last hour: %w", err)
	}
	day, err := b.estimator.Estimate(ctx, storeID, now.Add(-monitoring.WindowDay), now)
	if err != nil {
		return monitoring.ReportRow{}, fmt.Errorf("last day: %w", err)
	}
	week, err := b.estimator.Estimate(ctx, storeID, now.Add(-monitoring.WindowWeek), now)
	if err != nil {
		return monitoring.ReportRow{}, fmt.Errorf("last week: %w", err)
	}
	return monitoring.NewReportRow(storeID, hour, day, week), nil
}

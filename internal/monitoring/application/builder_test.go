package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monitoring "store-monitoring/internal/monitoring/domain"
)

type windowEstimator struct {
	windows []time.Duration
	failOn  time.Duration
}

func (e *windowEstimator) Estimate(ctx context.Context, storeID string, start, end time.Time) (monitoring.Occupancy, error) {
	window := end.Sub(start)
	e.windows = append(e.windows, window)
	if window == e.failOn {
		return monitoring.Occupancy{}, errors.New("boom")
	}
	minutes := int(window / time.Minute)
	return monitoring.Occupancy{Uptime: minutes / 2, Downtime: minutes - minutes/2}, nil
}

func TestStoreReportBuilderBuild(t *testing.T) {
	estimator := &windowEstimator{}
	builder, err := NewStoreReportBuilder(estimator)
	require.NoError(t, err)

	row, err := builder.Build(context.Background(), "s1", reportNow)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{monitoring.WindowHour, monitoring.WindowDay, monitoring.WindowWeek}, estimator.windows)
	assert.Equal(t, "s1", row.StoreID)
	assert.Equal(t, 30, row.UptimeLastHour)
	assert.Equal(t, 30, row.DowntimeLastHour)
	assert.InDelta(t, 12.0, row.UptimeLastDay, 1e-9)
	assert.InDelta(t, 84.0, row.DowntimeLastWeek, 1e-9)
}

func TestStoreReportBuilderWrapsWindowErrors(t *testing.T) {
	builder, err := NewStoreReportBuilder(&windowEstimator{failOn: monitoring.WindowDay})
	require.NoError(t, err)

	_, err = builder.Build(context.Background(), "s1", reportNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last day")
}

func TestStoreReportBuilderRequiresEstimator(t *testing.T) {
	_, err := NewStoreReportBuilder(nil)
	require.Error(t, err)
}

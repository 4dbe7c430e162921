package application

import (
	"context"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// StoreDataReader is the read-only data access used while computing reports.
// Lookups that miss return nil/empty values, not errors.
type StoreDataReader interface {
	LatestObservationAtOrBefore(ctx context.Context, storeID string, at time.Time) (*monitoring.Observation, error)
	// ObservationsInRange returns observations strictly inside (start, end), ascending.
	ObservationsInRange(ctx context.Context, storeID string, start, end time.Time) ([]monitoring.Observation, error)
	BusinessHours(ctx context.Context, storeID string, dayOfWeek int) (*monitoring.BusinessHours, error)
	Timezone(ctx context.Context, storeID string) (string, error)
	DistinctStoreIDs(ctx context.Context) ([]string, error)
	MaxObservationTimestamp(ctx context.Context) (*time.Time, error)
}

// JobRepository persists report jobs.
type JobRepository interface {
	Create(ctx context.Context, job *monitoring.ReportJob) error
	// Get returns monitoring.ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id string) (*monitoring.ReportJob, error)
	// Update stores progress fields of a running job.
	Update(ctx context.Context, job *monitoring.ReportJob) error
	// Finish stores the terminal state; monitoring.ErrJobFinished if already terminal.
	Finish(ctx context.Context, job *monitoring.ReportJob) error
	ListRunning(ctx context.Context) ([]*monitoring.ReportJob, error)
}

// ArtifactStore persists the rows of a finished report and returns its handle.
type ArtifactStore interface {
	Save(ctx context.Context, reportID string, rows []monitoring.ReportRow) (string, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// ReportJobRepository is an in-memory report job store.
// Stored jobs are copies; callers never share memory with the store.
type ReportJobRepository struct {
	mu   sync.RWMutex
	data map[string]*monitoring.ReportJob
}

// NewReportJobRepository constructs a repository.
func NewReportJobRepository() *ReportJobRepository {
	return &ReportJobRepository{data: make(map[string]*monitoring.ReportJob)}
}

// Create stores a new job.
func (r *ReportJobRepository) Create(ctx context.Context, job *monitoring.ReportJob) error {
	_ = ctx
	if job == nil || job.ID == "" {
		return errors.New("memory report job repo: invalid job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[job.ID]; exists {
		return errors.New("memory report job repo: duplicate id")
	}
	r.data[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job.
func (r *ReportJobRepository) Get(ctx context.Context, id string) (*monitoring.ReportJob, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	job := r.data[id]
	if job == nil {
		return nil, monitoring.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update stores progress fields while the job is running.
func (r *ReportJobRepository) Update(ctx context.Context, job *monitoring.ReportJob) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.data[job.ID]
	if stored == nil {
		return monitoring.ErrJobNotFound
	}
	if stored.Status.IsTerminal() {
		return monitoring.ErrJobFinished
	}
	if job.StartedAt != nil {
		started := *job.StartedAt
		stored.StartedAt = &started
	}
	stored.StoreCount = job.StoreCount
	stored.FailedStores = job.FailedStores
	return nil
}

// Finish stores the terminal state once.
func (r *ReportJobRepository) Finish(ctx context.Context, job *monitoring.ReportJob) error {
	_ = ctx
	if !job.Status.IsTerminal() {
		return errors.New("memory report job repo: job not terminal")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.data[job.ID]
	if stored == nil {
		return monitoring.ErrJobNotFound
	}
	if stored.Status.IsTerminal() {
		return monitoring.ErrJobFinished
	}
	finished := job.Clone()
	finished.CreatedAt = stored.CreatedAt
	if finished.StartedAt == nil {
		finished.StartedAt = stored.StartedAt
	}
	r.data[job.ID] = finished
	return nil
}

// ListRunning returns running jobs ordered by creation time.
func (r *ReportJobRepository) ListRunning(ctx context.Context) ([]*monitoring.ReportJob, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*monitoring.ReportJob
	for _, job := range r.data {
		if job.Status == monitoring.JobRunning {
			result = append(result, job.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

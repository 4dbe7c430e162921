package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monitoring "store-monitoring/internal/monitoring/domain"
	"store-monitoring/internal/monitoring/infrastructure/memory"
	"store-monitoring/internal/monitoring/metrics"
)

type recordingArtifacts struct {
	mu     sync.Mutex
	order  []string
	rows   map[string][]monitoring.ReportRow
	failed bool
}

func newRecordingArtifacts() *recordingArtifacts {
	return &recordingArtifacts{rows: make(map[string][]monitoring.ReportRow)}
}

func (a *recordingArtifacts) Save(ctx context.Context, reportID string, rows []monitoring.ReportRow) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failed {
		return "", errors.New("disk full")
	}
	a.order = append(a.order, reportID)
	a.rows[reportID] = rows
	return "artifact-" + reportID, nil
}

func (a *recordingArtifacts) saved(reportID string) []monitoring.ReportRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows[reportID]
}

func (a *recordingArtifacts) savedOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

type panickingBuilder struct {
	inner   RowBuilder
	storeID string
}

func (b panickingBuilder) Build(ctx context.Context, storeID string, now time.Time) (monitoring.ReportRow, error) {
	if storeID == b.storeID {
		panic("corrupt store")
	}
	return b.inner.Build(ctx, storeID, now)
}

// flakyJobs fails the first Get and Finish calls with a storage error.
type flakyJobs struct {
	*memory.ReportJobRepository
	mu             sync.Mutex
	getFailures    int
	finishFailures int
	gets           int
	finishes       int
}

func (j *flakyJobs) Get(ctx context.Context, id string) (*monitoring.ReportJob, error) {
	j.mu.Lock()
	j.gets++
	fail := j.getFailures > 0
	if fail {
		j.getFailures--
	}
	j.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return j.ReportJobRepository.Get(ctx, id)
}

func (j *flakyJobs) Finish(ctx context.Context, job *monitoring.ReportJob) error {
	j.mu.Lock()
	j.finishes++
	fail := j.finishFailures > 0
	if fail {
		j.finishFailures--
	}
	j.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return j.ReportJobRepository.Finish(ctx, job)
}

func (j *flakyJobs) calls() (gets, finishes int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.gets, j.finishes
}

type pipelineFixture struct {
	repo      *memory.StoreDataRepository
	jobs      *memory.ReportJobRepository
	artifacts *recordingArtifacts
	builder   RowBuilder
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	repo := memory.NewStoreDataRepository()
	estimator, err := NewOccupancyEstimator(repo, utcPolicy())
	require.NoError(t, err)
	builder, err := NewStoreReportBuilder(estimator)
	require.NoError(t, err)
	return &pipelineFixture{
		repo:      repo,
		jobs:      memory.NewReportJobRepository(),
		artifacts: newRecordingArtifacts(),
		builder:   builder,
	}
}

func (f *pipelineFixture) pipeline(t *testing.T, opts ...PipelineOption) *ReportPipeline {
	t.Helper()
	p, err := NewReportPipeline(f.jobs, f.repo, f.builder, f.artifacts, opts...)
	require.NoError(t, err)
	return p
}

func (f *pipelineFixture) flakyPipeline(t *testing.T, jobs *flakyJobs) *ReportPipeline {
	t.Helper()
	p, err := NewReportPipeline(jobs, f.repo, f.builder, f.artifacts)
	require.NoError(t, err)
	p.backoff = time.Millisecond
	return p
}

func (f *pipelineFixture) seedStores(t *testing.T, count int) []string {
	t.Helper()
	ids := make([]string, 0, count)
	observations := make([]monitoring.Observation, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("store-%03d", i)
		ids = append(ids, id)
		observations = append(observations, monitoring.Observation{
			StoreID:   id,
			Timestamp: reportNow.Add(-time.Duration(i%60) * time.Minute),
			Status:    monitoring.StatusActive,
		})
	}
	require.NoError(t, f.repo.SaveObservations(context.Background(), observations))
	return ids
}

func startWorker(t *testing.T, p *ReportPipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func waitTerminal(t *testing.T, p *ReportPipeline, id string) *monitoring.ReportJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := p.Status(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	job, err := p.Status(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestPipelineSkipsFailingStores(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 150)
	require.NoError(t, f.repo.SaveTimezones(context.Background(), []monitoring.StoreTimezone{
		{StoreID: "store-042", Zone: "Bad/Zone"},
	}))
	var logs strings.Builder
	var logMu sync.Mutex
	logger := log.New(writerFunc(func(b []byte) (int, error) {
		logMu.Lock()
		defer logMu.Unlock()
		return logs.Write(b)
	}), "", 0)
	p := f.pipeline(t, WithLogger(logger))
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobComplete, job.Status)
	assert.Equal(t, "artifact-"+id, job.ArtifactHandle)
	assert.Equal(t, 150, job.StoreCount)
	assert.Equal(t, 1, job.FailedStores)
	rows := f.artifacts.saved(id)
	require.Len(t, rows, 149)
	for _, row := range rows {
		assert.NotEqual(t, "store-042", row.StoreID)
	}

	logMu.Lock()
	defer logMu.Unlock()
	assert.Contains(t, logs.String(), "event=report_store_failed report_id="+id+" store_id=store-042")
	assert.Contains(t, logs.String(), "processed=100 total=150")
	assert.Contains(t, logs.String(), "processed=150 total=150 progress=100%")
}

func TestPipelineRecoversPanickingStore(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 3)
	f.builder = panickingBuilder{inner: f.builder, storeID: "store-001"}
	p := f.pipeline(t)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobComplete, job.Status)
	assert.Equal(t, 1, job.FailedStores)
	assert.Len(t, f.artifacts.saved(id), 2)
}

func TestPipelineFailsWithoutData(t *testing.T) {
	f := newPipelineFixture(t)
	p := f.pipeline(t)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobError, job.Status)
	assert.Empty(t, job.ArtifactHandle)
	assert.Contains(t, job.Error, monitoring.ErrNoData.Error())
}

func TestPipelineFailsWhenArtifactCannotBeSaved(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	f.artifacts.failed = true
	p := f.pipeline(t)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobError, job.Status)
	assert.Contains(t, job.Error, "persist artifact")
}

func TestPipelineFailsJobThatCannotBeLoaded(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	jobs := &flakyJobs{ReportJobRepository: f.jobs, getFailures: 1}
	p := f.flakyPipeline(t, jobs)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	submitted, err := f.jobs.Get(context.Background(), id)
	require.NoError(t, err)

	startWorker(t, p)
	require.Eventually(t, func() bool {
		gets, _ := jobs.calls()
		return gets >= 1
	}, 5*time.Second, 5*time.Millisecond)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobError, job.Status)
	assert.Contains(t, job.Error, "load job")
	assert.Equal(t, submitted.CreatedAt, job.CreatedAt)
	assert.Empty(t, f.artifacts.savedOrder())
}

func TestPipelineRetriesTerminalStateWrite(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	jobs := &flakyJobs{ReportJobRepository: f.jobs, finishFailures: finishAttempts - 1}
	p := f.flakyPipeline(t, jobs)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	job := waitTerminal(t, p, id)

	assert.Equal(t, monitoring.JobComplete, job.Status)
	assert.Equal(t, "artifact-"+id, job.ArtifactHandle)
	_, finishes := jobs.calls()
	assert.Equal(t, finishAttempts, finishes)
}

func TestPipelineUnwritableJobIsRecoveredLater(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	jobs := &flakyJobs{ReportJobRepository: f.jobs, finishFailures: finishAttempts}
	p := f.flakyPipeline(t, jobs)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, finishes := jobs.calls()
		return finishes >= finishAttempts
	}, 5*time.Second, 5*time.Millisecond)

	stuck, err := p.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, monitoring.JobRunning, stuck.Status)

	recovered, err := p.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	job := waitTerminal(t, p, id)
	assert.Equal(t, monitoring.JobError, job.Status)
}

func TestPipelineStatusBeforePickup(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	p := f.pipeline(t)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Pending())

	for i := 0; i < 3; i++ {
		job, err := p.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, monitoring.JobRunning, job.Status)
		assert.Empty(t, job.ArtifactHandle)
	}

	_, err = p.Status(context.Background(), "")
	assert.ErrorIs(t, err, monitoring.ErrJobNotFound)
	_, err = p.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, monitoring.ErrJobNotFound)
}

func TestPipelineTerminalStatusIsStable(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 2)
	p := f.pipeline(t)
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	first := waitTerminal(t, p, id)

	for i := 0; i < 3; i++ {
		again, err := p.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPipelineRunsJobsInSubmissionOrder(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 5)
	p := f.pipeline(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := p.Submit(context.Background())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	startWorker(t, p)
	for _, id := range ids {
		assert.Equal(t, monitoring.JobComplete, waitTerminal(t, p, id).Status)
	}
	assert.Equal(t, ids, f.artifacts.savedOrder())
	assert.Zero(t, p.Pending())
}

func TestPipelineSingleWorker(t *testing.T) {
	f := newPipelineFixture(t)
	p := f.pipeline(t)
	startWorker(t, p)

	require.Eventually(t, p.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Run(context.Background()), ErrWorkerRunning)
}

func TestPipelineRecoverInterrupted(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.jobs.Create(ctx, monitoring.NewReportJob("stale", reportNow)))
	done := monitoring.NewReportJob("done", reportNow)
	require.NoError(t, f.jobs.Create(ctx, done))
	require.NoError(t, done.Complete("h", reportNow))
	require.NoError(t, f.jobs.Finish(ctx, done))
	p := f.pipeline(t)

	recovered, err := p.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stale, err := p.Status(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, monitoring.JobError, stale.Status)
	kept, err := p.Status(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, monitoring.JobComplete, kept.Status)
}

func TestPipelineRecordsMetrics(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedStores(t, 4)
	m := metrics.New(prometheus.NewRegistry())
	p := f.pipeline(t, WithMetrics(m), WithBatchSize(3))
	startWorker(t, p)

	id, err := p.Submit(context.Background())
	require.NoError(t, err)
	waitTerminal(t, p, id)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsSubmitted))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.JobsTotal.WithLabelValues("Complete")) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.StoresTotal.WithLabelValues("success")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ReportRows))
}

func TestNewReportPipelineRequiresDependencies(t *testing.T) {
	_, err := NewReportPipeline(nil, nil, nil, nil)
	require.Error(t, err)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

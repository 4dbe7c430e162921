package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	monitoring "store-monitoring/internal/monitoring/domain"
	"store-monitoring/internal/monitoring/metrics"
)

// DefaultBatchSize is the number of stores computed between progress updates.
const DefaultBatchSize = 100

const (
	finishAttempts = 3
	finishBackoff  = 200 * time.Millisecond
)

// ErrWorkerRunning is returned when a second worker is started on a pipeline.
var ErrWorkerRunning = errors.New("report pipeline: worker already running")

// RowBuilder computes the report row of one store.
type RowBuilder interface {
	Build(ctx context.Context, storeID string, now time.Time) (monitoring.ReportRow, error)
}

// ReportPipeline accepts report jobs and runs them one at a time on a single worker.
type ReportPipeline struct {
	jobs      JobRepository
	reader    StoreDataReader
	builder   RowBuilder
	artifacts ArtifactStore
	batchSize int
	queue     *jobQueue
	running   atomic.Bool
	metrics   *metrics.Metrics
	logger    *log.Logger
	clock     Clock
	newID     func() string
	tracer    trace.Tracer
	backoff   time.Duration
}

// PipelineOption configures the pipeline.
type PipelineOption func(*ReportPipeline)

// WithBatchSize overrides the store batch size.
func WithBatchSize(size int) PipelineOption {
	return func(p *ReportPipeline) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) PipelineOption {
	return func(p *ReportPipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *ReportPipeline) { p.metrics = m }
}

// WithClock overrides the clock used for job timestamps.
func WithClock(clock Clock) PipelineOption {
	return func(p *ReportPipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithIDGenerator overrides report id generation.
func WithIDGenerator(fn func() string) PipelineOption {
	return func(p *ReportPipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewReportPipeline constructs a pipeline. Call Run to start the worker.
func NewReportPipeline(jobs JobRepository, reader StoreDataReader, builder RowBuilder, artifacts ArtifactStore, opts ...PipelineOption) (*ReportPipeline, error) {
	if jobs == nil || reader == nil || builder == nil || artifacts == nil {
		return nil, errors.New("report pipeline: nil dependency")
	}
	p := &ReportPipeline{
		jobs:      jobs,
		reader:    reader,
		builder:   builder,
		artifacts: artifacts,
		batchSize: DefaultBatchSize,
		queue:     newJobQueue(),
		logger:    log.New(io.Discard, "", 0),
		clock:     SystemClock{},
		newID:     func() string { return uuid.NewString() },
		tracer:    otel.Tracer("store-monitoring/report-pipeline"),
		backoff:   finishBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit creates a running job, queues it and returns its id without waiting.
func (p *ReportPipeline) Submit(ctx context.Context) (string, error) {
	job := monitoring.NewReportJob(p.newID(), p.clock.Now())
	if err := p.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create report job: %w", err)
	}
	p.queue.push(job.ID)
	if p.metrics != nil {
		p.metrics.JobsSubmitted.Inc()
		p.metrics.QueueDepth.Set(float64(p.queue.len()))
	}
	p.logf("report_job_submitted", job.ID, "", "")
	return job.ID, nil
}

// Status returns the current state of a job. It never mutates the job.
func (p *ReportPipeline) Status(ctx context.Context, id string) (*monitoring.ReportJob, error) {
	if id == "" {
		return nil, monitoring.ErrJobNotFound
	}
	return p.jobs.Get(ctx, id)
}

// Pending returns the number of queued jobs not yet picked up.
func (p *ReportPipeline) Pending() int {
	return p.queue.len()
}

// RecoverInterrupted marks jobs left running by a previous process as failed.
// It must be called before Submit and Run.
func (p *ReportPipeline) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := p.jobs.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}
	recovered := 0
	for _, job := range jobs {
		if err := job.Fail("interrupted by restart", p.clock.Now()); err != nil {
			continue
		}
		if err := p.jobs.Finish(ctx, job); err != nil {
			p.logf("report_job_recover_failed", job.ID, "", err.Error())
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Run is the single worker loop. It returns when ctx is done; a job that has
// already been dequeued always runs to a terminal state first.
func (p *ReportPipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer p.running.Store(false)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if id, ok := p.queue.pop(); ok {
			if p.metrics != nil {
				p.metrics.QueueDepth.Set(float64(p.queue.len()))
			}
			p.process(context.WithoutCancel(ctx), id)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-p.queue.wake:
		}
	}
}

func (p *ReportPipeline) process(ctx context.Context, id string) {
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		p.logf("report_job_load_failed", id, "", err.Error())
		if !errors.Is(err, monitoring.ErrJobNotFound) {
			p.abandon(ctx, id, fmt.Errorf("load job: %w", err))
		}
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	ctx, span := p.tracer.Start(ctx, "report_job", trace.WithAttributes(attribute.String("report.id", id)))
	defer span.End()

	started := p.clock.Now()
	if err := job.Start(started); err == nil {
		if err := p.jobs.Update(ctx, job); err != nil {
			p.logf("report_job_update_failed", id, "", err.Error())
		}
	}
	p.logf("report_job_start", id, "", "")

	handle, err := p.generate(ctx, job)
	ended := p.clock.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = job.Fail(err.Error(), ended)
		p.finish(ctx, job, started, ended)
		p.logf("report_job_failed", id, "", err.Error())
		return
	}

	span.SetAttributes(
		attribute.Int("report.stores", job.StoreCount),
		attribute.Int("report.failed_stores", job.FailedStores),
	)
	if err := job.Complete(handle, ended); err != nil {
		p.logf("report_job_failed", id, "", err.Error())
		return
	}
	p.finish(ctx, job, started, ended)
	p.logf("report_job_success", id, "", "")
}

// abandon fails a job that could not be loaded so pollers do not see it
// Running forever.
func (p *ReportPipeline) abandon(ctx context.Context, id string, cause error) {
	now := p.clock.Now()
	job := monitoring.NewReportJob(id, now)
	_ = job.Fail(cause.Error(), now)
	p.finish(ctx, job, now, now)
}

// finish persists the terminal state, retrying transient storage errors. A job
// whose state cannot be written stays Running until RecoverInterrupted.
func (p *ReportPipeline) finish(ctx context.Context, job *monitoring.ReportJob, started, ended time.Time) {
	var err error
	for attempt := 1; attempt <= finishAttempts; attempt++ {
		err = p.jobs.Finish(ctx, job)
		if err == nil || errors.Is(err, monitoring.ErrJobFinished) || errors.Is(err, monitoring.ErrJobNotFound) {
			break
		}
		p.logf("report_job_persist_failed", job.ID, "", err.Error())
		if attempt < finishAttempts {
			time.Sleep(time.Duration(attempt) * p.backoff)
		}
	}
	if err != nil {
		return
	}
	if p.metrics != nil {
		p.metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
		p.metrics.JobDuration.Observe(ended.Sub(started).Seconds())
		p.metrics.BatchProgress.Set(0)
	}
}

// generate computes every store of the snapshot and persists the artifact.
func (p *ReportPipeline) generate(ctx context.Context, job *monitoring.ReportJob) (string, error) {
	now, err := p.reader.MaxObservationTimestamp(ctx)
	if err != nil {
		return "", fmt.Errorf("max observation timestamp: %w", err)
	}
	if now == nil {
		return "", monitoring.ErrNoData
	}
	storeIDs, err := p.reader.DistinctStoreIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list stores: %w", err)
	}
	if len(storeIDs) == 0 {
		return "", monitoring.ErrNoData
	}

	total := len(storeIDs)
	job.StoreCount = total
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logf("report_job_update_failed", job.ID, "", err.Error())
	}
	p.logger.Printf("event=report_job_stores report_id=%s stores=%d now=%s", job.ID, total, now.UTC().Format(time.RFC3339))

	rows := make([]monitoring.ReportRow, 0, total)
	for i := 0; i < total; i += p.batchSize {
		batch := storeIDs[i:min(i+p.batchSize, total)]
		for _, storeID := range batch {
			row, err := p.buildRow(ctx, storeID, *now)
			if err != nil {
				job.FailedStores++
				p.logf("report_store_failed", job.ID, storeID, err.Error())
				if p.metrics != nil {
					p.metrics.StoresTotal.WithLabelValues("error").Inc()
				}
				continue
			}
			rows = append(rows, row)
			if p.metrics != nil {
				p.metrics.StoresTotal.WithLabelValues("success").Inc()
			}
		}
		processed := i + len(batch)
		p.logger.Printf("event=report_job_progress report_id=%s processed=%d total=%d progress=%d%%",
			job.ID, processed, total, processed*100/total)
		if p.metrics != nil {
			p.metrics.BatchProgress.Set(float64(processed) / float64(total))
		}
	}

	handle, err := p.artifacts.Save(ctx, job.ID, rows)
	if err != nil {
		return "", fmt.Errorf("persist artifact: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ReportRows.Set(float64(len(rows)))
	}
	return handle, nil
}

func (p *ReportPipeline) buildRow(ctx context.Context, storeID string, now time.Time) (row monitoring.ReportRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.builder.Build(ctx, storeID, now)
}

func (p *ReportPipeline) logf(event, reportID, storeID, errMsg string) {
	p.logger.Printf("event=%s report_id=%s store_id=%s error=%s", event, reportID, storeID, errMsg)
}

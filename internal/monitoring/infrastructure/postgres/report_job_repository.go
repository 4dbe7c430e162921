package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// ReportJobRepository persists report jobs.
type ReportJobRepository struct {
	db *sql.DB
}

// NewReportJobRepository constructs a repository.
func NewReportJobRepository(db *sql.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

// Create inserts a running job.
func (r *ReportJobRepository) Create(ctx context.Context, job *monitoring.ReportJob) error {
	if r == nil || r.db == nil {
		return errors.New("report job repo: nil db")
	}
	if job == nil || job.ID == "" {
		return errors.New("report job repo: invalid job")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO report_jobs (
	id, status, store_count, failed_stores, created_at, updated_at
) VALUES (
	$1,$2,0,0,$3,$4
)`, job.ID, string(job.Status), job.CreatedAt.UTC(), now)
	return err
}

// Get returns a job by id.
func (r *ReportJobRepository) Get(ctx context.Context, id string) (*monitoring.ReportJob, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report job repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, artifact_handle, error, store_count, failed_stores, created_at, started_at, finished_at
FROM report_jobs
WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, monitoring.ErrJobNotFound
	}
	return job, nil
}

// Update stores progress fields while the job is running.
func (r *ReportJobRepository) Update(ctx context.Context, job *monitoring.ReportJob) error {
	if r == nil || r.db == nil {
		return errors.New("report job repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE report_jobs
SET started_at = COALESCE($1, started_at), store_count = $2, failed_stores = $3, updated_at = $4
WHERE id = $5 AND status = 'Running'`,
		nullTime(job.StartedAt), job.StoreCount, job.FailedStores, time.Now().UTC(), job.ID)
	if err != nil {
		return err
	}
	return r.checkRunning(ctx, res, job.ID)
}

// Finish stores the terminal state. Only a running row is updated, so a job
// finishes exactly once.
func (r *ReportJobRepository) Finish(ctx context.Context, job *monitoring.ReportJob) error {
	if r == nil || r.db == nil {
		return errors.New("report job repo: nil db")
	}
	if !job.Status.IsTerminal() {
		return errors.New("report job repo: job not terminal")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE report_jobs
SET status = $1, artifact_handle = $2, error = $3, store_count = $4, failed_stores = $5,
	started_at = COALESCE($6, started_at), finished_at = $7, updated_at = $8
WHERE id = $9 AND status = 'Running'`,
		string(job.Status), nullString(job.ArtifactHandle), nullString(job.Error), job.StoreCount, job.FailedStores,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), time.Now().UTC(), job.ID)
	if err != nil {
		return err
	}
	return r.checkRunning(ctx, res, job.ID)
}

// ListRunning returns running jobs ordered by creation time.
func (r *ReportJobRepository) ListRunning(ctx context.Context) ([]*monitoring.ReportJob, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report job repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, status, artifact_handle, error, store_count, failed_stores, created_at, started_at, finished_at
FROM report_jobs
WHERE status = 'Running'
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*monitoring.ReportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// checkRunning maps a zero-row conditional update to the matching sentinel.
func (r *ReportJobRepository) checkRunning(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM report_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return monitoring.ErrJobNotFound
	}
	return monitoring.ErrJobFinished
}

func scanJob(row rowScanner) (*monitoring.ReportJob, error) {
	var job monitoring.ReportJob
	var status string
	var handle sql.NullString
	var errMsg sql.NullString
	var started sql.NullTime
	var finished sql.NullTime
	if err := row.Scan(
		&job.ID,
		&status,
		&handle,
		&errMsg,
		&job.StoreCount,
		&job.FailedStores,
		&job.CreatedAt,
		&started,
		&finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	job.Status = monitoring.JobStatus(status)
	if handle.Valid {
		job.ArtifactHandle = handle.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if started.Valid {
		t := started.Time.UTC()
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time.UTC()
		job.FinishedAt = &t
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

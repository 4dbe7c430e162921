package monitoring

import "time"

// JobStatus is the lifecycle state of a report job.
type JobStatus string

const (
	JobRunning  JobStatus = "Running"
	JobComplete JobStatus = "Complete"
	JobError    JobStatus = "Error"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobComplete || s == JobError
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	return s == JobRunning || s.IsTerminal()
}

// ReportJob is one asynchronous report execution.
type ReportJob struct {
	ID             string
	Status         JobStatus
	ArtifactHandle string
	Error          string
	StoreCount     int
	FailedStores   int
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// NewReportJob creates a job in the Running state.
func NewReportJob(id string, createdAt time.Time) *ReportJob {
	return &ReportJob{ID: id, Status: JobRunning, CreatedAt: createdAt.UTC()}
}

// Start records the time the worker picked the job up.
func (j *ReportJob) Start(at time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobFinished
	}
	started := at.UTC()
	j.StartedAt = &started
	return nil
}

// Complete moves a running job to Complete with the artifact handle.
func (j *ReportJob) Complete(handle string, at time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobFinished
	}
	if handle == "" {
		return ErrEmptyArtifactHandle
	}
	finished := at.UTC()
	j.Status = JobComplete
	j.ArtifactHandle = handle
	j.FinishedAt = &finished
	return nil
}

// Fail moves a running job to Error.
func (j *ReportJob) Fail(reason string, at time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobFinished
	}
	finished := at.UTC()
	j.Status = JobError
	j.ArtifactHandle = ""
	j.Error = reason
	j.FinishedAt = &finished
	return nil
}

// Clone returns a copy that shares no pointers with j.
func (j *ReportJob) Clone() *ReportJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.StartedAt != nil {
		started := *j.StartedAt
		out.StartedAt = &started
	}
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		out.FinishedAt = &finished
	}
	return &out
}

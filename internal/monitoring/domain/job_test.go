package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportJobComplete(t *testing.T) {
	now := time.Date(2023, time.January, 25, 18, 0, 0, 0, time.UTC)
	job := NewReportJob("job-1", now)
	assert.Equal(t, JobRunning, job.Status)
	require.NoError(t, job.Start(now))

	require.NoError(t, job.Complete("handle-1", now.Add(time.Minute)))
	assert.Equal(t, JobComplete, job.Status)
	assert.Equal(t, "handle-1", job.ArtifactHandle)
	require.NotNil(t, job.FinishedAt)

	assert.ErrorIs(t, job.Fail("late", now), ErrJobFinished)
	assert.ErrorIs(t, job.Complete("handle-2", now), ErrJobFinished)
	assert.ErrorIs(t, job.Start(now), ErrJobFinished)
	assert.Equal(t, JobComplete, job.Status)
	assert.Equal(t, "handle-1", job.ArtifactHandle)
}

func TestReportJobFail(t *testing.T) {
	now := time.Date(2023, time.January, 25, 18, 0, 0, 0, time.UTC)
	job := NewReportJob("job-1", now)
	require.NoError(t, job.Fail("no data", now))
	assert.Equal(t, JobError, job.Status)
	assert.Empty(t, job.ArtifactHandle)
	assert.ErrorIs(t, job.Complete("handle", now), ErrJobFinished)
}

func TestReportJobCompleteRequiresHandle(t *testing.T) {
	job := NewReportJob("job-1", time.Now())
	assert.ErrorIs(t, job.Complete("", time.Now()), ErrEmptyArtifactHandle)
	assert.Equal(t, JobRunning, job.Status)
}

func TestReportJobCloneIsIndependent(t *testing.T) {
	now := time.Date(2023, time.January, 25, 18, 0, 0, 0, time.UTC)
	job := NewReportJob("job-1", now)
	require.NoError(t, job.Start(now))
	clone := job.Clone()
	*clone.StartedAt = now.Add(time.Hour)
	assert.Equal(t, now, *job.StartedAt)
}

func TestNewReportRowConvertsUnits(t *testing.T) {
	row := NewReportRow("s1",
		Occupancy{Uptime: 45, Downtime: 15},
		Occupancy{Uptime: 90, Downtime: 30},
		Occupancy{Uptime: 125, Downtime: 1},
	)
	assert.Equal(t, 45, row.UptimeLastHour)
	assert.Equal(t, 15, row.DowntimeLastHour)
	assert.InDelta(t, 1.5, row.UptimeLastDay, 1e-9)
	assert.InDelta(t, 0.5, row.DowntimeLastDay, 1e-9)
	assert.InDelta(t, 125.0/60.0, row.UptimeLastWeek, 1e-12)
	assert.InDelta(t, 1.0/60.0, row.DowntimeLastWeek, 1e-12)
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Active ")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
	status, err = ParseStatus("inactive")
	require.NoError(t, err)
	assert.False(t, status.IsActive())
	_, err = ParseStatus("unknown")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

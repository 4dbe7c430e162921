package monitoring

import "errors"

var (
	// ErrEmptyStoreID is returned when a store id is empty.
	ErrEmptyStoreID = errors.New("monitoring: empty store id")
	// ErrInvalidStatus is returned when a status value is not active/inactive.
	ErrInvalidStatus = errors.New("monitoring: invalid status")
	// ErrInvalidTimestamp is returned when an observation timestamp is zero.
	ErrInvalidTimestamp = errors.New("monitoring: invalid timestamp")
	// ErrInvalidDayOfWeek is returned when a day of week is outside 0..6.
	ErrInvalidDayOfWeek = errors.New("monitoring: invalid day of week")
	// ErrInvalidClock is returned when a local time of day cannot be parsed.
	ErrInvalidClock = errors.New("monitoring: invalid clock value")
	// ErrInvalidWindow is returned when a window starts after it ends.
	ErrInvalidWindow = errors.New("monitoring: invalid window")
	// ErrNoData is returned when the dataset holds no observations at all.
	ErrNoData = errors.New("monitoring: no observations available")
	// ErrJobNotFound is returned when a report job cannot be found.
	ErrJobNotFound = errors.New("monitoring: report job not found")
	// ErrJobFinished guards the single terminal transition of a report job.
	ErrJobFinished = errors.New("monitoring: report job already finished")
	// ErrEmptyArtifactHandle is returned when completing a job without a handle.
	ErrEmptyArtifactHandle = errors.New("monitoring: empty artifact handle")
)

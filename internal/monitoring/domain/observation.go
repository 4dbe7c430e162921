package monitoring

import (
	"strings"
	"time"
)

// Status is the operational state reported by a store poll.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus normalizes a raw status value from the source data.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsActive reports whether the status counts as uptime.
func (s Status) IsActive() bool { return s == StatusActive }

// Observation is a single status sample for a store.
type Observation struct {
	StoreID   string
	Timestamp time.Time
	Status    Status
}

// NewObservation validates and builds an observation with a UTC timestamp.
func NewObservation(storeID string, ts time.Time, status Status) (Observation, error) {
	if storeID == "" {
		return Observation{}, ErrEmptyStoreID
	}
	if ts.IsZero() {
		return Observation{}, ErrInvalidTimestamp
	}
	if status != StatusActive && status != StatusInactive {
		return Observation{}, ErrInvalidStatus
	}
	return Observation{StoreID: storeID, Timestamp: ts.UTC(), Status: status}, nil
}

// StoreTimezone maps a store to its IANA zone name.
type StoreTimezone struct {
	StoreID string
	Zone    string
}

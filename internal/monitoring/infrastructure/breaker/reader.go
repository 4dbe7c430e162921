package breaker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"store-monitoring/internal/monitoring/application"
	monitoring "store-monitoring/internal/monitoring/domain"
)

// Config holds breaker settings.
type Config struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// StoreDataReader fails fast once the wrapped reader keeps erroring, so a
// report run over an unavailable database turns into per-store failures quickly.
type StoreDataReader struct {
	next application.StoreDataReader
	cb   *gobreaker.CircuitBreaker
}

// NewStoreDataReader wraps next with a circuit breaker.
func NewStoreDataReader(next application.StoreDataReader, cfg Config, logger *log.Logger) (*StoreDataReader, error) {
	if next == nil {
		return nil, errors.New("breaker: nil reader")
	}
	if cfg.Name == "" {
		cfg.Name = "store-data"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if logger != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Printf("event=breaker_state name=%s from=%s to=%s", name, from, to)
		}
	}
	return &StoreDataReader{next: next, cb: gobreaker.NewCircuitBreaker(settings)}, nil
}

// State returns the current breaker state.
func (r *StoreDataReader) State() gobreaker.State {
	return r.cb.State()
}

func execute[T any](r *StoreDataReader, fn func() (T, error)) (T, error) {
	out, err := r.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// LatestObservationAtOrBefore forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) LatestObservationAtOrBefore(ctx context.Context, storeID string, at time.Time) (*monitoring.Observation, error) {
	return execute(r, func() (*monitoring.Observation, error) {
		return r.next.LatestObservationAtOrBefore(ctx, storeID, at)
	})
}

// ObservationsInRange forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) ObservationsInRange(ctx context.Context, storeID string, start, end time.Time) ([]monitoring.Observation, error) {
	return execute(r, func() ([]monitoring.Observation, error) {
		return r.next.ObservationsInRange(ctx, storeID, start, end)
	})
}

// BusinessHours forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) BusinessHours(ctx context.Context, storeID string, dayOfWeek int) (*monitoring.BusinessHours, error) {
	return execute(r, func() (*monitoring.BusinessHours, error) {
		return r.next.BusinessHours(ctx, storeID, dayOfWeek)
	})
}

// Timezone forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) Timezone(ctx context.Context, storeID string) (string, error) {
	return execute(r, func() (string, error) {
		return r.next.Timezone(ctx, storeID)
	})
}

// DistinctStoreIDs forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) DistinctStoreIDs(ctx context.Context) ([]string, error) {
	return execute(r, func() ([]string, error) {
		return r.next.DistinctStoreIDs(ctx)
	})
}

// MaxObservationTimestamp forwards to the wrapped reader through the breaker.
func (r *StoreDataReader) MaxObservationTimestamp(ctx context.Context) (*time.Time, error) {
	return execute(r, func() (*time.Time, error) {
		return r.next.MaxObservationTimestamp(ctx)
	})
}

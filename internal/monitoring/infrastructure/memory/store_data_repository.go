package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// StoreDataRepository is an in-memory store of observations, business hours and
// timezones. It implements both the report read port and the ingest write port.
type StoreDataRepository struct {
	mu           sync.RWMutex
	observations map[string][]monitoring.Observation
	hours        map[string]map[int]monitoring.BusinessHours
	zones        map[string]string
}

// NewStoreDataRepository constructs a repository.
func NewStoreDataRepository() *StoreDataRepository {
	return &StoreDataRepository{
		observations: make(map[string][]monitoring.Observation),
		hours:        make(map[string]map[int]monitoring.BusinessHours),
		zones:        make(map[string]string),
	}
}

// SaveObservations appends observations, keeping each store's list ordered.
// A second observation for the same store and timestamp replaces the first.
func (r *StoreDataRepository) SaveObservations(ctx context.Context, observations []monitoring.Observation) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	touched := make(map[string]struct{})
	for _, obs := range observations {
		if obs.StoreID == "" {
			return monitoring.ErrEmptyStoreID
		}
		obs.Timestamp = obs.Timestamp.UTC()
		r.observations[obs.StoreID] = append(r.observations[obs.StoreID], obs)
		touched[obs.StoreID] = struct{}{}
	}
	for storeID := range touched {
		list := r.observations[storeID]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
		deduped := list[:0]
		for _, obs := range list {
			if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(obs.Timestamp) {
				deduped[n-1] = obs
				continue
			}
			deduped = append(deduped, obs)
		}
		r.observations[storeID] = deduped
	}
	return nil
}

// SaveBusinessHours upserts rules; the last rule for a store and weekday wins.
func (r *StoreDataRepository) SaveBusinessHours(ctx context.Context, rules []monitoring.BusinessHours) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		if rule.StoreID == "" {
			return monitoring.ErrEmptyStoreID
		}
		byDay := r.hours[rule.StoreID]
		if byDay == nil {
			byDay = make(map[int]monitoring.BusinessHours, 7)
			r.hours[rule.StoreID] = byDay
		}
		byDay[rule.DayOfWeek] = rule
	}
	return nil
}

// SaveTimezones upserts store timezones.
func (r *StoreDataRepository) SaveTimezones(ctx context.Context, zones []monitoring.StoreTimezone) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, zone := range zones {
		if zone.StoreID == "" {
			return monitoring.ErrEmptyStoreID
		}
		r.zones[zone.StoreID] = zone.Zone
	}
	return nil
}

// LatestObservationAtOrBefore returns the newest observation with timestamp <= at.
func (r *StoreDataRepository) LatestObservationAtOrBefore(ctx context.Context, storeID string, at time.Time) (*monitoring.Observation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.observations[storeID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(at) })
	if idx == 0 {
		return nil, nil
	}
	obs := list[idx-1]
	return &obs, nil
}

// ObservationsInRange returns observations strictly inside (start, end), ascending.
func (r *StoreDataRepository) ObservationsInRange(ctx context.Context, storeID string, start, end time.Time) ([]monitoring.Observation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.observations[storeID]
	from := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(start) })
	result := make([]monitoring.Observation, 0)
	for _, obs := range list[from:] {
		if !obs.Timestamp.Before(end) {
			break
		}
		result = append(result, obs)
	}
	return result, nil
}

// BusinessHours returns the rule for a store and weekday, or nil.
func (r *StoreDataRepository) BusinessHours(ctx context.Context, storeID string, dayOfWeek int) (*monitoring.BusinessHours, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.hours[storeID][dayOfWeek]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

// Timezone returns the zone of a store, or "".
func (r *StoreDataRepository) Timezone(ctx context.Context, storeID string) (string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.zones[storeID], nil
}

// DistinctStoreIDs returns the stores with at least one observation, sorted.
func (r *StoreDataRepository) DistinctStoreIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.observations))
	for storeID, list := range r.observations {
		if len(list) > 0 {
			ids = append(ids, storeID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MaxObservationTimestamp returns the newest observation time, or nil when empty.
func (r *StoreDataRepository) MaxObservationTimestamp(ctx context.Context) (*time.Time, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *time.Time
	for _, list := range r.observations {
		if len(list) == 0 {
			continue
		}
		ts := list[len(list)-1].Timestamp
		if latest == nil || ts.After(*latest) {
			latest = &ts
		}
	}
	return latest, nil
}

package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// DaySplitMode selects how a segment crossing midnight is accounted.
type DaySplitMode string

const (
	// DaySplitWalk evaluates every local date a segment touches.
	DaySplitWalk DaySplitMode = "walk"
	// DaySplitLegacy splits once at [start, 23:59] and [00:00, end]; dates in
	// between are not accounted.
	DaySplitLegacy DaySplitMode = "legacy"
)

// IsValid reports whether the mode is known.
func (m DaySplitMode) IsValid() bool {
	return m == DaySplitWalk || m == DaySplitLegacy
}

const legacyDayEndMinute = 23*60 + 59

// OccupancyEstimator reconstructs the carried-forward status of a store and
// integrates it against the store's weekly business hours.
type OccupancyEstimator struct {
	reader    StoreDataReader
	policy    monitoring.DefaultPolicy
	split     DaySplitMode
	locations sync.Map
}

// EstimatorOption configures the estimator.
type EstimatorOption func(*OccupancyEstimator)

// WithDaySplit selects the day boundary mode.
func WithDaySplit(mode DaySplitMode) EstimatorOption {
	return func(e *OccupancyEstimator) {
		if mode.IsValid() {
			e.split = mode
		}
	}
}

// NewOccupancyEstimator constructs an estimator.
func NewOccupancyEstimator(reader StoreDataReader, policy monitoring.DefaultPolicy, opts ...EstimatorOption) (*OccupancyEstimator, error) {
	if reader == nil {
		return nil, errors.New("occupancy estimator: nil reader")
	}
	e := &OccupancyEstimator{reader: reader, policy: policy, split: DaySplitWalk}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type breakpoint struct {
	at     time.Time
	status monitoring.Status
}

// Estimate returns uptime and downtime minutes of a store inside [start, end).
func (e *OccupancyEstimator) Estimate(ctx context.Context, storeID string, start, end time.Time) (monitoring.Occupancy, error) {
	var result monitoring.Occupancy
	if storeID == "" {
		return result, monitoring.ErrEmptyStoreID
	}
	if start.After(end) {
		return result, monitoring.ErrInvalidWindow
	}

	loc, err := e.location(ctx, storeID)
	if err != nil {
		return result, err
	}
	start, end = start.UTC(), end.UTC()

	initial, err := e.reader.LatestObservationAtOrBefore(ctx, storeID, start)
	if err != nil {
		return result, fmt.Errorf("initial status: %w", err)
	}
	records, err := e.reader.ObservationsInRange(ctx, storeID, start, end)
	if err != nil {
		return result, fmt.Errorf("observations in range: %w", err)
	}
	inRange := make([]monitoring.Observation, 0, len(records))
	for _, obs := range records {
		if obs.Timestamp.After(start) && obs.Timestamp.Before(end) {
			inRange = append(inRange, obs)
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].Timestamp.Before(inRange[j].Timestamp) })

	hours := e.hoursLookup(ctx, storeID)
	localStart, localEnd := start.In(loc), end.In(loc)

	if initial == nil && len(inRange) == 0 {
		minutes, err := e.walk(localStart, localEnd, hours)
		if err != nil {
			return result, err
		}
		result.Add(monitoring.StatusInactive, minutes)
		return result, nil
	}

	current := monitoring.StatusInactive
	if initial != nil {
		current = initial.Status
	}
	points := make([]breakpoint, 0, len(inRange)+2)
	points = append(points, breakpoint{at: localStart, status: current})
	for _, obs := range inRange {
		points = append(points, breakpoint{at: obs.Timestamp.In(loc), status: obs.Status})
		current = obs.Status
	}
	points = append(points, breakpoint{at: localEnd, status: current})

	for i := 0; i < len(points)-1; i++ {
		minutes, err := e.segmentMinutes(points[i].at, points[i+1].at, hours)
		if err != nil {
			return result, err
		}
		result.Add(points[i].status, minutes)
	}
	return result, nil
}

func (e *OccupancyEstimator) segmentMinutes(from, to time.Time, hours hoursFunc) (int, error) {
	if sameDate(from, to) {
		day := monitoring.DayOf(from)
		return overlapOn(day, day.Elapsed(from), day.Elapsed(to), hours)
	}
	if e.split == DaySplitLegacy {
		first := monitoring.DayOf(from)
		head, err := overlapOn(first, first.Elapsed(from), first.Clock(legacyDayEndMinute), hours)
		if err != nil {
			return 0, err
		}
		last := monitoring.DayOf(to)
		tail, err := overlapOn(last, 0, last.Elapsed(to), hours)
		if err != nil {
			return 0, err
		}
		return head + tail, nil
	}
	return e.walk(from, to, hours)
}

// walk accounts every local date between from and to against its own rule.
// Minutes are elapsed time, so a date the clocks change on counts 23h or 25h.
func (e *OccupancyEstimator) walk(from, to time.Time, hours hoursFunc) (int, error) {
	if !to.After(from) {
		return 0, nil
	}
	first := monitoring.DayOf(from)
	if sameDate(from, to) {
		return overlapOn(first, first.Elapsed(from), first.Elapsed(to), hours)
	}
	total, err := overlapOn(first, first.Elapsed(from), first.Minutes, hours)
	if err != nil {
		return 0, err
	}
	// Noon keeps the cursor on the intended date across DST shifts.
	cursor := time.Date(from.Year(), from.Month(), from.Day()+1, 12, 0, 0, 0, from.Location())
	for !sameDate(cursor, to) {
		day := monitoring.DayOf(cursor)
		minutes, err := overlapOn(day, 0, day.Minutes, hours)
		if err != nil {
			return 0, err
		}
		total += minutes
		cursor = cursor.AddDate(0, 0, 1)
	}
	last := monitoring.DayOf(to)
	tail, err := overlapOn(last, 0, last.Elapsed(to), hours)
	if err != nil {
		return 0, err
	}
	return total + tail, nil
}

type hoursFunc func(dayOfWeek int) (monitoring.BusinessHours, error)

// overlapOn intersects [startMinute, endMinute), in elapsed minutes of day,
// with the rule of that weekday.
func overlapOn(day monitoring.LocalDay, startMinute, endMinute int, hours hoursFunc) (int, error) {
	rule, err := hours(monitoring.DayOfWeek(day.Midnight))
	if err != nil {
		return 0, err
	}
	if rule.OpenMinutes() == 0 {
		return 0, nil
	}
	return monitoring.IntervalOverlap(day.Clock(rule.StartMinute), day.Clock(rule.EndMinute), startMinute, endMinute), nil
}

// hoursLookup memoizes the weekly rules of one store for one estimate.
func (e *OccupancyEstimator) hoursLookup(ctx context.Context, storeID string) hoursFunc {
	cache := make(map[int]monitoring.BusinessHours, 7)
	return func(dayOfWeek int) (monitoring.BusinessHours, error) {
		if rule, ok := cache[dayOfWeek]; ok {
			return rule, nil
		}
		found, err := e.reader.BusinessHours(ctx, storeID, dayOfWeek)
		if err != nil {
			return monitoring.BusinessHours{}, fmt.Errorf("business hours day=%d: %w", dayOfWeek, err)
		}
		rule := e.policy.HoursFor(storeID, dayOfWeek)
		if found != nil {
			rule = *found
		}
		cache[dayOfWeek] = rule
		return rule, nil
	}
}

func (e *OccupancyEstimator) location(ctx context.Context, storeID string) (*time.Location, error) {
	zone, err := e.reader.Timezone(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	zone = e.policy.ZoneOrDefault(zone)
	if cached, ok := e.locations.Load(zone); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	e.locations.Store(zone, loc)
	return loc, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

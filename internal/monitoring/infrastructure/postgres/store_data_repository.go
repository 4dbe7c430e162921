package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// StoreDataRepository reads and writes observations, business hours and timezones.
type StoreDataRepository struct {
	db *sql.DB
}

// NewStoreDataRepository constructs a repository.
func NewStoreDataRepository(db *sql.DB) *StoreDataRepository {
	return &StoreDataRepository{db: db}
}

// LatestObservationAtOrBefore returns the newest observation with timestamp <= at, or nil.
func (r *StoreDataRepository) LatestObservationAtOrBefore(ctx context.Context, storeID string, at time.Time) (*monitoring.Observation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store data repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT store_id, timestamp_utc, status
FROM store_status
WHERE store_id = $1 AND timestamp_utc <= $2
ORDER BY timestamp_utc DESC
LIMIT 1`, storeID, at.UTC())
	return scanObservation(row)
}

// ObservationsInRange returns observations strictly inside (start, end), ascending.
func (r *StoreDataRepository) ObservationsInRange(ctx context.Context, storeID string, start, end time.Time) ([]monitoring.Observation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store data repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT store_id, timestamp_utc, status
FROM store_status
WHERE store_id = $1 AND timestamp_utc > $2 AND timestamp_utc < $3
ORDER BY timestamp_utc ASC`, storeID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]monitoring.Observation, 0)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *obs)
	}
	return result, rows.Err()
}

// BusinessHours returns the rule for a store and weekday, or nil.
func (r *StoreDataRepository) BusinessHours(ctx context.Context, storeID string, dayOfWeek int) (*monitoring.BusinessHours, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store data repo: nil db")
	}
	var rule monitoring.BusinessHours
	err := r.db.QueryRowContext(ctx, `
SELECT store_id, day_of_week, start_minute, end_minute
FROM business_hours
WHERE store_id = $1 AND day_of_week = $2`, storeID, dayOfWeek).
		Scan(&rule.StoreID, &rule.DayOfWeek, &rule.StartMinute, &rule.EndMinute)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// Timezone returns the zone of a store, or "".
func (r *StoreDataRepository) Timezone(ctx context.Context, storeID string) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("store data repo: nil db")
	}
	var zone string
	err := r.db.QueryRowContext(ctx, `SELECT timezone_str FROM store_timezones WHERE store_id = $1`, storeID).Scan(&zone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return zone, nil
}

// DistinctStoreIDs returns the stores with at least one observation.
func (r *StoreDataRepository) DistinctStoreIDs(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store data repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT store_id FROM store_status ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxObservationTimestamp returns the newest observation time, or nil when empty.
func (r *StoreDataRepository) MaxObservationTimestamp(ctx context.Context) (*time.Time, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store data repo: nil db")
	}
	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(timestamp_utc) FROM store_status`).Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// SaveObservations upserts observations in one transaction.
func (r *StoreDataRepository) SaveObservations(ctx context.Context, observations []monitoring.Observation) error {
	return r.inTx(ctx, `
INSERT INTO store_status (store_id, timestamp_utc, status)
VALUES ($1,$2,$3)
ON CONFLICT (store_id, timestamp_utc)
DO UPDATE SET status = EXCLUDED.status`, len(observations), func(i int) []any {
		obs := observations[i]
		return []any{obs.StoreID, obs.Timestamp.UTC(), string(obs.Status)}
	})
}

// SaveBusinessHours upserts weekly rules in one transaction.
func (r *StoreDataRepository) SaveBusinessHours(ctx context.Context, rules []monitoring.BusinessHours) error {
	return r.inTx(ctx, `
INSERT INTO business_hours (store_id, day_of_week, start_minute, end_minute)
VALUES ($1,$2,$3,$4)
ON CONFLICT (store_id, day_of_week)
DO UPDATE SET start_minute = EXCLUDED.start_minute, end_minute = EXCLUDED.end_minute`, len(rules), func(i int) []any {
		rule := rules[i]
		return []any{rule.StoreID, rule.DayOfWeek, rule.StartMinute, rule.EndMinute}
	})
}

// SaveTimezones upserts store timezones in one transaction.
func (r *StoreDataRepository) SaveTimezones(ctx context.Context, zones []monitoring.StoreTimezone) error {
	return r.inTx(ctx, `
INSERT INTO store_timezones (store_id, timezone_str)
VALUES ($1,$2)
ON CONFLICT (store_id)
DO UPDATE SET timezone_str = EXCLUDED.timezone_str`, len(zones), func(i int) []any {
		return []any{zones[i].StoreID, zones[i].Zone}
	})
}

func (r *StoreDataRepository) inTx(ctx context.Context, query string, count int, args func(i int) []any) error {
	if r == nil || r.db == nil {
		return errors.New("store data repo: nil db")
	}
	if count == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := 0; i < count; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*monitoring.Observation, error) {
	var obs monitoring.Observation
	var status string
	if err := row.Scan(&obs.StoreID, &obs.Timestamp, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := monitoring.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	obs.Status = parsed
	obs.Timestamp = obs.Timestamp.UTC()
	return &obs, nil
}

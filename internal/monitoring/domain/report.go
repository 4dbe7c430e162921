package monitoring

import "time"

// Standard trailing windows of a store report.
const (
	WindowHour = time.Hour
	WindowDay  = 24 * time.Hour
	WindowWeek = 7 * 24 * time.Hour
)

// Occupancy is the estimated open time of a store inside one window, in minutes.
type Occupancy struct {
	Uptime   int
	Downtime int
}

// Add accumulates minutes of one segment into the matching bucket.
func (o *Occupancy) Add(status Status, minutes int) {
	if minutes <= 0 {
		return
	}
	if status.IsActive() {
		o.Uptime += minutes
		return
	}
	o.Downtime += minutes
}

// ReportRow is the per-store output line of a report.
// The hour pair is in minutes, day and week pairs are in hours.
type ReportRow struct {
	StoreID          string
	UptimeLastHour   int
	UptimeLastDay    float64
	UptimeLastWeek   float64
	DowntimeLastHour int
	DowntimeLastDay  float64
	DowntimeLastWeek float64
}

// NewReportRow assembles a row from the three window estimates.
func NewReportRow(storeID string, hour, day, week Occupancy) ReportRow {
	return ReportRow{
		StoreID:          storeID,
		UptimeLastHour:   hour.Uptime,
		UptimeLastDay:    MinutesToHours(day.Uptime),
		UptimeLastWeek:   MinutesToHours(week.Uptime),
		DowntimeLastHour: hour.Downtime,
		DowntimeLastDay:  MinutesToHours(day.Downtime),
		DowntimeLastWeek: MinutesToHours(week.Downtime),
	}
}

// MinutesToHours converts without rounding.
func MinutesToHours(minutes int) float64 {
	return float64(minutes) / 60
}

// ReportColumns is the header of the tabular artifact.
var ReportColumns = []string{
	"store_id",
	"uptime_last_hour",
	"uptime_last_day",
	"uptime_last_week",
	"downtime_last_hour",
	"downtime_last_day",
	"downtime_last_week",
}

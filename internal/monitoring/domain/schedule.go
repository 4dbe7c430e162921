package monitoring

import (
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 24 * 60

// DefaultTimezone is used when a store has no timezone record.
const DefaultTimezone = "America/Chicago"

// BusinessHours is the local opening window of a store for one weekday.
// DayOfWeek follows the source data convention: 0=Monday, 6=Sunday.
type BusinessHours struct {
	StoreID     string
	DayOfWeek   int
	StartMinute int
	EndMinute   int
}

// NewBusinessHours validates a weekly rule. Equal start and end mean closed that day.
func NewBusinessHours(storeID string, dayOfWeek, startMinute, endMinute int) (BusinessHours, error) {
	if storeID == "" {
		return BusinessHours{}, ErrEmptyStoreID
	}
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return BusinessHours{}, ErrInvalidDayOfWeek
	}
	if startMinute < 0 || startMinute > MinutesPerDay || endMinute < 0 || endMinute > MinutesPerDay {
		return BusinessHours{}, ErrInvalidClock
	}
	return BusinessHours{StoreID: storeID, DayOfWeek: dayOfWeek, StartMinute: startMinute, EndMinute: endMinute}, nil
}

// OpenMinutes returns the scheduled length of the window.
func (b BusinessHours) OpenMinutes() int {
	if b.EndMinute <= b.StartMinute {
		return 0
	}
	return b.EndMinute - b.StartMinute
}

// DefaultPolicy resolves lookups that miss: a store without a rule for a day is
// open all day, a store without a timezone uses Timezone.
type DefaultPolicy struct {
	Timezone    string
	StartMinute int
	EndMinute   int
}

// StandardPolicy returns the 24/7 schedule in the default zone.
func StandardPolicy() DefaultPolicy {
	return DefaultPolicy{Timezone: DefaultTimezone, StartMinute: 0, EndMinute: MinutesPerDay}
}

// HoursFor returns the default rule for a store and weekday.
func (p DefaultPolicy) HoursFor(storeID string, dayOfWeek int) BusinessHours {
	return BusinessHours{StoreID: storeID, DayOfWeek: dayOfWeek, StartMinute: p.StartMinute, EndMinute: p.EndMinute}
}

// ZoneOrDefault returns zone, or the policy zone when zone is empty.
func (p DefaultPolicy) ZoneOrDefault(zone string) string {
	if zone != "" {
		return zone
	}
	if p.Timezone != "" {
		return p.Timezone
	}
	return DefaultTimezone
}

// ParseClock converts HH:MM[:SS] to minutes since midnight; seconds are floored.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ErrInvalidClock
	}
	fields := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, ErrInvalidClock
		}
		fields[i] = n
	}
	h, m, s := fields[0], fields[1], fields[2]
	if h > 24 || m > 59 || s > 59 || (h == 24 && (m > 0 || s > 0)) {
		return 0, ErrInvalidClock
	}
	return h*60 + m + s/60, nil
}

// DayOfWeek maps a time to the Monday=0 weekday index of its own location.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MinuteOfDay returns the minutes elapsed since local midnight, truncating
// seconds. It equals hour*60+minute except after a clock change.
func MinuteOfDay(t time.Time) int {
	return DayOf(t).Elapsed(t)
}

// LocalDay is one calendar date of a location measured in elapsed minutes.
// Minutes is 1380 or 1500 on days the clocks change.
type LocalDay struct {
	Midnight time.Time
	Minutes  int
}

// DayOf returns the local date of t in t's location.
func DayOf(t time.Time) LocalDay {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	next := time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
	return LocalDay{Midnight: midnight, Minutes: int(next.Sub(midnight) / time.Minute)}
}

// Elapsed returns the whole minutes between midnight and t.
func (d LocalDay) Elapsed(t time.Time) int {
	return int(t.Sub(d.Midnight) / time.Minute)
}

// Clock maps a wall-clock minute of a weekly rule onto the elapsed minutes of
// the day. 24:00 is the next local midnight.
func (d LocalDay) Clock(minute int) int {
	if minute <= 0 {
		return 0
	}
	if minute >= MinutesPerDay {
		return d.Minutes
	}
	y, m, day := d.Midnight.Date()
	at := time.Date(y, m, day, minute/60, minute%60, 0, 0, d.Midnight.Location())
	return min(max(d.Elapsed(at), 0), d.Minutes)
}

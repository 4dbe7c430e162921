package monitoring

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"00:00:00": 0,
		"09:00:00": 540,
		"17:30:59": 1050,
		"23:59:59": 1439,
		"24:00:00": 1440,
		"08:15":    495,
	}
	for value, want := range cases {
		got, err := ParseClock(value)
		require.NoError(t, err, value)
		assert.Equal(t, want, got, value)
	}

	for _, bad := range []string{"", "9", "25:00:00", "10:60:00", "aa:bb:cc", "24:00:01", "-1:00:00"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestDayOfWeekStartsMonday(t *testing.T) {
	monday := time.Date(2023, time.January, 23, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		assert.Equal(t, i, DayOfWeek(monday.AddDate(0, 0, i)))
	}
}

func TestDayOfWeekUsesLocalCalendar(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	// Tuesday 03:00 UTC is still Monday evening in Chicago.
	utc := time.Date(2023, time.January, 24, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DayOfWeek(utc))
	assert.Equal(t, 0, DayOfWeek(utc.In(chicago)))
	assert.Equal(t, 21*60, MinuteOfDay(utc.In(chicago)))
}

func TestDefaultPolicy(t *testing.T) {
	policy := StandardPolicy()
	hours := policy.HoursFor("s1", 3)
	assert.Equal(t, 0, hours.StartMinute)
	assert.Equal(t, MinutesPerDay, hours.EndMinute)
	assert.Equal(t, MinutesPerDay, hours.OpenMinutes())
	assert.Equal(t, DefaultTimezone, policy.ZoneOrDefault(""))
	assert.Equal(t, "Asia/Tokyo", policy.ZoneOrDefault("Asia/Tokyo"))
	assert.Equal(t, DefaultTimezone, DefaultPolicy{}.ZoneOrDefault(""))
}

func TestNewBusinessHoursValidation(t *testing.T) {
	_, err := NewBusinessHours("", 0, 0, 10)
	assert.ErrorIs(t, err, ErrEmptyStoreID)
	_, err = NewBusinessHours("s1", 7, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidDayOfWeek)
	_, err = NewBusinessHours("s1", 0, 0, 1441)
	assert.ErrorIs(t, err, ErrInvalidClock)

	hours, err := NewBusinessHours("s1", 6, 600, 600)
	require.NoError(t, err)
	assert.Equal(t, 0, hours.OpenMinutes())
}

func TestLocalDayFollowsClockChanges(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	short := DayOf(time.Date(2023, time.March, 12, 15, 0, 0, 0, chicago))
	assert.Equal(t, 23*60, short.Minutes)
	assert.Equal(t, 0, short.Clock(0))
	assert.Equal(t, 60, short.Clock(60))
	assert.Equal(t, 120, short.Clock(3*60))
	assert.Equal(t, 16*60, short.Clock(17*60))
	assert.Equal(t, short.Minutes, short.Clock(MinutesPerDay))
	// 08:30 UTC is 03:30 CDT, 150 minutes after a CST midnight.
	assert.Equal(t, 150, MinuteOfDay(time.Date(2023, time.March, 12, 8, 30, 0, 0, time.UTC).In(chicago)))

	long := DayOf(time.Date(2023, time.November, 5, 15, 0, 0, 0, chicago))
	assert.Equal(t, 25*60, long.Minutes)
	assert.Equal(t, 18*60, long.Clock(17*60))
	assert.Equal(t, long.Minutes, long.Clock(MinutesPerDay))

	plain := DayOf(time.Date(2023, time.January, 25, 15, 45, 30, 0, chicago))
	assert.Equal(t, MinutesPerDay, plain.Minutes)
	assert.Equal(t, 17*60, plain.Clock(17*60))
	assert.Equal(t, 15*60+45, MinuteOfDay(time.Date(2023, time.January, 25, 15, 45, 30, 0, chicago)))
}

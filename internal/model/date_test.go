package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, Date("2026-08-28"), d)

	_, err = ParseDate("28.08.2026")
	assert.Error(t, err)

	_, err = ParseDate("2026-13-01")
	assert.Error(t, err)
}

func TestDateOf(t *testing.T) {
	assert.Equal(t, Date("2026-08-28"),
		DateOf(time.Date(2026, 8, 28, 23, 59, 59, 0, time.UTC)))
}

func TestDayBounds(t *testing.T) {
	start, end := Date("2026-08-28").DayBounds(time.UTC)

	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), end)
}

func TestAddDays(t *testing.T) {
	d := Date("2026-08-28")

	assert.Equal(t, Date("2026-08-29"), d.AddDays(1))
	assert.Equal(t, Date("2026-08-21"), d.AddDays(-7))
	// Month and year rollovers.
	assert.Equal(t, Date("2026-09-01"), d.AddDays(4))
	assert.Equal(t, Date("2027-01-01"), Date("2026-12-31").AddDays(1))
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, Date("2026-08-28").DaysSince("2026-08-28"))
	assert.Equal(t, 5, Date("2026-08-28").DaysSince("2026-08-23"))
	assert.Equal(t, -1, Date("2026-08-28").DaysSince("2026-08-29"))
	// Across a month boundary.
	assert.Equal(t, 14, Date("2026-09-04").DaysSince("2026-08-21"))
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-08", Date("2026-08-28").MonthKey())
	assert.Equal(t, "", Date("").MonthKey())
}

func TestBefore(t *testing.T) {
	assert.True(t, Date("2026-08-27").Before("2026-08-28"))
	assert.False(t, Date("2026-08-28").Before("2026-08-28"))
	assert.True(t, Date("2026-09-30").Before("2026-10-01"))
}

func TestIsZero(t *testing.T) {
	assert.True(t, Date("").IsZero())
	assert.False(t, Date("2026-08-28").IsZero())
}

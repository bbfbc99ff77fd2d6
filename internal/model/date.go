package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar-local date in YYYY-MM-DD form. All per-day records are
// keyed by Date; day boundaries are local midnight to midnight.
type Date string

// Today returns the current date in the given location.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// DateOf truncates a time to its calendar date.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Time returns the date's midnight in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DayBounds returns the local [midnight, next midnight) window for the date.
func (d Date) DayBounds(loc *time.Location) (time.Time, time.Time) {
	start := d.Time(loc)
	return start, start.AddDate(0, 0, 1)
}

// AddDays returns the date shifted by n calendar days (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// DaysSince returns the number of whole calendar days from other to d.
// Positive when d is later than other.
func (d Date) DaysSince(other Date) int {
	return int(d.Time(time.UTC).Sub(other.Time(time.UTC)).Hours() / 24)
}

// MonthKey returns the YYYY-MM month the date belongs to.
func (d Date) MonthKey() string {
	if len(d) < 7 {
		return ""
	}
	return string(d[:7])
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == ""
}

// Before reports whether d is earlier than other. Lexicographic comparison
// is correct for the fixed-width YYYY-MM-DD layout.
func (d Date) Before(other Date) bool {
	return string(d) < string(other)
}

func (d Date) String() string {
	return string(d)
}

package domain

import "time"

// Clock supplies the current time. Services never call time.Now directly.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports wall time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// Today returns the current calendar day according to c.
func Today(c Clock) Date {
	return DateOf(c.Now())
}

// PeriodOf returns the reading period key "YYYYMM" for t in t's location.
func PeriodOf(t time.Time) string {
	return t.Format("200601")
}

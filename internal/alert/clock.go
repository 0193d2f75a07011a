package alert

import "time"

// Clock supplies "now" in a given location. Tests inject a fixed clock.
type Clock interface {
	Now(loc *time.Location) time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now(loc *time.Location) time.Time {
	if loc == nil {
		return time.Now()
	}
	return time.Now().In(loc)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(loc *time.Location) time.Time

func (f ClockFunc) Now(loc *time.Location) time.Time { return f(loc) }

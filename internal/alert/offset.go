package alert

import (
	"fmt"
	"strings"
	"time"
)

// Offset is a fixed UTC offset given as hours and minutes.
//
// The two parts are added as signed quantities, so {-5, 30} is 4h30m behind
// UTC. Both parts must be strictly inside (-24, 24) and (-60, 60).
type Offset struct {
	Hours   int `json:"hours" yaml:"hours"`
	Minutes int `json:"minutes" yaml:"minutes"`
}

// Validate rejects offsets outside the accepted range.
func (o Offset) Validate() error {
	if o.Hours <= -24 || o.Hours >= 24 {
		return fmt.Errorf("%w: hours must be in range -23 to 23 but %d received", ErrInvalidInput, o.Hours)
	}
	if o.Minutes <= -60 || o.Minutes >= 60 {
		return fmt.Errorf("%w: minutes must be in range -59 to 59 but %d received", ErrInvalidInput, o.Minutes)
	}
	return nil
}

// Seconds returns the total offset east of UTC.
func (o Offset) Seconds() int { return o.Hours*3600 + o.Minutes*60 }

// Location returns a fixed zone for the offset. The zero offset maps to time.UTC.
func (o Offset) Location() *time.Location {
	secs := o.Seconds()
	if secs == 0 {
		return time.UTC
	}
	return time.FixedZone(o.String(), secs)
}

// String renders the offset as UTC±HH:MM.
func (o Offset) String() string {
	secs := o.Seconds()
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, secs/3600, (secs%3600)/60)
}

// OffsetOf returns the offset a location has at instant t.
func OffsetOf(t time.Time) Offset {
	_, secs := t.Zone()
	return Offset{Hours: secs / 3600, Minutes: (secs % 3600) / 60}
}

// Timestamp is an event time as entered by a user. A naive timestamp was
// given without an offset; Store.Create pins its wall clock reading to the
// store default timezone.
type Timestamp struct {
	Time  time.Time
	Naive bool
}

// At wraps a time that already carries its zone.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// Naive wraps a wall clock reading whose zone is unknown.
func Naive(t time.Time) Timestamp { return Timestamp{Time: t, Naive: true} }

// In resolves the timestamp. Naive readings keep their wall clock fields and
// take loc as their zone.
func (ts Timestamp) In(loc *time.Location) time.Time {
	if !ts.Naive {
		return ts.Time
	}
	if loc == nil {
		loc = time.UTC
	}
	t := ts.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseTimestamp parses an ISO 8601 date or date-time. Inputs without an
// offset come back naive.
func ParseTimestamp(raw string) (Timestamp, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Timestamp{}, fmt.Errorf("%w: time required", ErrInvalidInput)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return At(t), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Naive(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("%w: invalid ISO 8601 time %q (use e.g. 2024-05-01T18:30 or 2024-05-01T18:30:00+02:00)", ErrInvalidInput, raw)
}

package alert

import (
	"fmt"
	"math"
	"time"
)

const day = 24 * time.Hour

// MaxRepeatDays caps the repeat cadence at one hundred years so intervals
// and catch-up jumps stay well inside time.Duration.
const MaxRepeatDays = 36500

// MaxLeadTime caps the lead time in minutes at the same span.
const MaxLeadTime = MaxRepeatDays * 24 * 60

// Event is a single scheduled occurrence with a repeat cadence.
type Event struct {
	ID    int
	Owner User
	// RepeatDays is the cadence in whole days. Zero means one-shot.
	RepeatDays int
	Name       string
	// NextTime always carries a zone.
	NextTime time.Time
}

// Expired reports whether the event is one-shot, i.e. retired after it fires.
func (e *Event) Expired() bool { return e.RepeatDays == 0 }

// Interval returns the repeat cadence as a duration.
func (e *Event) Interval() time.Duration { return time.Duration(e.RepeatDays) * day }

// Location is the zone NextTime is expressed in.
func (e *Event) Location() *time.Location { return e.NextTime.Location() }

// Before orders events by NextTime only.
func (e *Event) Before(o *Event) bool { return e.NextTime.Before(o.NextTime) }

// Advance moves NextTime forward by one interval. If that is still not after
// now (missed occurrences, e.g. after downtime) it jumps ahead by as many
// whole intervals as needed so NextTime ends up strictly after now.
// One-shot events are left untouched; the store retires them.
func (e *Event) Advance(now time.Time) {
	if e.Expired() {
		return
	}
	interval := e.Interval()
	e.NextTime = e.NextTime.Add(interval)
	// Smallest whole number of intervals that lands strictly after now.
	// Sub saturates for gaps beyond ~292 years, hence the loop.
	for !e.NextTime.After(now) {
		n := now.Sub(e.NextTime)/interval + 1
		if n > math.MaxInt64/interval {
			n = math.MaxInt64 / interval
		}
		e.NextTime = e.NextTime.Add(n * interval)
	}
}

func (e *Event) String() string {
	return fmt.Sprintf(`ID: %d, "%s" every %d days. Next occurs at %s`,
		e.ID, e.Name, e.RepeatDays, formatTime(e.NextTime))
}

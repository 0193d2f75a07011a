package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// MinInterval is the shortest poll interval; cron's @every has one second
// resolution.
const MinInterval = time.Second

// ParseInterval parses a poll interval written as a Go duration ("60s",
// "1m30s") or as a cron descriptor ("@every 1m").
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("poll interval required")
	}
	if rest, ok := strings.CutPrefix(s, "@every"); ok {
		s = strings.TrimSpace(rest)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid poll interval %q (use a duration like '60s' or '@every 1m')", raw)
	}
	if d < MinInterval {
		return 0, fmt.Errorf("poll interval %q must be at least %s", raw, MinInterval)
	}
	return d, nil
}

// cronSpec renders an interval as a robfig/cron descriptor.
func cronSpec(d time.Duration) string {
	return "@every " + d.String()
}

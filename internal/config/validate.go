package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"alertbot/internal/alert"
	"alertbot/internal/task/scheduler"
)

// Validate checks a decoded config for values the strict decoder cannot
// catch. It returns every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token is required"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			add(fmt.Errorf("telegram.group_log: invalid chat id %q", g))
		}
	}

	a := cfg.Alert
	if err := scheduler.ValidateSchedule(a.PollInterval); err != nil {
		add(fmt.Errorf("alert.poll_interval: %w", err))
	}
	if a.DefaultTZ != nil {
		if err := (alert.Offset{Hours: a.DefaultTZ.Hours, Minutes: a.DefaultTZ.Minutes}).Validate(); err != nil {
			add(fmt.Errorf("alert.default_tz: %w", err))
		}
	}
	if a.LeadTime != nil && (*a.LeadTime < 0 || *a.LeadTime > alert.MaxLeadTime) {
		add(fmt.Errorf("alert.lead_time: must be in range 0 to %d, got %d", alert.MaxLeadTime, *a.LeadTime))
	}
	if _, err := alert.ParseMessage(a.Message); err != nil {
		add(fmt.Errorf("alert.message: %w", err))
	}

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 || n.RetryMax < 0 {
			add(errors.New("notifier: rate_per_sec and retry_max must be >= 0"))
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.send_timeout":    n.SendTimeout,
		} {
			_, err := ParseDurationField(path, raw)
			add(err)
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required for driver %q", s.Driver))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	return errors.Join(errs...)
}

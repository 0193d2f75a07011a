package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertbot/internal/alert"
	"alertbot/internal/config"
	"alertbot/internal/notifier"
	"alertbot/internal/storage"
	"alertbot/internal/task/scheduler"
	kit "alertbot/internal/transport"
	logx "alertbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log; 0 means unset.
func groupLogChat(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		// Section omitted: one retry with the notifier defaults.
		return notifier.Config{RetryMax: 1}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   timeout,
	}, nil
}

func alertTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ChatTarget{ChatID: cfg.Alert.ChatID, ThreadID: cfg.Alert.ThreadID}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

func defaultOffset(cfg *config.Config) alert.Offset {
	if tz := cfg.Alert.DefaultTZ; tz != nil {
		return alert.Offset{Hours: tz.Hours, Minutes: tz.Minutes}
	}
	return alert.Offset{}
}

func mapPollerConfig(cfg *config.Config, loc *time.Location) scheduler.Config {
	return scheduler.Config{Schedule: cfg.Alert.PollInterval, Location: loc}
}

// storeOptions seeds a fresh alert store from config. Persisted state
// restored later overrides lead time and default timezone.
func storeOptions(cfg *config.Config, log logx.Logger) ([]alert.Option, error) {
	tmpl, err := alert.ParseMessage(cfg.Alert.Message)
	if err != nil {
		return nil, err
	}
	off := defaultOffset(cfg)
	if err := off.Validate(); err != nil {
		return nil, fmt.Errorf("alert.default_tz: %w", err)
	}
	opts := []alert.Option{
		alert.WithLogger(log),
		alert.WithDefaultTimezone(off),
		alert.WithMessage(tmpl, cfg.Alert.Mention),
	}
	if cfg.Alert.LeadTime != nil {
		opts = append(opts, alert.WithLeadTime(*cfg.Alert.LeadTime))
	}
	return opts, nil
}

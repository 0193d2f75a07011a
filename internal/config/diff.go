package config

import (
	"reflect"
	"sort"
	"strings"

	logx "alertbot/pkg/logx"
)

// SummarizeChange lists the config sections that differ and returns log
// fields describing the new values. Secrets (the bot token) are never
// included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		!reflect.DeepEqual(ot.AllowedChatIDs, nt.AllowedChatIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Int("telegram.allowed_chat_count", len(nt.AllowedChatIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	oa, na := oldCfg.Alert, newCfg.Alert
	if !reflect.DeepEqual(oa, na) {
		changed = append(changed, "alert")
		attrs = append(attrs,
			logx.Int64("alert.chat_id", na.ChatID),
			logx.Int("alert.thread_id", na.ThreadID),
			logx.String("alert.poll_interval", strings.TrimSpace(na.PollInterval)),
			logx.Bool("alert.message_custom", strings.TrimSpace(na.Message) != ""),
			logx.Int("alert.privileged_count", len(na.PrivilegedUserIDs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.Int("notifier.retry_max", n.RetryMax),
				logx.String("notifier.send_timeout", strings.TrimSpace(n.SendTimeout)),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs,
				logx.String("storage.driver", strings.TrimSpace(s.Driver)),
				logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}

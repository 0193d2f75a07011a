package config

// Config is the on-disk configuration (JSON or YAML). Unknown keys are
// rejected so typos surface at load and reload time.
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Alert    AlertConfig     `json:"alert"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AllowedChatIDs limits commands to these group chats. Empty allows
	// every group chat.
	AllowedChatIDs []int64 `json:"allowed_chat_ids,omitempty"`
	// GroupLog is the chat id receiving warning logs, as a string so large
	// negative supergroup ids survive YAML.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// AlertConfig controls the event alert core.
//
// lead_time and default_tz seed a fresh store only; once state has been
// persisted the values changed through commands win.
type AlertConfig struct {
	// ChatID and ThreadID select where alerts are posted.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	// PollInterval is a duration ("60s") or "@every 1m". Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`

	DefaultTZ *TimezoneConfig `json:"default_tz,omitempty"`
	// LeadTime is minutes before the event. Nil means 60.
	LeadTime *int `json:"lead_time,omitempty"`

	// Message is a text/template for the alert; empty uses the built-in text.
	Message string `json:"message,omitempty"`
	// Mention is prepended to alerts, e.g. "@everyone" or a role handle.
	Mention string `json:"mention,omitempty"`

	// PrivilegedUserIDs may change events in addition to telegram owners.
	PrivilegedUserIDs []int64 `json:"privileged_user_ids,omitempty"`
}

type TimezoneConfig struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// NotifierConfig controls alert delivery. Durations are Go duration strings.
// Omitting the section uses the defaults listed per field.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec"`              // default 3
	RetryMax      int    `json:"retry_max"`                 // default 0 when the section is present
	RetryBase     string `json:"retry_base,omitempty"`      // default "500ms"
	RetryMaxDelay string `json:"retry_max_delay,omitempty"` // default "10s"
	SendTimeout   string `json:"send_timeout,omitempty"`    // default "10s"
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/alertbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

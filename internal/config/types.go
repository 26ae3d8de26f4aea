package config

// Config is the whole service configuration. It is decoded strictly: unknown
// keys are an error.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server   ServerConfig    `json:"server"`
	Upstream UpstreamConfig  `json:"upstream"`
	Line     LineConfig      `json:"line"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
	Debug    *DebugConfig    `json:"debug,omitempty"`
}

// ServerConfig controls the public HTTP listener.
//
// PublicBaseURL is the externally reachable origin used in chat menu links.
type ServerConfig struct {
	Addr            string `json:"addr"`            // default ":8000"
	PublicBaseURL   string `json:"public_base_url"` // required
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// UpstreamConfig points at the store endpoint (a single action-tagged URL).
type UpstreamConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // default "15s"
}

type LineConfig struct {
	ChannelSecret      string `json:"channel_secret"`
	ChannelAccessToken string `json:"channel_access_token"`
	APIBaseURL         string `json:"api_base_url,omitempty"`
	Timeout            string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// NotifierConfig bounds the push fan-out.
//
// Defaults: workers 4, rate_per_sec 10, send_timeout "10s".
type NotifierConfig struct {
	Workers     int    `json:"workers,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// MQTTConfig enables the optional broker ingestion path.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"` // e.g. "tcp://localhost:1883"
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic,omitempty"` // default "ht/+/reading"
	QoS      int    `json:"qos,omitempty"`
}

// StorageConfig controls the local audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db", "retention": "720h" }
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path,omitempty"`
	DSN           string `json:"dsn,omitempty"`
	BusyTimeout   string `json:"busy_timeout,omitempty"` // sqlite
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"` // cron spec, default "@hourly"
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings and errors to one chat destination.
type LoggingChat struct {
	Enabled     bool   `json:"enabled"`
	Destination string `json:"destination"`
	MinLevel    string `json:"min_level"`
	RatePerSec  int    `json:"rate_per_sec"`
}

// DebugConfig controls the metrics/pprof listener.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

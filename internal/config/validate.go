package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"htbot/internal/audit"
	"htbot/internal/mqttsource"
	"htbot/internal/notifier"
	"htbot/internal/observability/debug"
	"htbot/internal/storage"
	"htbot/internal/transport/line"
	"htbot/internal/transport/telegram"
	"htbot/internal/upstream"
	"htbot/internal/web"
	logx "htbot/pkg/logx"
)

const (
	DefaultServerAddr = ":8000"
	DefaultMQTTTopic  = "ht/+/reading"
)

// Validate reports every problem in the file at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := c.WebConfig()
	collect(err)
	_, err = c.UpstreamConfig()
	collect(err)
	_, err = c.LineConfig()
	collect(err)
	_, _, err = c.TelegramConfig()
	collect(err)
	_, err = c.NotifierConfig()
	collect(err)
	_, _, err = c.MQTTConfig()
	collect(err)
	_, _, err = c.StorageConfig()
	collect(err)
	collect(c.validateLogging())
	return errors.Join(errs...)
}

func (c *Config) WebConfig() (web.Config, error) {
	s := c.Server
	out := web.Config{
		Addr:          strings.TrimSpace(s.Addr),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(s.PublicBaseURL), "/"),
	}
	if out.Addr == "" {
		out.Addr = DefaultServerAddr
	}
	if out.PublicBaseURL == "" {
		out.PublicBaseURL = "http://localhost" + portOf(out.Addr)
	} else if err := checkHTTPURL("server.public_base_url", out.PublicBaseURL); err != nil {
		return web.Config{}, err
	}
	var err error
	if out.ReadTimeout, err = ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 15*time.Second); err != nil {
		return web.Config{}, err
	}
	if out.WriteTimeout, err = ParseDurationOrDefault("server.write_timeout", s.WriteTimeout, 60*time.Second); err != nil {
		return web.Config{}, err
	}
	if out.ShutdownTimeout, err = ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, 10*time.Second); err != nil {
		return web.Config{}, err
	}
	return out, nil
}

func (c *Config) UpstreamConfig() (upstream.Config, error) {
	base := strings.TrimSpace(c.Upstream.BaseURL)
	if base == "" {
		return upstream.Config{}, errors.New("upstream.base_url is required")
	}
	if err := checkHTTPURL("upstream.base_url", base); err != nil {
		return upstream.Config{}, err
	}
	timeout, err := ParseDurationField("upstream.timeout", c.Upstream.Timeout)
	if err != nil {
		return upstream.Config{}, err
	}
	return upstream.Config{BaseURL: base, Timeout: timeout}, nil
}

func (c *Config) LineConfig() (line.Config, error) {
	l := c.Line
	out := line.Config{
		ChannelSecret: strings.TrimSpace(l.ChannelSecret),
		AccessToken:   strings.TrimSpace(l.ChannelAccessToken),
		APIBase:       strings.TrimSpace(l.APIBaseURL),
	}
	if out.ChannelSecret == "" || out.AccessToken == "" {
		return line.Config{}, errors.New("line.channel_secret and line.channel_access_token are required")
	}
	if out.APIBase != "" {
		if err := checkHTTPURL("line.api_base_url", out.APIBase); err != nil {
			return line.Config{}, err
		}
	}
	var err error
	if out.Timeout, err = ParseDurationField("line.timeout", l.Timeout); err != nil {
		return line.Config{}, err
	}
	return out, nil
}

// TelegramConfig reports whether the Telegram transport is enabled.
func (c *Config) TelegramConfig() (telegram.Config, bool, error) {
	t := c.Telegram
	if t == nil || !t.Enabled {
		return telegram.Config{}, false, nil
	}
	token := strings.TrimSpace(t.Token)
	if token == "" {
		return telegram.Config{}, false, errors.New("telegram.token is required when telegram.enabled")
	}
	poll, err := ParseDurationField("telegram.poll_timeout", t.PollTimeout)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{Token: token, PollTimeout: poll}, true, nil
}

func (c *Config) NotifierConfig() (notifier.Config, error) {
	n := c.Notifier
	if n == nil {
		return notifier.Config{}, nil
	}
	if n.Workers < 0 || n.RatePerSec < 0 {
		return notifier.Config{}, errors.New("notifier.workers and notifier.rate_per_sec must be >= 0")
	}
	timeout, err := ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{Workers: n.Workers, RatePerSec: n.RatePerSec, SendTimeout: timeout}, nil
}

// MQTTConfig reports whether broker ingestion is enabled.
func (c *Config) MQTTConfig() (mqttsource.Config, bool, error) {
	m := c.MQTT
	if m == nil || !m.Enabled {
		return mqttsource.Config{}, false, nil
	}
	out := mqttsource.Config{
		Broker:   strings.TrimSpace(m.Broker),
		ClientID: strings.TrimSpace(m.ClientID),
		Username: m.Username,
		Password: m.Password,
		Topic:    strings.TrimSpace(m.Topic),
	}
	if out.Broker == "" {
		return mqttsource.Config{}, false, errors.New("mqtt.broker is required when mqtt.enabled")
	}
	if m.QoS < 0 || m.QoS > 2 {
		return mqttsource.Config{}, false, fmt.Errorf("mqtt.qos must be 0, 1 or 2 (got %d)", m.QoS)
	}
	out.QoS = byte(m.QoS)
	if out.Topic == "" {
		out.Topic = DefaultMQTTTopic
	}
	return out, true, nil
}

// StorageConfig returns the store and recorder settings. Both are zero when
// the section is absent.
func (c *Config) StorageConfig() (storage.Config, audit.Config, error) {
	s := c.Storage
	if s == nil {
		return storage.Config{Driver: "none"}, audit.Config{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "none":
		driver = "none"
	case "file", "sqlite", "postgres":
	default:
		return storage.Config{}, audit.Config{}, fmt.Errorf("storage.driver %q is not one of file, sqlite, postgres, none", s.Driver)
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(s.Path), DSN: strings.TrimSpace(s.DSN)}
	if driver == "postgres" && out.DSN == "" {
		return storage.Config{}, audit.Config{}, errors.New("storage.dsn is required for postgres")
	}
	var err error
	if out.BusyTimeout, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
		return storage.Config{}, audit.Config{}, err
	}
	if out.Retention, err = ParseDurationField("storage.retention", s.Retention); err != nil {
		return storage.Config{}, audit.Config{}, err
	}
	rec := audit.Config{Retention: out.Retention, PruneSchedule: strings.TrimSpace(s.PruneSchedule)}
	if rec.PruneSchedule != "" {
		if _, err := audit.ParseSchedule(rec.PruneSchedule); err != nil {
			return storage.Config{}, audit.Config{}, fmt.Errorf("storage.prune_schedule: %w", err)
		}
	}
	return out, rec, nil
}

// LoggingConfig is the only section re-applied on reload.
func (c *Config) LoggingConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:     l.Chat.Enabled,
			Destination: strings.TrimSpace(l.Chat.Destination),
			MinLevel:    l.Chat.MinLevel,
			RatePerSec:  l.Chat.RatePerSec,
		},
	}
}

func (c *Config) validateLogging() error {
	if c.Logging.Chat.Enabled && strings.TrimSpace(c.Logging.Chat.Destination) == "" {
		return errors.New("logging.chat.destination is required when logging.chat.enabled")
	}
	if c.Logging.Chat.RatePerSec < 0 {
		return errors.New("logging.chat.rate_per_sec must be >= 0")
	}
	return nil
}

// DebugConfig is disabled when the section is absent.
func (c *Config) DebugConfig() debug.Config {
	d := c.Debug
	if d == nil {
		return debug.Config{}
	}
	return debug.Config{
		Enabled:              d.Enabled,
		Addr:                 strings.TrimSpace(d.Addr),
		Token:                strings.TrimSpace(d.Token),
		AllowInsecure:        d.AllowInsecure,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}
}

func checkHTTPURL(path, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: %q is not an http(s) URL", path, raw)
	}
	return nil
}

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

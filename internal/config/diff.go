package config

import (
	"reflect"
	"strings"

	logx "htbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging them. Secrets are reported only as "set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs, logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)))
	}
	if !reflect.DeepEqual(oldCfg.Upstream, newCfg.Upstream) {
		changed = append(changed, "upstream")
		attrs = append(attrs, logx.String("upstream.timeout", newCfg.Upstream.Timeout))
	}
	if !reflect.DeepEqual(oldCfg.Line, newCfg.Line) {
		changed = append(changed, "line")
		attrs = append(attrs,
			logx.Bool("line.secret_set", strings.TrimSpace(newCfg.Line.ChannelSecret) != ""),
			logx.Bool("line.token_set", strings.TrimSpace(newCfg.Line.ChannelAccessToken) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.enabled", newCfg.Telegram != nil && newCfg.Telegram.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
	}
	if !reflect.DeepEqual(oldCfg.MQTT, newCfg.MQTT) {
		changed = append(changed, "mqtt")
		attrs = append(attrs, logx.Bool("mqtt.enabled", newCfg.MQTT != nil && newCfg.MQTT.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.Bool("debug.enabled", newCfg.Debug != nil && newCfg.Debug.Enabled))
	}
	return changed, attrs
}

// RestartRequired filters out the sections a running process re-applies.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}

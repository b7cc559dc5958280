package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wemix/headwatch/internal/alerting"
)

// Environment variables that configure an implicit telegram channel. They
// replace the BOT_TOKEN / CHAT_ID pair of earlier deployments.
const (
	EnvTelegramBotToken = EnvPrefix + "_TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = EnvPrefix + "_TELEGRAM_CHAT_ID"
)

// flagBindings maps command line flags onto config keys
var flagBindings = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"rpc-url":       "probe.rpc_url",
	"state-backend": "state.backend",
	"state-path":    "state.path",
	"interval":      "schedule.interval",
	"cron":          "schedule.cron",
}

// Loader reads configuration from defaults, a file, the environment and
// command line flags, in increasing priority.
type Loader struct {
	path  string
	flags *pflag.FlagSet
	used  string
}

// NewLoader creates a loader. An empty path searches ./headwatch.{toml,yaml}
// and $HOME/.headwatch; flags may be nil.
func NewLoader(path string, flags *pflag.FlagSet) *Loader {
	return &Loader{path: path, flags: flags}
}

// ConfigFile returns the file used by the last Load, empty if none
func (l *Loader) ConfigFile() string {
	return l.used
}

// Load builds and validates the configuration
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadUnvalidated()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated builds the configuration without validating it
func (l *Loader) LoadUnvalidated() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
		}
	} else {
		v.SetConfigName("headwatch")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.headwatch")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}
	l.used = v.ConfigFileUsed()

	if l.flags != nil {
		for flag, key := range flagBindings {
			if f := l.flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyTelegramEnv(cfg)
	return cfg, nil
}

// setDefaults registers every scalar key so environment overrides are seen
// by Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.time_format", d.Log.TimeFormat)

	v.SetDefault("probe.kind", d.Probe.Kind)
	v.SetDefault("probe.rpc_url", d.Probe.RPCURL)
	v.SetDefault("probe.timeout", d.Probe.Timeout.String())
	v.SetDefault("probe.sui.package", d.Probe.Sui.Package)
	v.SetDefault("probe.sui.module", d.Probe.Sui.Module)
	v.SetDefault("probe.sui.function", d.Probe.Sui.Function)
	v.SetDefault("probe.sui.object", d.Probe.Sui.Object)
	v.SetDefault("probe.evm.contract", d.Probe.EVM.Contract)
	v.SetDefault("probe.evm.method", d.Probe.EVM.Method)
	v.SetDefault("probe.jsonrpc.method", d.Probe.JSONRPC.Method)
	v.SetDefault("probe.jsonrpc.height_query", d.Probe.JSONRPC.HeightQuery)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("state.dsn", d.State.DSN)
	v.SetDefault("state.key", d.State.Key)
	v.SetDefault("state.reset_on_corrupt", d.State.ResetOnCorrupt)
	v.SetDefault("state.lock_timeout", d.State.LockTimeout.String())

	thresholds := make([]map[string]interface{}, len(d.Thresholds))
	for i, t := range d.Thresholds {
		thresholds[i] = map[string]interface{}{
			"name":     t.Name,
			"minutes":  t.Minutes,
			"severity": t.Severity,
			"message":  t.Message,
		}
	}
	v.SetDefault("thresholds", thresholds)

	v.SetDefault("alerting.source", d.Alerting.Source)
	v.SetDefault("alerting.notify_probe_errors", d.Alerting.NotifyProbeErrors)
	v.SetDefault("alerting.probe_error_message", d.Alerting.ProbeErrorMessage)
	v.SetDefault("alerting.resolved_message", d.Alerting.ResolvedMessage)

	v.SetDefault("schedule.interval", d.Schedule.Interval.String())
	v.SetDefault("schedule.cron", d.Schedule.Cron)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.push_url", d.Metrics.PushURL)
	v.SetDefault("metrics.job", d.Metrics.Job)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.cors_origins", d.API.CORSOrigins)
	v.SetDefault("api.jwt_secret", d.API.JWTSecret)
}

// applyTelegramEnv fills telegram credentials from the environment. Channels
// that already carry credentials are left alone; with no telegram channel
// configured and both variables set, one is added.
func applyTelegramEnv(cfg *Config) {
	token := os.Getenv(EnvTelegramBotToken)
	chatID := os.Getenv(EnvTelegramChatID)
	if token == "" && chatID == "" {
		return
	}

	found := false
	for i := range cfg.Alerting.Channels {
		ch := &cfg.Alerting.Channels[i]
		if ch.Type != alerting.ChannelTelegram {
			continue
		}
		found = true
		if ch.Config == nil {
			ch.Config = map[string]interface{}{}
		}
		if _, ok := ch.Config["bot_token"]; !ok && token != "" {
			ch.Config["bot_token"] = token
		}
		if _, ok := ch.Config["chat_id"]; !ok && chatID != "" {
			ch.Config["chat_id"] = chatID
		}
	}

	if !found && token != "" && chatID != "" {
		cfg.Alerting.Channels = append(cfg.Alerting.Channels, alerting.ChannelConfig{
			Type:   alerting.ChannelTelegram,
			Name:   alerting.ChannelTelegram,
			Config: map[string]interface{}{"bot_token": token, "chat_id": chatID},
		})
	}
}

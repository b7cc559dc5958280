package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/height"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate keeps the search path and telegram variables out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvTelegramBotToken, "")
	t.Setenv(EnvTelegramChatID, "")
}

const tomlConfig = `
[log]
level = "debug"
format = "console"

[probe]
kind = "jsonrpc"
rpc_url = "http://127.0.0.1:26657"
timeout = "5s"

[probe.headers]
X-Api-Key = "abc"

[probe.jsonrpc]
method = "status"
params = ["a", 1]
height_query = ".sync_info.latest_block_height"

[state]
backend = "sqlite"
path = "/tmp/headwatch.db"
reset_on_corrupt = true

[[thresholds]]
name = "slow"
minutes = 5
severity = "warning"
message = "slow at {{.Height}}"

[[thresholds]]
name = "dead"
minutes = 15
severity = "critical"
message = "dead at {{.Height}}"

[alerting]
notify_probe_errors = false

[[alerting.channels]]
type = "slack"
name = "ops"
[alerting.channels.config]
webhook_url = "https://hooks.slack.com/services/T/B/X"

[[alerting.channels]]
type = "log"
disabled = true

[schedule]
cron = "*/5 * * * *"

[metrics]
enabled = true
listen = ":9500"
`

func TestLoader_TOML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "headwatch.toml", tomlConfig)

	loader := NewLoader(path, nil)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, path, loader.ConfigFile())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "rfc3339", cfg.Log.TimeFormat, "unset keys keep defaults")

	assert.Equal(t, height.KindJSONRPC, cfg.Probe.Kind)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout())
	assert.Len(t, cfg.Probe.Headers, 1)
	assert.Equal(t, "status", cfg.Probe.JSONRPC.Method)
	assert.Len(t, cfg.Probe.JSONRPC.Params, 2)
	assert.Equal(t, ".sync_info.latest_block_height", cfg.Probe.JSONRPC.HeightQuery)

	assert.Equal(t, "sqlite", cfg.State.Backend)
	assert.True(t, cfg.State.ResetOnCorrupt)

	require.Len(t, cfg.Thresholds, 2)
	assert.Equal(t, ThresholdConfig{Name: "dead", Minutes: 15, Severity: "critical", Message: "dead at {{.Height}}"}, cfg.Thresholds[1])

	assert.False(t, cfg.Alerting.NotifyProbeErrors)
	require.Len(t, cfg.Alerting.Channels, 2)
	assert.Equal(t, alerting.ChannelSlack, cfg.Alerting.Channels[0].Type)
	assert.False(t, cfg.Alerting.Channels[0].Disabled)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Alerting.Channels[0].Config["webhook_url"])
	assert.True(t, cfg.Alerting.Channels[1].Disabled)

	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Cron)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9500", cfg.Metrics.Listen)
}

func TestLoader_YAML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "headwatch.yaml", `
probe:
  kind: evm
  rpc_url: https://rpc.example.com
  evm:
    contract: "0x00000000000000000000000000000000000000aa"
schedule:
  interval: 2m
api:
  enabled: true
  cors_origins: ["https://ops.example.com"]
`)

	cfg, err := NewLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, height.KindEVM, cfg.Probe.Kind)
	assert.Equal(t, "headHeight()", cfg.Probe.EVM.Method)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.Interval.Std())
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.API.CORSOrigins)
	assert.Len(t, cfg.Thresholds, 3, "default thresholds apply when none are configured")
}

func TestLoader_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	loader := NewLoader("", nil)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Empty(t, loader.ConfigFile())
	assert.Equal(t, DefaultConfig().Probe, cfg.Probe)
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.toml"), nil).Load()
	assert.Error(t, err)
}

func TestLoader_InvalidFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "headwatch.toml", "[probe]\nkind = \"carrier-pigeon\"\n")

	_, err := NewLoader(path, nil).Load()
	assert.ErrorIs(t, err, ErrInvalid)

	cfg, err := NewLoader(path, nil).LoadUnvalidated()
	require.NoError(t, err)
	assert.Equal(t, "carrier-pigeon", cfg.Probe.Kind)
}

func TestLoader_EnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "headwatch.toml", "[log]\nlevel = \"debug\"\n")

	t.Setenv("HEADWATCH_LOG_LEVEL", "warn")
	t.Setenv("HEADWATCH_PROBE_RPC_URL", "https://fullnode.mainnet.sui.io:443")
	t.Setenv("HEADWATCH_SCHEDULE_INTERVAL", "30s")
	t.Setenv("HEADWATCH_METRICS_ENABLED", "true")
	t.Setenv("HEADWATCH_API_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := NewLoader(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level, "environment overrides the file")
	assert.Equal(t, "https://fullnode.mainnet.sui.io:443", cfg.Probe.RPCURL)
	assert.Equal(t, 30*time.Second, cfg.Schedule.Interval.Std())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.API.CORSOrigins)
}

func TestLoader_Flags(t *testing.T) {
	isolate(t)
	t.Setenv("HEADWATCH_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("state-path", "", "")
	flags.Duration("interval", 0, "")
	require.NoError(t, flags.Parse([]string{"--log-level=error", "--interval=45s"}))

	cfg, err := NewLoader(writeConfig(t, "headwatch.toml", ""), flags).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level, "flags override the environment")
	assert.Equal(t, 45*time.Second, cfg.Schedule.Interval.Std())
	assert.Equal(t, "monitor_state.json", cfg.State.Path, "unchanged flags do not override defaults")
}

func TestLoader_TelegramEnv(t *testing.T) {
	t.Run("adds channel", func(t *testing.T) {
		isolate(t)
		t.Setenv(EnvTelegramBotToken, "123:abc")
		t.Setenv(EnvTelegramChatID, "-1001")

		cfg, err := NewLoader(writeConfig(t, "headwatch.toml", ""), nil).Load()
		require.NoError(t, err)
		require.Len(t, cfg.Alerting.Channels, 1)
		ch := cfg.Alerting.Channels[0]
		assert.Equal(t, alerting.ChannelTelegram, ch.Type)
		assert.Equal(t, "123:abc", ch.Config["bot_token"])
		assert.Equal(t, "-1001", ch.Config["chat_id"])
	})

	t.Run("fills configured channel", func(t *testing.T) {
		isolate(t)
		t.Setenv(EnvTelegramBotToken, "from-env")
		path := writeConfig(t, "headwatch.toml", `
[[alerting.channels]]
type = "telegram"
name = "ops"
[alerting.channels.config]
chat_id = "42"
`)

		cfg, err := NewLoader(path, nil).Load()
		require.NoError(t, err)
		require.Len(t, cfg.Alerting.Channels, 1)
		assert.Equal(t, "from-env", cfg.Alerting.Channels[0].Config["bot_token"])
		assert.Equal(t, "42", cfg.Alerting.Channels[0].Config["chat_id"])
	})

	t.Run("token alone adds nothing", func(t *testing.T) {
		isolate(t)
		t.Setenv(EnvTelegramBotToken, "123:abc")

		cfg, err := NewLoader(writeConfig(t, "headwatch.toml", ""), nil).Load()
		require.NoError(t, err)
		assert.Empty(t, cfg.Alerting.Channels)
	})
}

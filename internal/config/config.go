// Package config loads, validates and renders headwatch configuration.
package config

import (
	"time"

	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/height"
	"github.com/wemix/headwatch/internal/metrics"
	"github.com/wemix/headwatch/internal/runner"
	"github.com/wemix/headwatch/internal/state"
)

// Default configuration values
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogTimeFormat = "rfc3339"
	DefaultAPIListen     = ":8080"
	EnvPrefix            = "HEADWATCH"
)

// Config holds all configuration for headwatch
type Config struct {
	Log        LogConfig         `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
	Probe      ProbeConfig       `mapstructure:"probe" toml:"probe" yaml:"probe" json:"probe"`
	State      StateConfig       `mapstructure:"state" toml:"state" yaml:"state" json:"state"`
	Thresholds []ThresholdConfig `mapstructure:"thresholds" toml:"thresholds" yaml:"thresholds" json:"thresholds"`
	Alerting   AlertingConfig    `mapstructure:"alerting" toml:"alerting" yaml:"alerting" json:"alerting"`
	Schedule   ScheduleConfig    `mapstructure:"schedule" toml:"schedule" yaml:"schedule" json:"schedule"`
	Metrics    MetricsConfig     `mapstructure:"metrics" toml:"metrics" yaml:"metrics" json:"metrics"`
	API        APIConfig         `mapstructure:"api" toml:"api" yaml:"api" json:"api"`
}

// LogConfig configures pkg/logger
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level" yaml:"level" json:"level"`
	Format     string `mapstructure:"format" toml:"format" yaml:"format" json:"format"`
	TimeFormat string `mapstructure:"time_format" toml:"time_format" yaml:"time_format" json:"time_format"`
}

// ProbeConfig selects how the head height is read
type ProbeConfig struct {
	Kind    string            `mapstructure:"kind" toml:"kind" yaml:"kind" json:"kind"`
	RPCURL  string            `mapstructure:"rpc_url" toml:"rpc_url" yaml:"rpc_url" json:"rpc_url"`
	Headers map[string]string `mapstructure:"headers" toml:"headers,omitempty" yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout Duration          `mapstructure:"timeout" toml:"timeout" yaml:"timeout" json:"timeout"`
	Sui     SuiConfig         `mapstructure:"sui" toml:"sui" yaml:"sui" json:"sui"`
	EVM     EVMConfig         `mapstructure:"evm" toml:"evm" yaml:"evm" json:"evm"`
	JSONRPC JSONRPCConfig     `mapstructure:"jsonrpc" toml:"jsonrpc" yaml:"jsonrpc" json:"jsonrpc"`
}

// SuiConfig names the Move view function returning the head height
type SuiConfig struct {
	Package  string `mapstructure:"package" toml:"package" yaml:"package" json:"package"`
	Module   string `mapstructure:"module" toml:"module" yaml:"module" json:"module"`
	Function string `mapstructure:"function" toml:"function" yaml:"function" json:"function"`
	Object   string `mapstructure:"object" toml:"object" yaml:"object" json:"object"`
}

// EVMConfig names the contract view function returning the head height
type EVMConfig struct {
	Contract string `mapstructure:"contract" toml:"contract" yaml:"contract" json:"contract"`
	Method   string `mapstructure:"method" toml:"method" yaml:"method" json:"method"`
}

// JSONRPCConfig describes an arbitrary JSON-RPC call and a jq query over its result
type JSONRPCConfig struct {
	Method      string        `mapstructure:"method" toml:"method" yaml:"method" json:"method"`
	Params      []interface{} `mapstructure:"params" toml:"params,omitempty" yaml:"params,omitempty" json:"params,omitempty"`
	HeightQuery string        `mapstructure:"height_query" toml:"height_query" yaml:"height_query" json:"height_query"`
}

// StateConfig selects the state backend
type StateConfig struct {
	Backend        string   `mapstructure:"backend" toml:"backend" yaml:"backend" json:"backend"`
	Path           string   `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
	DSN            string   `mapstructure:"dsn" toml:"dsn,omitempty" yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Key            string   `mapstructure:"key" toml:"key" yaml:"key" json:"key"`
	ResetOnCorrupt bool     `mapstructure:"reset_on_corrupt" toml:"reset_on_corrupt" yaml:"reset_on_corrupt" json:"reset_on_corrupt"`
	LockTimeout    Duration `mapstructure:"lock_timeout" toml:"lock_timeout" yaml:"lock_timeout" json:"lock_timeout"`
}

// ThresholdConfig is one escalation step
type ThresholdConfig struct {
	Name     string `mapstructure:"name" toml:"name" yaml:"name" json:"name"`
	Minutes  int    `mapstructure:"minutes" toml:"minutes" yaml:"minutes" json:"minutes"`
	Severity string `mapstructure:"severity" toml:"severity" yaml:"severity" json:"severity"`
	Message  string `mapstructure:"message" toml:"message" yaml:"message" json:"message"`
}

// AlertingConfig configures message texts and channels
type AlertingConfig struct {
	Source            string                   `mapstructure:"source" toml:"source" yaml:"source" json:"source"`
	NotifyProbeErrors bool                     `mapstructure:"notify_probe_errors" toml:"notify_probe_errors" yaml:"notify_probe_errors" json:"notify_probe_errors"`
	ProbeErrorMessage string                   `mapstructure:"probe_error_message" toml:"probe_error_message" yaml:"probe_error_message" json:"probe_error_message"`
	ResolvedMessage   string                   `mapstructure:"resolved_message" toml:"resolved_message" yaml:"resolved_message" json:"resolved_message"`
	Channels          []alerting.ChannelConfig `mapstructure:"channels" toml:"channels" yaml:"channels" json:"channels"`
}

// ScheduleConfig configures the watch loop
type ScheduleConfig struct {
	Interval Duration `mapstructure:"interval" toml:"interval" yaml:"interval" json:"interval"`
	Cron     string   `mapstructure:"cron" toml:"cron" yaml:"cron" json:"cron"`
}

// MetricsConfig configures Prometheus export
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" toml:"listen" yaml:"listen" json:"listen"`
	Path    string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
	PushURL string `mapstructure:"push_url" toml:"push_url" yaml:"push_url" json:"push_url"`
	Job     string `mapstructure:"job" toml:"job" yaml:"job" json:"job"`
}

// APIConfig configures the status API
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	Listen      string   `mapstructure:"listen" toml:"listen" yaml:"listen" json:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	JWTSecret   string   `mapstructure:"jwt_secret" toml:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty"`
}

// DefaultConfig returns a Config for the Sui testnet light client
func DefaultConfig() *Config {
	thresholds := escalationDefaults()

	return &Config{
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			TimeFormat: DefaultLogTimeFormat,
		},
		Probe: ProbeConfig{
			Kind:    height.KindSui,
			RPCURL:  height.DefaultSuiRPCURL,
			Timeout: Duration(height.DefaultTimeout),
			Sui: SuiConfig{
				Package:  height.DefaultSuiPackage,
				Module:   height.DefaultSuiModule,
				Function: height.DefaultSuiFunction,
				Object:   height.DefaultSuiObject,
			},
			EVM: EVMConfig{
				Method: height.DefaultEVMMethod,
			},
			JSONRPC: JSONRPCConfig{
				HeightQuery: ".",
			},
		},
		State: StateConfig{
			Backend:     state.BackendFile,
			Path:        state.DefaultPath,
			Key:         state.DefaultKey,
			LockTimeout: Duration(state.DefaultLockTimeout),
		},
		Thresholds: thresholds,
		Alerting: AlertingConfig{
			Source:            "headwatch",
			NotifyProbeErrors: true,
			ProbeErrorMessage: alerting.DefaultProbeErrorMessage,
			ResolvedMessage:   alerting.DefaultResolvedMessage,
			Channels:          []alerting.ChannelConfig{},
		},
		Schedule: ScheduleConfig{
			Interval: Duration(runner.DefaultInterval),
		},
		Metrics: MetricsConfig{
			Listen: metrics.DefaultListen,
			Path:   "/metrics",
			Job:    metrics.DefaultJob,
		},
		API: APIConfig{
			Listen:      DefaultAPIListen,
			CORSOrigins: []string{"*"},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// ProbeTimeout returns the per-probe timeout
func (c *Config) ProbeTimeout() time.Duration {
	return c.Probe.Timeout.Std()
}

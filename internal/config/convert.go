package config

import (
	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/height"
	"github.com/wemix/headwatch/internal/runner"
	"github.com/wemix/headwatch/internal/state"
	"github.com/wemix/headwatch/pkg/logger"
)

func escalationDefaults() []ThresholdConfig {
	defaults := escalation.DefaultThresholds()
	out := make([]ThresholdConfig, len(defaults))
	for i, t := range defaults {
		out[i] = ThresholdConfig{
			Name:     t.Name,
			Minutes:  t.StallMinutes,
			Severity: string(t.Severity),
			Message:  t.Message,
		}
	}
	return out
}

// EscalationThresholds converts the configured thresholds
func (c *Config) EscalationThresholds() []escalation.Threshold {
	out := make([]escalation.Threshold, len(c.Thresholds))
	for i, t := range c.Thresholds {
		severity := escalation.Severity(t.Severity)
		if severity == "" {
			severity = escalation.SeverityWarning
		}
		out[i] = escalation.Threshold{
			Name:         t.Name,
			StallMinutes: t.Minutes,
			Severity:     severity,
			Message:      t.Message,
		}
	}
	return out
}

// LoggerOptions converts the log section
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		TimeFormat: c.Log.TimeFormat,
	}
}

// ProbeOptions converts the probe section
func (c *Config) ProbeOptions() height.Options {
	return height.Options{
		Kind:    c.Probe.Kind,
		RPCURL:  c.Probe.RPCURL,
		Headers: c.Probe.Headers,
		Timeout: c.Probe.Timeout.Std(),
		Sui: height.SuiOptions{
			Package:  c.Probe.Sui.Package,
			Module:   c.Probe.Sui.Module,
			Function: c.Probe.Sui.Function,
			Object:   c.Probe.Sui.Object,
		},
		EVM: height.EVMOptions{
			Contract: c.Probe.EVM.Contract,
			Method:   c.Probe.EVM.Method,
		},
		JSONRPC: height.JSONRPCOptions{
			Method: c.Probe.JSONRPC.Method,
			Params: c.Probe.JSONRPC.Params,
			Query:  c.Probe.JSONRPC.HeightQuery,
		},
	}
}

// StateOptions converts the state section
func (c *Config) StateOptions() state.Options {
	return state.Options{
		Backend:        c.State.Backend,
		Path:           c.State.Path,
		DSN:            c.State.DSN,
		Key:            c.State.Key,
		ResetOnCorrupt: c.State.ResetOnCorrupt,
		LockTimeout:    c.State.LockTimeout.Std(),
	}
}

// FormatterOptions converts the message overrides
func (c *Config) FormatterOptions() alerting.FormatterOptions {
	return alerting.FormatterOptions{
		Source:            c.Alerting.Source,
		ProbeErrorMessage: c.Alerting.ProbeErrorMessage,
		ResolvedMessage:   c.Alerting.ResolvedMessage,
	}
}

// RunnerOptions converts the settings used by each cycle
func (c *Config) RunnerOptions() runner.Options {
	return runner.Options{
		ProbeTimeout:      c.Probe.Timeout.Std(),
		NotifyProbeErrors: c.Alerting.NotifyProbeErrors,
	}
}

// ScheduleOptions converts the schedule section
func (c *Config) ScheduleOptions() runner.ScheduleOptions {
	return runner.ScheduleOptions{
		Interval: c.Schedule.Interval.Std(),
		Cron:     c.Schedule.Cron,
	}
}

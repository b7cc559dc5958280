package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gorhill/cronexpr"

	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/height"
	"github.com/wemix/headwatch/internal/state"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// ValidationRule represents a configuration validation rule
type ValidationRule interface {
	Name() string
	Validate(cfg *Config) error
}

// Validator validates configuration
type Validator struct {
	rules []ValidationRule
}

// NewValidator creates a validator with the default rules
func NewValidator() *Validator {
	return &Validator{
		rules: []ValidationRule{
			&logRule{},
			&probeRule{},
			&stateRule{},
			&thresholdRule{},
			&alertingRule{},
			&scheduleRule{},
			&listenRule{},
		},
	}
}

// AddRule adds a custom validation rule
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate runs every rule and reports all failures at once
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalid)
	}

	var problems []string
	for _, rule := range v.rules {
		if err := rule.Validate(cfg); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", rule.Name(), err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n%s", ErrInvalid, strings.Join(problems, "\n"))
	}
	return nil
}

type logRule struct{}

func (r *logRule) Name() string { return "log" }

func (r *logRule) Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", cfg.Log.Format)
	}
	return nil
}

type probeRule struct{}

func (r *probeRule) Name() string { return "probe" }

func (r *probeRule) Validate(cfg *Config) error {
	p := cfg.Probe
	if p.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if u, err := url.Parse(p.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("rpc_url %q is not an absolute URL", p.RPCURL)
	}
	if p.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}

	switch p.Kind {
	case "", height.KindSui:
		if p.Sui.Package == "" || p.Sui.Object == "" {
			return errors.New("sui.package and sui.object are required")
		}
	case height.KindEVM:
		if p.EVM.Contract == "" {
			return errors.New("evm.contract is required")
		}
	case height.KindJSONRPC:
		if p.JSONRPC.Method == "" {
			return errors.New("jsonrpc.method is required")
		}
	default:
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	return nil
}

type stateRule struct{}

func (r *stateRule) Name() string { return "state" }

func (r *stateRule) Validate(cfg *Config) error {
	s := cfg.State
	switch s.Backend {
	case "", state.BackendFile, state.BackendMemory:
	case state.BackendSqlite:
		if s.Path == "" && s.DSN == "" {
			return errors.New("sqlite backend needs path or dsn")
		}
	case state.BackendPgsql:
		if s.DSN == "" {
			return errors.New("pgsql backend needs dsn")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.LockTimeout < 0 {
		return errors.New("lock_timeout cannot be negative")
	}
	return nil
}

type thresholdRule struct{}

func (r *thresholdRule) Name() string { return "thresholds" }

func (r *thresholdRule) Validate(cfg *Config) error {
	thresholds := cfg.EscalationThresholds()
	if err := escalation.ValidateThresholds(thresholds); err != nil {
		return err
	}
	for _, t := range thresholds {
		switch t.Severity {
		case escalation.SeverityInfo, escalation.SeverityWarning, escalation.SeverityError, escalation.SeverityCritical:
		default:
			return fmt.Errorf("%s: unknown severity %q", t.Name, t.Severity)
		}
	}
	// parse every template now rather than when the alert fires
	if _, err := alerting.NewFormatter(thresholds, cfg.FormatterOptions()); err != nil {
		return err
	}
	return nil
}

type alertingRule struct{}

func (r *alertingRule) Name() string { return "alerting" }

func (r *alertingRule) Validate(cfg *Config) error {
	seen := make(map[string]bool)
	for i, ch := range cfg.Alerting.Channels {
		switch ch.Type {
		case alerting.ChannelTelegram, alerting.ChannelSlack, alerting.ChannelDiscord,
			alerting.ChannelWebhook, alerting.ChannelEmail, alerting.ChannelLog:
		default:
			return fmt.Errorf("channel %d: unknown type %q", i, ch.Type)
		}
		if ch.Name != "" {
			if seen[ch.Name] {
				return fmt.Errorf("duplicate channel name %q", ch.Name)
			}
			seen[ch.Name] = true
		}
	}
	return nil
}

type scheduleRule struct{}

func (r *scheduleRule) Name() string { return "schedule" }

func (r *scheduleRule) Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" {
		if _, err := cronexpr.Parse(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", cfg.Schedule.Cron, err)
		}
		return nil
	}
	if cfg.Schedule.Interval < 0 {
		return errors.New("interval cannot be negative")
	}
	return nil
}

type listenRule struct{}

func (r *listenRule) Name() string { return "listen" }

func (r *listenRule) Validate(cfg *Config) error {
	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
	}
	if cfg.Metrics.PushURL != "" {
		if u, err := url.Parse(cfg.Metrics.PushURL); err != nil || u.Scheme == "" {
			return fmt.Errorf("metrics.push_url %q is not an absolute URL", cfg.Metrics.PushURL)
		}
	}
	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen: %w", err)
		}
		if cfg.Metrics.Enabled && cfg.API.Listen == cfg.Metrics.Listen {
			return fmt.Errorf("api and metrics cannot share %s", cfg.API.Listen)
		}
	}
	return nil
}

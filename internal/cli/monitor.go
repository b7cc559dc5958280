package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/alerting"
	"github.com/wemix/headwatch/internal/config"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/height"
	"github.com/wemix/headwatch/internal/runner"
	"github.com/wemix/headwatch/internal/state"
	"github.com/wemix/headwatch/pkg/logger"
)

// monitor bundles the components of one configured pipeline
type monitor struct {
	provider height.Provider
	store    state.Store
	codec    *state.Codec
	notifier *alerting.Notifier
	runner   *runner.Runner
	logger   *logger.Logger
}

// buildParts converts the escalation and message sections
func buildParts(cfg *config.Config) (*escalation.Engine, *alerting.Formatter, error) {
	thresholds := cfg.EscalationThresholds()
	engine, err := escalation.NewEngine(thresholds)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	formatter, err := alerting.NewFormatter(thresholds, cfg.FormatterOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid message templates: %w", err)
	}
	return engine, formatter, nil
}

// openStore opens the configured state backend with a codec for the
// configured thresholds
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (state.Store, *state.Codec, error) {
	codec := state.NewCodecFor(cfg.EscalationThresholds())
	store, err := state.Open(ctx, cfg.StateOptions(), codec, log)
	if err != nil {
		return nil, nil, err
	}
	return store, codec, nil
}

// newMonitor wires provider, store, notifier and runner. With dryRun the
// persisted state is copied into memory and messages are only logged.
func newMonitor(ctx context.Context, cfg *config.Config, log *logger.Logger, dryRun bool) (*monitor, error) {
	engine, formatter, err := buildParts(cfg)
	if err != nil {
		return nil, err
	}

	store, codec, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	var notifier *alerting.Notifier
	if dryRun {
		current, err := store.Load(ctx)
		store.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		store = state.NewMemoryStoreWith(current)
		notifier = alerting.NewNotifier(log, alerting.NewLogChannel("dry-run", log))
	} else {
		notifier, err = alerting.NewNotifierFromConfig(cfg.Alerting.Channels, log)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to configure notifications: %w", err)
		}
	}

	provider, err := height.NewProvider(ctx, cfg.ProbeOptions(), log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create height probe: %w", err)
	}

	r := runner.New(provider, store, engine, formatter, notifier, log, cfg.RunnerOptions())

	return &monitor{
		provider: provider,
		store:    store,
		codec:    codec,
		notifier: notifier,
		runner:   r,
		logger:   log,
	}, nil
}

// apply swaps thresholds, templates and channels from a reloaded config
func (m *monitor) apply(cfg *config.Config) error {
	engine, formatter, err := buildParts(cfg)
	if err != nil {
		return err
	}
	channels, err := alerting.BuildChannels(cfg.Alerting.Channels, m.logger)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}

	m.runner.Reload(engine, formatter)
	m.codec.SetThresholds(engine.Thresholds())
	m.notifier.SetChannels(channels)
	return nil
}

// Close releases the probe and the store
func (m *monitor) Close() {
	if err := height.Close(m.provider); err != nil {
		m.logger.Warn("failed to close height probe", zap.Error(err))
	}
	if err := m.store.Close(); err != nil {
		m.logger.Warn("failed to close state store", zap.Error(err))
	}
}

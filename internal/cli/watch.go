package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/api"
	"github.com/wemix/headwatch/internal/config"
	"github.com/wemix/headwatch/internal/metrics"
	"github.com/wemix/headwatch/internal/runner"
	"github.com/wemix/headwatch/pkg/logger"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers
const shutdownTimeout = 10 * time.Second

// NewWatchCommand creates the watch command
func NewWatchCommand(opts *rootOptions) *cobra.Command {
	var noReload bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run monitor cycles until interrupted",
		Long: `Run a cycle immediately and then on schedule.interval (or schedule.cron)
until SIGINT or SIGTERM. Cycles never overlap.

When enabled, Prometheus metrics are served on metrics.listen and the status
API on api.listen. Edits to the config file are picked up without a restart
for thresholds, messages and notification channels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cfg, loader, log, !noReload)
		},
	}

	cmd.Flags().Duration("interval", 0, "Override schedule.interval")
	cmd.Flags().String("cron", "", "Override schedule.cron")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "Do not watch the config file for changes")

	return cmd
}

// runWatch serves until ctx is cancelled
func runWatch(ctx context.Context, cfg *config.Config, loader *config.Loader, log *logger.Logger, reload bool) error {
	mon, err := newMonitor(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer mon.Close()

	collector := metrics.NewCollector()
	mon.runner.SetCollector(collector)

	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter(collector, cfg.Metrics.Listen, cfg.Metrics.Path, log)
		if err := exporter.Start(); err != nil {
			return err
		}
		defer shutdown(log, "metrics exporter", exporter.Stop)
	}

	if cfg.API.Enabled {
		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(mon.runner, api.Options{
			Listen:      cfg.API.Listen,
			CORSOrigins: cfg.API.CORSOrigins,
			JWTSecret:   cfg.API.JWTSecret,
			Version:     Version,
		}, log)
		if err := server.Start(); err != nil {
			return err
		}
		defer shutdown(log, "API server", server.Stop)
	}

	scheduler, err := runner.NewScheduler(mon.runner, cfg.ScheduleOptions(), log)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var updates <-chan config.Update
	if reload && loader.ConfigFile() != "" {
		watcher, err := config.NewWatcher(loader, log)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
		updates = watcher.Updates()
	}

	log.Info("headwatch started",
		zap.String("probe", cfg.Probe.Kind),
		zap.String("rpc_url", cfg.Probe.RPCURL),
		zap.String("state", cfg.State.Backend),
		zap.Int("channels", len(mon.notifier.Channels())))

	current := cfg
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case u := <-updates:
			if u.Error != nil {
				log.Error("keeping previous configuration", zap.Error(u.Error))
				continue
			}
			if err := mon.apply(u.Config); err != nil {
				log.Error("failed to apply reloaded configuration", zap.Error(err))
				continue
			}
			for _, section := range restartRequired(current, u.Config) {
				log.Warn("change takes effect after restart", zap.String("section", section))
			}
			current = u.Config
			log.Info("applied reloaded configuration",
				zap.Int("thresholds", len(current.Thresholds)),
				zap.Int("channels", len(mon.notifier.Channels())))
		}
	}
}

// restartRequired lists changed sections that are not applied on reload
func restartRequired(old, updated *config.Config) []string {
	var sections []string
	check := func(name string, a, b interface{}) {
		if !reflect.DeepEqual(a, b) {
			sections = append(sections, name)
		}
	}
	check("log", old.Log, updated.Log)
	check("probe", old.Probe, updated.Probe)
	check("state", old.State, updated.State)
	check("schedule", old.Schedule, updated.Schedule)
	check("metrics", old.Metrics, updated.Metrics)
	check("api", old.API, updated.API)
	check("alerting.notify_probe_errors", old.Alerting.NotifyProbeErrors, updated.Alerting.NotifyProbeErrors)
	return sections
}

func shutdown(log *logger.Logger, what string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Warn("failed to stop "+what, zap.Error(err))
	}
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/metrics"
	"github.com/wemix/headwatch/internal/runner"
)

// pushTimeout bounds the Pushgateway request after a check
const pushTimeout = 10 * time.Second

// NewCheckCommand creates the check command
func NewCheckCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one monitor cycle",
		Long: `Probe the head height once, update the escalation state and send any due
notifications. This is the entry point for cron:

  * * * * * headwatch check --config /etc/headwatch.toml

With --dry-run the stored state is read but never written, and messages are
logged instead of sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			mon, err := newMonitor(ctx, cfg, log, dryRun)
			if err != nil {
				return err
			}
			defer mon.Close()

			var collector *metrics.Collector
			if cfg.Metrics.PushURL != "" && !dryRun {
				collector = metrics.NewCollector()
				mon.runner.SetCollector(collector)
			}

			res, runErr := mon.runner.RunOnce(ctx)
			if runErr == nil {
				printResult(cmd.OutOrStdout(), res, dryRun)
			}

			if collector != nil {
				pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
				defer cancel()
				grouping := map[string]string{"instance": cfg.Alerting.Source}
				if err := metrics.Push(pushCtx, collector, cfg.Metrics.PushURL, cfg.Metrics.Job, grouping); err != nil {
					log.Error("failed to push metrics", zap.Error(err))
				}
			}

			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not persist state or send notifications")

	return cmd
}

// printResult writes a one-line summary of a cycle
func printResult(w io.Writer, res *runner.Result, dryRun bool) {
	height := "unavailable"
	if res.Observed != nil {
		height = fmt.Sprintf("%d", *res.Observed)
	}

	events := "none"
	if len(res.Events) > 0 {
		names := make([]string, len(res.Events))
		for i, ev := range res.Events {
			names[i] = ev.String()
		}
		events = strings.Join(names, ",")
	}

	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	fmt.Fprintf(w, "%sheight=%s level=%s stalled=%dm events=%s\n",
		prefix, height, res.LevelName, res.ElapsedMinutes, events)
}

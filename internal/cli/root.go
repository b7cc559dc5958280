// Package cli implements the headwatch command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/config"
	"github.com/wemix/headwatch/pkg/logger"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
}

// NewRootCommand creates the root command for headwatch
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "headwatch",
		Short: "Light client head height monitor",
		Long: `Headwatch watches the head height reported by a light client and escalates
through configured stall thresholds when it stops advancing. A resolution
message is sent once the height moves again after an alert.

Run "headwatch check" from cron, or "headwatch watch" as a long-running service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./headwatch.toml or ~/.headwatch/headwatch.toml)")
	flags.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "Log format (json, console)")
	flags.String("rpc-url", "", "Override probe.rpc_url")
	flags.String("state-backend", "", "Override state.backend (file, sqlite, pgsql, memory)")
	flags.String("state-path", "", "Override state.path")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewAPICommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loader builds a config loader honoring --config and the override flags
func (o *rootOptions) loader(cmd *cobra.Command) *config.Loader {
	return config.NewLoader(o.configPath, cmd.Flags())
}

// load reads and validates the configuration and builds the logger
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *config.Loader, *logger.Logger, error) {
	loader := o.loader(cmd)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if path := loader.ConfigFile(); path != "" {
		log.Debug("loaded configuration", zap.String("path", path))
	}
	return cfg, loader, log, nil
}

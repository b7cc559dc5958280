package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wemix/headwatch/internal/config"
	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/state"
)

// NewStateCommand creates the state command
func NewStateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted monitor state",
	}

	cmd.AddCommand(newStateShowCommand(opts))
	cmd.AddCommand(newStateResetCommand(opts))

	return cmd
}

func newStateShowCommand(opts *rootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the persisted state and escalation level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			store, codec, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			current, err := store.Load(ctx)
			if err != nil {
				return err
			}

			if raw {
				data, err := codec.Encode(current)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			engine, err := escalation.NewEngine(cfg.EscalationThresholds())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), cfg, engine, current, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the stored record as JSON")

	return cmd
}

func newStateResetCommand(opts *rootOptions) *cobra.Command {
	var noBackup bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the persisted state with the first-run state",
		Long: `Overwrite the persisted state with the first-run state: height 0, no
recorded update and no alerts sent. Use this to recover from a corrupt
state record. The file backend keeps a timestamped copy of the previous
record unless --no-backup is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			store, _, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			if fs, ok := store.(*state.FileStore); ok && !noBackup {
				backupPath, err := fs.Backup()
				if err != nil {
					return err
				}
				if backupPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "previous state saved to %s\n", backupPath)
				}
			}

			// Save rather than Update so a corrupt record can be replaced
			if err := store.Save(ctx, escalation.DefaultState()); err != nil {
				return fmt.Errorf("failed to reset state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state reset (%s)\n", describeStore(cfg))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Do not keep a copy of the previous state file")

	return cmd
}

func describeStore(cfg *config.Config) string {
	switch cfg.State.Backend {
	case state.BackendPgsql:
		return "pgsql key " + cfg.State.Key
	case state.BackendSqlite:
		return "sqlite " + cfg.State.Path
	case state.BackendMemory:
		return "memory"
	default:
		return cfg.State.Path
	}
}

func printState(w io.Writer, cfg *config.Config, engine *escalation.Engine, s escalation.MonitorState, now time.Time) {
	fmt.Fprintf(w, "store:             %s\n", describeStore(cfg))
	fmt.Fprintf(w, "last known height: %d\n", s.LastKnownHeight)
	if s.HasUpdate() {
		fmt.Fprintf(w, "last updated at:   %s (%d minutes ago)\n",
			s.LastUpdatedAt.UTC().Format(time.RFC3339), s.ElapsedMinutes(now))
	} else {
		fmt.Fprintln(w, "last updated at:   never")
	}
	fmt.Fprintf(w, "level:             %s (%d/%d)\n", engine.LevelName(s), engine.Level(s), len(engine.Thresholds()))
	fmt.Fprintf(w, "alerts sent:       %s\n", joinOrNone(s.AlertsSent.Names()))

	var pending []string
	for _, t := range engine.Pending(s) {
		pending = append(pending, fmt.Sprintf("%s@%dm", t.Name, t.StallMinutes))
	}
	fmt.Fprintf(w, "pending:           %s\n", joinOrNone(pending))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

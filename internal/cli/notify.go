package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wemix/headwatch/internal/alerting"
)

// NewNotifyCommand creates the notify command
func NewNotifyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification channel utilities",
	}

	cmd.AddCommand(newNotifyTestCommand(opts))

	return cmd
}

func newNotifyTestCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [text]",
		Short: "Send a test message through every enabled channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			text := "Test notification from headwatch."
			if len(args) > 0 {
				text = strings.Join(args, " ")
			}

			notifier, err := alerting.NewNotifierFromConfig(cfg.Alerting.Channels, log)
			if err != nil {
				return err
			}

			var names []string
			for _, ch := range notifier.Channels() {
				if ch.IsEnabled() {
					names = append(names, ch.GetName())
				}
			}
			if len(names) == 0 {
				return errors.New("no enabled notification channels configured")
			}

			_, formatter, err := buildParts(cfg)
			if err != nil {
				return err
			}
			if err := notifier.Notify(cmd.Context(), formatter.Test(text, time.Now())); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent test message to %s\n", strings.Join(names, ", "))
			return nil
		},
	}

	return cmd
}

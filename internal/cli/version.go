package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X github.com/wemix/headwatch/internal/cli.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "headwatch version: %s\n", Version)
			fmt.Fprintf(out, "git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "go version: %s\n", runtime.Version())
		},
	}

	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wemix/headwatch/internal/config"
)

// DefaultConfigFile is written by config init when no path is given
const DefaultConfigFile = "headwatch.toml"

// NewConfigCommand creates the config command
func NewConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage headwatch configuration",
		Long:  `Create, display and validate headwatch configuration files.`,
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newConfigValidateCommand(opts))

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		template string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file",
		Long: fmt.Sprintf(`Write a configuration file with every setting at its default value.
The format follows the extension: .toml, .yaml/.yml or .json.

Available templates: %s`, strings.Join(config.Templates(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}

			cfg := config.DefaultConfig()
			if template != "" {
				var err error
				if cfg, err = config.FromTemplate(template); err != nil {
					return err
				}
			}

			if err := config.WriteFile(cfg, path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "", "Start from a preset ("+strings.Join(config.Templates(), ", ")+")")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var (
		format string
		reveal bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file, environment
variables and flags are merged. Secrets are masked unless --reveal is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loader(cmd).LoadUnvalidated()
			if err != nil {
				return err
			}
			if !reveal {
				cfg = cfg.Redacted()
			}

			data, err := config.Render(cfg, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			if !strings.HasSuffix(string(data), "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", config.FormatTOML, "Output format (toml, yaml, json)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets in clear text")

	return cmd
}

func newConfigValidateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := opts.loader(cmd)
			if _, err := loader.Load(); err != nil {
				return err
			}

			source := loader.ConfigFile()
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (%s)\n", source)
			return nil
		},
	}

	return cmd
}

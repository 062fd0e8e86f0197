package root

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/relay"
)

// newValidateCommand returns the command that checks a configuration without
// serving it.
func newValidateCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a relay configuration",
		Long: `Validate a relay configuration without starting the relay.

The configuration file and the flags are merged exactly as when serving,
and the result is checked for:
- File format and unknown keys
- Addresses, ports and port ranges
- Credentials and quotas
- Peer permission expression syntax

The effective configuration is printed with passwords hidden.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := consoleLogger(opts, cmd.ErrOrStderr())
			defer common.RecoverPanic(logger)

			cfg, err := resolveConfig(cmd.Flags(), opts, logger)
			if err != nil {
				return reportError(cmd.ErrOrStderr(), fmt.Errorf("configuration validation failed: %w", err))
			}

			permissions, err := relay.CompilePermissions(cfg.Permissions, logger)
			if err != nil {
				return reportError(cmd.ErrOrStderr(), fmt.Errorf("configuration validation failed: %w", err))
			}

			data, err := cfg.Redacted().ToYAML()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(data))
			fmt.Fprintf(out, "%d credentials, %d peer permission expressions\n", len(cfg.Credentials), permissions.Len())
			fmt.Fprintln(out, color.GreenString("Configuration validation successful"))
			return nil
		},
	}

	addRelayFlags(cmd.Flags(), opts)
	return cmd
}

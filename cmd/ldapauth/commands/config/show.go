package config

import (
	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current ldapauth configuration with defaults applied.

Outputs YAML unless --output json is given.

Examples:
  # Show default config as YAML
  ldapauth config show

  # Show as JSON
  ldapauth config show --output json

  # Show specific config file
  ldapauth config show --config /etc/ldapauth/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}

	// Secrets never leave the process.
	cfg.PassThrough.MappedSearchBindPassword = ""

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/prompt"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample ldapauth configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/ldapauth/config.yaml.
Use --config to specify a custom path. An existing file is only replaced after
confirmation or with --force.

Examples:
  # Initialize with default location
  ldapauth config init

  # Initialize with custom path
  ldapauth config init --config /etc/ldapauth/config.yaml

  # Force overwrite existing config
  ldapauth config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.ConfigPath()

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", configPath), false)
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Keeping existing configuration.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Point directory.entries_file at your entries and set naming_contexts")
	_, _ = fmt.Fprintln(out, "  2. Encode passwords with: ldapauth password encode")
	_, _ = fmt.Fprintln(out, "  3. Start the server with: ldapauth serve")
	_, _ = fmt.Fprintf(out, "  4. Or specify custom config: ldapauth serve --config %s\n", configPath)
	return nil
}

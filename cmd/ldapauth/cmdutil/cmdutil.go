// Package cmdutil holds flag state and helpers shared by ldapauth subcommands.
package cmdutil

import (
	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/output"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// GlobalFlags mirrors the root command's persistent flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	NoColor    bool
}

// Flags is synced by the root command before any subcommand runs.
var Flags GlobalFlags

// Printer returns a printer for the --output and --no-color flags, writing
// to the command's stdout.
func Printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, !Flags.NoColor), nil
}

// LoadConfig loads the configuration named by --config, falling back to the
// default location.
func LoadConfig() (*config.Config, error) {
	return config.MustLoad(Flags.ConfigFile)
}

// ConfigPath returns the --config path or the default location.
func ConfigPath() string {
	if Flags.ConfigFile != "" {
		return Flags.ConfigFile
	}
	return config.GetDefaultConfigPath()
}

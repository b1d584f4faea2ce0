// Package commands implements the ldapauth command-line interface.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	configcmd "github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/commands/config"
	passthroughcmd "github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/commands/passthrough"
	passwordcmd "github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/commands/password"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ldapauth",
	Short: "LDAP authentication server",
	Long: `ldapauth serves LDAP bind operations: simple binds and the ANONYMOUS,
PLAIN, EXTERNAL, DIGEST-MD5 and GSSAPI SASL mechanisms, over plain LDAP,
StartTLS or LDAPS, with optional pass-through authentication to remote
directory servers.

Use "ldapauth [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: $XDG_CONFIG_HOME/ldapauth/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(passwordcmd.Cmd)
	rootCmd.AddCommand(passthroughcmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

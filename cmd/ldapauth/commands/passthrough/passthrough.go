// Package passthrough implements pass-through authentication subcommands.
package passthrough

import (
	"github.com/spf13/cobra"
)

// Cmd is the passthrough subcommand.
var Cmd = &cobra.Command{
	Use:   "passthrough",
	Short: "Pass-through authentication tools",
	Long: `Inspect and test pass-through authentication to remote LDAP servers.

Subcommands:
  check   Verify a password against the configured remote servers
  status  Show remote server availability as seen by a running server`,
}

func init() {
	Cmd.AddCommand(checkCmd)
	Cmd.AddCommand(statusCmd)
}

// Package password implements password encoding subcommands.
package password

import (
	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/prompt"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// Cmd is the password subcommand.
var Cmd = &cobra.Command{
	Use:   "password",
	Short: "Password storage schemes",
	Long: `Encode and verify passwords in the storage schemes the server accepts.

Subcommands:
  encode   Encode a password for userPassword or authPassword
  verify   Check a password against a stored value
  schemes  List the available storage schemes`,
}

func init() {
	Cmd.AddCommand(encodeCmd)
	Cmd.AddCommand(verifyCmd)
	Cmd.AddCommand(schemesCmd)
}

// registry builds the scheme registry with the configured work factors. A
// missing configuration file selects the defaults.
func registry() (*password.Registry, *config.Config, error) {
	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	reg := password.NewRegistryWithOptions(password.Options{
		BcryptCost:       cfg.Password.BcryptCost,
		PBKDF2Iterations: cfg.Password.PBKDF2Iterations,
	})
	return reg, cfg, nil
}

// readPassword returns args[i] or prompts for it.
func readPassword(args []string, i int, confirm bool) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	if confirm {
		return prompt.NewPassword("Password")
	}
	return prompt.Password("Password")
}

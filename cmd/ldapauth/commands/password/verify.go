package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/prompt"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
)

// ErrMismatch is returned when the password does not match the stored value.
var ErrMismatch = errors.New("password does not match")

var verifyCmd = &cobra.Command{
	Use:   "verify <stored-value> [password]",
	Short: "Check a password against a stored value",
	Long: `Check a password against a stored userPassword or authPassword value.

Values starting with {SCHEME} are userPassword values; anything else is
parsed as authPassword syntax. The command exits non-zero on a mismatch.

Examples:
  ldapauth password verify '{SSHA}W6ph5Mm5Pz8GgiULbPgzG37mj9g9xoCyZaMyFg==' secret
  ldapauth password verify 'SHA256$c2FsdA==$ZGlnZXN0'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runVerify,
}

// Verify reports whether plain matches stored.
func Verify(reg *password.Registry, stored string, plain []byte) (bool, error) {
	if strings.HasPrefix(stored, "{") {
		return reg.Matches(plain, []byte(stored))
	}
	return reg.MatchesAuthPassword(plain, stored)
}

func runVerify(cmd *cobra.Command, args []string) error {
	reg, _, err := registry()
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	plain, err := readPassword(args, 1, false)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}

	ok, err := Verify(reg, args[0], []byte(plain))
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		p.Error("Password does not match")
		return ErrMismatch
	}
	p.Success("Password matches")
	return nil
}

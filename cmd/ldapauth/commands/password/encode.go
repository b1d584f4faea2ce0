package password

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/prompt"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
)

var (
	encodeScheme       string
	encodeAuthPassword bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode [password]",
	Short: "Encode a password",
	Long: `Encode a password with a storage scheme.

The password is prompted for when not given as an argument. The result is a
userPassword value such as {SSHA512}..., or with --auth-password an RFC 3112
authPassword value such as SHA512$salt$digest.

Examples:
  # Encode with the configured default scheme
  ldapauth password encode

  # Encode with PBKDF2-SHA256
  ldapauth password encode --scheme PBKDF2-SHA256 secret

  # Encode an authPassword value
  ldapauth password encode --auth-password --scheme SHA256 secret`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeScheme, "scheme", "s", "", "Storage scheme (default: password.default_scheme)")
	encodeCmd.Flags().BoolVar(&encodeAuthPassword, "auth-password", false, "Encode in authPassword syntax")
}

// EncodedPassword is the result of encode.
type EncodedPassword struct {
	Scheme    string `json:"scheme" yaml:"scheme"`
	Attribute string `json:"attribute" yaml:"attribute"`
	Value     string `json:"value" yaml:"value"`
}

func (e EncodedPassword) Headers() []string { return []string{"Scheme", "Attribute", "Value"} }
func (e EncodedPassword) Rows() [][]string {
	return [][]string{{e.Scheme, e.Attribute, e.Value}}
}

// Encode encodes plain with reg. An empty scheme selects defaultScheme, or
// its authPassword name when authPassword is set.
func Encode(reg *password.Registry, scheme, defaultScheme string, authPassword bool, plain []byte) (EncodedPassword, error) {
	if scheme == "" {
		scheme = defaultScheme
		if authPassword {
			s, err := reg.Get(defaultScheme)
			if err != nil {
				return EncodedPassword{}, err
			}
			if s.AuthPasswordName() == "" {
				return EncodedPassword{}, fmt.Errorf("scheme %s has no authPassword form", s.Name())
			}
			scheme = s.AuthPasswordName()
		}
	}
	scheme = strings.ToUpper(scheme)

	if authPassword {
		value, err := reg.EncodeAuthPassword(scheme, plain)
		if err != nil {
			return EncodedPassword{}, err
		}
		return EncodedPassword{Scheme: scheme, Attribute: password.AttrAuthPassword, Value: value}, nil
	}

	value, err := reg.Encode(scheme, plain)
	if err != nil {
		return EncodedPassword{}, err
	}
	return EncodedPassword{Scheme: scheme, Attribute: password.AttrUserPassword, Value: string(value)}, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	reg, cfg, err := registry()
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	plain, err := readPassword(args, 0, true)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}

	encoded, err := Encode(reg, encodeScheme, cfg.Password.DefaultScheme, encodeAuthPassword, []byte(plain))
	if err != nil {
		return fmt.Errorf("encode password: %w", err)
	}
	return p.Print(encoded)
}

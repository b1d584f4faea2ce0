package passthrough

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/cli/prompt"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// ErrRejected is returned when the remote servers reject the password.
var ErrRejected = errors.New("password rejected by remote server")

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check <local-dn> [password]",
	Short: "Verify a password against the remote servers",
	Long: `Verify a password for a local entry the way the server would, by
binding to the configured remote servers. The password cache is bypassed.

For mapped-bind and mapped-search the local entry is read from
directory.entries_file so its mapped attributes are available.

Examples:
  ldapauth passthrough check uid=alice,ou=people,dc=example,dc=com
  ldapauth passthrough check --config /etc/ldapauth/config.yaml uid=bob,dc=example,dc=com secret`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "Overall timeout")
}

// CheckResult is the outcome of check.
type CheckResult struct {
	DN      string                     `json:"dn" yaml:"dn"`
	Matches bool                       `json:"matches" yaml:"matches"`
	Servers []passthrough.ServerStatus `json:"servers" yaml:"servers"`
}

func (r CheckResult) Headers() []string { return statusHeaders }
func (r CheckResult) Rows() [][]string  { return statusRows(r.Servers) }

// LocalEntry returns the entry dn designates in the configured entries file,
// or a bare entry when the file does not hold it.
func LocalEntry(ctx context.Context, cfg *config.Config, dn string) (*ldap.Entry, error) {
	if _, err := ldap.ParseDN(dn); err != nil {
		return nil, fmt.Errorf("invalid DN %q: %w", dn, err)
	}

	if cfg.Directory.EntriesFile != "" {
		dir := directory.NewMemoryDirectory(cfg.Directory.NamingContexts...)
		if _, err := dir.LoadFile(cfg.Directory.EntriesFile); err != nil {
			return nil, err
		}
		entry, err := dir.GetEntry(ctx, dn)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}

	if policy := cfg.PassThrough.MappingPolicy; policy != "" && policy != string(passthrough.Unmapped) {
		return nil, fmt.Errorf("no local entry %q: %s needs its attributes", dn, policy)
	}
	return ldap.NewEntry(dn, nil), nil
}

// Check verifies plain for dn against the remote servers cfg names.
func Check(ctx context.Context, cfg *config.Config, dn string, plain []byte, opts ...passthrough.Option) (*CheckResult, error) {
	if !cfg.PassThrough.Enabled {
		return nil, errors.New("pass-through authentication is not enabled in the configuration")
	}

	entry, err := LocalEntry(ctx, cfg, dn)
	if err != nil {
		return nil, err
	}

	ptCfg := cfg.PassThrough
	ptCfg.PasswordCache.Enabled = false

	reg := password.NewRegistryWithOptions(password.Options{
		BcryptCost:       cfg.Password.BcryptCost,
		PBKDF2Iterations: cfg.Password.PBKDF2Iterations,
	})
	policy, err := passthrough.New(ptCfg, append([]passthrough.Option{passthrough.WithRegistry(reg)}, opts...)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = policy.Close() }()

	ok, err := policy.PasswordMatches(ctx, entry, plain)
	result := &CheckResult{DN: entry.DN, Matches: ok, Servers: policy.Status()}
	return result, err
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	plain := ""
	if len(args) > 1 {
		plain = args[1]
	} else {
		plain, err = prompt.Password("Password")
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	result, err := Check(ctx, cfg, args[0], []byte(plain))
	if result == nil {
		return err
	}
	if perr := p.Print(result); perr != nil {
		return perr
	}
	if err != nil {
		p.Error(fmt.Sprintf("Remote servers unavailable: %v", err))
		return err
	}
	if !result.Matches {
		p.Error("Password rejected")
		return ErrRejected
	}
	p.Success("Password accepted")
	return nil
}

package password

import (
	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
)

var schemesCmd = &cobra.Command{
	Use:   "schemes",
	Short: "List the available storage schemes",
	Args:  cobra.NoArgs,
	RunE:  runSchemes,
}

// SchemeInfo describes one storage scheme.
type SchemeInfo struct {
	Name         string `json:"name" yaml:"name"`
	AuthPassword string `json:"auth_password,omitempty" yaml:"auth_password,omitempty"`
	Reversible   bool   `json:"reversible" yaml:"reversible"`
	Default      bool   `json:"default" yaml:"default"`
}

// SchemeList is the result of schemes.
type SchemeList []SchemeInfo

func (l SchemeList) Headers() []string {
	return []string{"Scheme", "AuthPassword", "Reversible", "Default"}
}

func (l SchemeList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{s.Name, dash(s.AuthPassword), yesNo(s.Reversible), yesNo(s.Default)})
	}
	return rows
}

// Schemes lists reg's schemes in name order.
func Schemes(reg *password.Registry, defaultScheme string) SchemeList {
	names := reg.Names()
	list := make(SchemeList, 0, len(names))
	for _, name := range names {
		s, err := reg.Get(name)
		if err != nil {
			continue
		}
		list = append(list, SchemeInfo{
			Name:         s.Name(),
			AuthPassword: s.AuthPasswordName(),
			Reversible:   s.IsReversible(),
			Default:      s.Name() == defaultScheme,
		})
	}
	return list
}

func runSchemes(cmd *cobra.Command, args []string) error {
	reg, cfg, err := registry()
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}
	return p.Print(Schemes(reg, cfg.Password.DefaultScheme))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

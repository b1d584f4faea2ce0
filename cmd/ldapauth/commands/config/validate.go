package config

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the ldapauth configuration file.

Checks for syntax errors, missing required fields, and invalid values, and
warns about settings that are valid but probably unintended.

Examples:
  # Validate default config
  ldapauth config validate

  # Validate specific config file
  ldapauth config validate --config /etc/ldapauth/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	warnings := Warnings(cfg)

	p.Printf("Configuration file: %s\n", cmdutil.ConfigPath())
	p.Success("Validation: OK")

	if len(warnings) > 0 {
		p.Printf("\nWarnings:\n")
		for _, w := range warnings {
			p.Warning("  - " + w)
		}
	}

	p.Printf("\nConfiguration summary:\n")
	return p.Print(summary(cfg))
}

// Warnings reports valid but risky settings.
func Warnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.Directory.EntriesFile == "" && !cfg.PassThrough.Enabled {
		warnings = append(warnings, "No entries file configured - every bind will fail")
	}
	if cfg.TLS.CertFile == "" {
		warnings = append(warnings, "TLS not configured - StartTLS and LDAPS are unavailable")
		if slices.Contains(cfg.SASL.Mechanisms, "PLAIN") {
			warnings = append(warnings, "PLAIN is enabled without TLS - passwords cross the network in clear text")
		}
		if slices.Contains(cfg.SASL.Mechanisms, "EXTERNAL") {
			warnings = append(warnings, "EXTERNAL is enabled without TLS - it can never succeed")
		}
	}
	if cfg.Server.AllowAnonymousSimpleBind {
		warnings = append(warnings, "Anonymous simple binds are allowed")
	}
	if cfg.PassThrough.Enabled && cfg.PassThrough.TrustAll {
		warnings = append(warnings, "passthrough.trust_all disables remote certificate verification")
	}
	if cfg.PassThrough.Enabled && !cfg.PassThrough.UseSSL && !cfg.PassThrough.UseStartTLS {
		warnings = append(warnings, "Pass-through binds are sent to remote servers without TLS")
	}
	return warnings
}

type summaryRows [][2]string

func (s summaryRows) Headers() []string { return []string{"Setting", "Value"} }
func (s summaryRows) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, r := range s {
		rows = append(rows, []string{r[0], r[1]})
	}
	return rows
}

func summary(cfg *config.Config) summaryRows {
	ldaps := "disabled"
	if cfg.Server.LDAPSPort != 0 {
		ldaps = fmt.Sprintf("%d", cfg.Server.LDAPSPort)
	}
	passThrough := "disabled"
	if cfg.PassThrough.Enabled {
		passThrough = fmt.Sprintf("%s, %d primary, %d secondary",
			cfg.PassThrough.MappingPolicy, len(cfg.PassThrough.PrimaryServers), len(cfg.PassThrough.SecondaryServers))
	}
	admin := "disabled"
	if cfg.Admin.Enabled {
		admin = fmt.Sprintf("%s:%d", cfg.Admin.BindAddress, cfg.Admin.Port)
	}

	return summaryRows{
		{"LDAP port", fmt.Sprintf("%d", cfg.Server.Port)},
		{"LDAPS port", ldaps},
		{"SASL mechanisms", fmt.Sprintf("%v", cfg.SASL.Mechanisms)},
		{"Password scheme", cfg.Password.DefaultScheme},
		{"Pass-through", passThrough},
		{"Admin API", admin},
		{"Log level", cfg.Logging.Level},
	}
}

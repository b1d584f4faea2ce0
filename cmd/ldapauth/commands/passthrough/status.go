package passthrough

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/cmd/ldapauth/cmdutil"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/apiclient"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

var statusAdminURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show remote server availability",
	Long: `Show the pass-through servers of a running ldapauth server, read from its
admin API. The admin address defaults to admin.bind_address and admin.port
from the configuration.

Examples:
  ldapauth passthrough status
  ldapauth passthrough status --admin http://10.0.0.5:9090 --output json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAdminURL, "admin", "", "Admin API URL (default: from configuration)")
}

var statusHeaders = []string{"Server", "Tier", "Purpose", "Available", "Idle", "Since", "Last Error"}

func statusRows(servers []passthrough.ServerStatus) [][]string {
	rows := make([][]string, 0, len(servers))
	for _, s := range servers {
		available := "no"
		if s.Available {
			available = "yes"
		}
		since := "-"
		if !s.Since.IsZero() {
			since = s.Since.Local().Format(time.DateTime)
		}
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		rows = append(rows, []string{
			s.Server, s.Tier, s.Purpose, available, strconv.Itoa(s.IdleConns), since, lastErr,
		})
	}
	return rows
}

// ServerList renders pass-through servers as a table.
type ServerList []passthrough.ServerStatus

func (l ServerList) Headers() []string { return statusHeaders }
func (l ServerList) Rows() [][]string  { return statusRows(l) }

// AdminURL returns the admin API URL the configuration describes.
func AdminURL(cfg *config.Config) string {
	host := cfg.Admin.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Admin.Port))
}

func runStatus(cmd *cobra.Command, args []string) error {
	url := statusAdminURL
	if url == "" {
		cfg, err := cmdutil.LoadConfig()
		if err != nil {
			return err
		}
		if !cfg.Admin.Enabled {
			return fmt.Errorf("admin API is disabled in the configuration; pass --admin")
		}
		url = AdminURL(cfg)
	}

	p, err := cmdutil.Printer(cmd)
	if err != nil {
		return err
	}

	servers, err := apiclient.New(url).PassThroughStatus()
	if err != nil {
		if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.IsNotFound() {
			p.Warning("Pass-through authentication is disabled on this server")
			return nil
		}
		return err
	}
	return p.Print(ServerList(servers))
}

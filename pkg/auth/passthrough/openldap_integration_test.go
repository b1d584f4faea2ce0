//go:build integration

package passthrough_test

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

const (
	remoteAdminDN       = "cn=admin,dc=example,dc=org"
	remoteAdminPassword = "admin"
)

// openLDAP returns the host:port of a remote directory, started with
// testcontainers unless OPENLDAP_ADDR names one.
func openLDAP(t *testing.T) (addr string, stop func()) {
	t.Helper()

	if addr := os.Getenv("OPENLDAP_ADDR"); addr != "" {
		return addr, func() {}
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "osixia/openldap:1.5.0",
			ExposedPorts: []string{"389/tcp"},
			Env: map[string]string{
				"LDAP_ORGANISATION":   "Example",
				"LDAP_DOMAIN":         "example.org",
				"LDAP_ADMIN_PASSWORD": remoteAdminPassword,
				"LDAP_TLS":            "false",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("389/tcp"),
				wait.ForLog("slapd starting"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start OpenLDAP container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "389/tcp")
	require.NoError(t, err)

	var once bool
	stop = func() {
		if !once {
			once = true
			_ = container.Terminate(context.Background())
		}
	}
	t.Cleanup(stop)
	return net.JoinHostPort(host, port.Port()), stop
}

func remoteConfig(addr string) config.PassThroughConfig {
	return config.PassThroughConfig{
		Enabled:          true,
		PrimaryServers:   []string{addr},
		ConnectTimeout:   5 * time.Second,
		OperationTimeout: 10 * time.Second,
		PoolSize:         2,
	}
}

func TestOpenLDAP(t *testing.T) {
	addr, stop := openLDAP(t)
	ctx := context.Background()

	t.Run("Unmapped", func(t *testing.T) {
		p, err := passthrough.New(remoteConfig(addr))
		require.NoError(t, err)
		defer func() { _ = p.Close() }()

		entry := ldap.NewEntry(remoteAdminDN, nil)
		ok, err := p.PasswordMatches(ctx, entry, []byte(remoteAdminPassword))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = p.PasswordMatches(ctx, entry, []byte("wrong"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = p.PasswordMatches(ctx, ldap.NewEntry("cn=nobody,dc=example,dc=org", nil), []byte("x"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MappedSearch", func(t *testing.T) {
		cfg := remoteConfig(addr)
		cfg.MappingPolicy = string(passthrough.MappedSearch)
		cfg.MappedAttributes = []string{"cn"}
		cfg.MappedSearchBaseDNs = []string{"ou=missing,dc=example,dc=org", "dc=example,dc=org"}
		cfg.MappedSearchBindDN = remoteAdminDN
		cfg.MappedSearchBindPassword = remoteAdminPassword

		p, err := passthrough.New(cfg)
		require.NoError(t, err)
		defer func() { _ = p.Close() }()

		local := ldap.NewEntry("uid=admin,ou=people,dc=example,dc=com", map[string][]string{"cn": {"admin"}})
		ok, err := p.PasswordMatches(ctx, local, []byte(remoteAdminPassword))
		require.NoError(t, err)
		assert.True(t, ok)

		local = ldap.NewEntry("uid=ghost,ou=people,dc=example,dc=com", map[string][]string{"cn": {"ghost"}})
		_, err = p.PasswordMatches(ctx, local, []byte(remoteAdminPassword))
		assert.ErrorIs(t, err, passthrough.ErrNoCandidatesFound)
	})

	// Runs last: it stops the container.
	t.Run("BadgerCacheOutlivesRemote", func(t *testing.T) {
		cfg := remoteConfig(addr)
		cfg.MonitorInterval = time.Hour
		cfg.PasswordCache = config.PasswordCacheConfig{
			Enabled: true,
			Store:   passthrough.StoreBadger,
			Path:    t.TempDir(),
		}

		p, err := passthrough.New(cfg)
		require.NoError(t, err)
		defer func() { _ = p.Close() }()

		entry := ldap.NewEntry(remoteAdminDN, nil)
		ok, err := p.PasswordMatches(ctx, entry, []byte(remoteAdminPassword))
		require.NoError(t, err)
		require.True(t, ok)

		if os.Getenv("OPENLDAP_ADDR") != "" {
			t.Skip("external server cannot be stopped")
		}
		stop()

		ok, err = p.PasswordMatches(ctx, entry, []byte(remoteAdminPassword))
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = p.PasswordMatches(ctx, entry, []byte("wrong"))
		assert.ErrorIs(t, err, auth.ErrRemoteAuthInfrastructure)
	})
}

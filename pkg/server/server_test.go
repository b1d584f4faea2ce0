package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

const (
	aliceDN = "uid=alice,ou=people,dc=example,dc=com"
	adminDN = "uid=admin,ou=people,dc=example,dc=com"
)

const entriesYAML = `
- dn: dc=example,dc=com
  attributes:
    objectClass: [top, domain]
    dc: [example]
- dn: ou=people,dc=example,dc=com
  attributes:
    objectClass: [top, organizationalUnit]
    ou: [people]
- dn: uid=alice,ou=people,dc=example,dc=com
  attributes:
    objectClass: [top, person]
    uid: [alice]
    userPassword: ["{CLEAR}secret"]
- dn: uid=admin,ou=people,dc=example,dc=com
  attributes:
    objectClass: [top, person]
    uid: [admin]
    userPassword: ["{CLEAR}admin-secret"]
`

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "entries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(entriesYAML), 0o600))

	cfg := config.GetDefaultConfig()
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Directory.EntriesFile = path
	cfg.Directory.ProxiedAuthDNs = []string{adminDN}
	cfg.SASL.DigestMD5.ServerFQDN = "localhost"
	cfg.SASL.DigestMD5.Realm = "example.com"
	return cfg
}

// start serves s until the test ends and returns the LDAP listener address.
func start(t *testing.T, s *Server) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("Serve did not return after cancellation")
		}
	})

	return s.Listeners()[0].GetListenerAddr()
}

func dial(t *testing.T, addr string) *ldap.Conn {
	t.Helper()
	conn, err := ldap.DialURL("ldap://" + addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeBinds(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	addr := start(t, s)

	t.Run("Simple", func(t *testing.T) {
		conn := dial(t, addr)
		require.NoError(t, conn.Bind(aliceDN, "secret"))

		res, err := conn.WhoAmI(nil)
		require.NoError(t, err)
		assert.Equal(t, "dn:"+aliceDN, res.AuthzID)
	})

	t.Run("SimpleWrongPassword", func(t *testing.T) {
		conn := dial(t, addr)
		err := conn.Bind(aliceDN, "wrong")
		require.Error(t, err)
		assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials), err)
	})

	t.Run("DigestMD5", func(t *testing.T) {
		conn := dial(t, addr)
		require.NoError(t, conn.MD5Bind("localhost", "alice", "secret"))

		res, err := conn.WhoAmI(nil)
		require.NoError(t, err)
		assert.Equal(t, "dn:"+aliceDN, res.AuthzID)
	})

	t.Run("DigestMD5WrongPassword", func(t *testing.T) {
		conn := dial(t, addr)
		err := conn.MD5Bind("localhost", "alice", "wrong")
		require.Error(t, err)
		assert.True(t, ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials), err)
	})
}

func TestServeAdminAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Admin.Enabled = true
	cfg.Admin.Port = freePort(t)

	s, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, s.Admin())
	start(t, s)

	addr := s.Admin().Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/status/passthrough")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeTwice(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	start(t, s)

	assert.ErrorIs(t, s.Serve(context.Background()), ErrAlreadyServed)
}

func TestServeListenFailure(t *testing.T) {
	cfg := testConfig(t)

	busy, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port))
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	s, err := New(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LDAP listener")
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not fail on a busy port")
	}
}

func TestNewMechanisms(t *testing.T) {
	cfg := testConfig(t)
	cfg.SASL.Mechanisms = []string{"PLAIN", "ANONYMOUS"}

	s, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.ElementsMatch(t, []string{"PLAIN", "ANONYMOUS"}, s.Dispatcher().Mechanisms())
	assert.Nil(t, s.PassThrough())
	assert.Nil(t, s.Admin())
	assert.Equal(t, 4, s.Directory().Len())
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *config.Config)
	}{
		{
			name:   "GSSAPI without Kerberos",
			modify: func(cfg *config.Config) { cfg.SASL.Mechanisms = []string{"GSSAPI"} },
		},
		{
			name:   "unknown identity mapper",
			modify: func(cfg *config.Config) { cfg.SASL.Plain.IdentityMapper = "missing" },
		},
		{
			name:   "unknown password scheme",
			modify: func(cfg *config.Config) { cfg.Password.DefaultScheme = "ROT13" },
		},
		{
			name:   "missing entries file",
			modify: func(cfg *config.Config) { cfg.Directory.EntriesFile = filepath.Join(t.TempDir(), "none.yaml") },
		},
		{
			name:   "proxied-auth DN without entry",
			modify: func(cfg *config.Config) { cfg.Directory.ProxiedAuthDNs = []string{"uid=ghost,dc=example,dc=com"} },
		},
		{
			name:   "LDAPS without certificate",
			modify: func(cfg *config.Config) { cfg.Server.LDAPSPort = 1636 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			_, err := New(cfg)
			require.Error(t, err)
		})
	}

	_, err := New(nil)
	assert.True(t, errors.Is(err, auth.ErrConfiguration))
}

func TestReloadLogLevel(t *testing.T) {
	before := logger.GetLevel()
	defer logger.SetLevel(before.String())

	cfg := testConfig(t)
	s, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	next := *cfg
	next.Logging.Level = "ERROR"
	next.PassThrough.Enabled = true
	s.reload(&next)

	assert.Equal(t, logger.LevelError, logger.GetLevel())
	assert.Nil(t, s.PassThrough())
}

package kerberos

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

const (
	testSPN   = "ldap/ds.example.com@EXAMPLE.COM"
	testKrb5  = "[libdefaults]\n  default_realm = EXAMPLE.COM\n"
	aes128CTS = 17
)

func writeKeytab(t *testing.T, path string, kvno uint8) {
	t.Helper()
	kt := keytab.New()
	require.NoError(t, kt.AddEntry("ldap/ds.example.com", "EXAMPLE.COM", "s3cret", time.Now(), kvno, aes128CTS))
	data, err := kt.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func testConfig(t *testing.T) (*config.KerberosConfig, string) {
	t.Helper()
	dir := t.TempDir()
	ktPath := filepath.Join(dir, "ldap.keytab")
	writeKeytab(t, ktPath, 1)
	confPath := filepath.Join(dir, "krb5.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(testKrb5), 0o600))

	return &config.KerberosConfig{
		Enabled:          true,
		KeytabPath:       ktPath,
		ServicePrincipal: testSPN,
		Krb5Conf:         confPath,
		KeytabRefresh:    time.Hour,
	}, ktPath
}

func TestSplitPrincipal(t *testing.T) {
	tests := []struct {
		in, name, realm string
	}{
		{"alice@EXAMPLE.COM", "alice", "EXAMPLE.COM"},
		{"ldap/ds.example.com@EXAMPLE.COM", "ldap/ds.example.com", "EXAMPLE.COM"},
		{"alice", "alice", ""},
		{`odd\@name@EXAMPLE.COM`, `odd\@name`, "EXAMPLE.COM"},
		{`only\@escaped`, `only\@escaped`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, realm := SplitPrincipal(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.realm, realm)
		})
	}

	assert.Equal(t, "alice@EXAMPLE.COM", JoinPrincipal("alice", "EXAMPLE.COM"))
	assert.Equal(t, "alice", JoinPrincipal("alice", ""))
}

func TestSamePrincipal(t *testing.T) {
	assert.True(t, SamePrincipal("alice@EXAMPLE.COM", "alice@example.com"))
	assert.False(t, SamePrincipal("alice@EXAMPLE.COM", "Alice@EXAMPLE.COM"))
	assert.False(t, SamePrincipal("alice@EXAMPLE.COM", "alice@OTHER.COM"))
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Run("ConfigValues", func(t *testing.T) {
		t.Setenv(EnvKeytab, "")
		t.Setenv(EnvPrincipal, "")
		t.Setenv(EnvKrb5Conf, "")

		assert.Equal(t, "/cfg/keytab", resolveKeytabPath("/cfg/keytab"))
		assert.Equal(t, testSPN, resolveServicePrincipal(testSPN))

		path, explicit := resolveKrb5ConfPath("/cfg/krb5.conf")
		assert.Equal(t, "/cfg/krb5.conf", path)
		assert.True(t, explicit)

		path, explicit = resolveKrb5ConfPath("")
		assert.Equal(t, DefaultKrb5Conf, path)
		assert.False(t, explicit)
	})

	t.Run("EnvironmentWins", func(t *testing.T) {
		t.Setenv(EnvKeytab, "/env/keytab")
		t.Setenv(EnvPrincipal, "ldap/env@ENV")
		t.Setenv(EnvKrb5Conf, "/env/krb5.conf")

		assert.Equal(t, "/env/keytab", resolveKeytabPath("/cfg/keytab"))
		assert.Equal(t, "ldap/env@ENV", resolveServicePrincipal(testSPN))

		path, explicit := resolveKrb5ConfPath("")
		assert.Equal(t, "/env/krb5.conf", path)
		assert.True(t, explicit)
	})
}

func TestLoadKeytab(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.keytab")
	writeKeytab(t, good, 3)
	kt, err := loadKeytab(good)
	require.NoError(t, err)
	require.Len(t, kt.Entries, 1)
	assert.Equal(t, uint32(3), kt.Entries[0].KVNO)

	bad := filepath.Join(dir, "bad.keytab")
	require.NoError(t, os.WriteFile(bad, []byte("not a keytab"), 0o600))
	_, err = loadKeytab(bad)
	assert.Error(t, err)

	_, err = loadKeytab(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewProvider(t *testing.T) {
	t.Setenv(EnvKeytab, "")
	t.Setenv(EnvPrincipal, "")
	t.Setenv(EnvKrb5Conf, "")

	t.Run("Success", func(t *testing.T) {
		cfg, ktPath := testConfig(t)
		p, err := NewProvider(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })

		assert.Equal(t, testSPN, p.ServicePrincipal())
		assert.Equal(t, "EXAMPLE.COM", p.Realm())
		assert.Equal(t, DefaultMaxClockSkew, p.MaxClockSkew())
		assert.Equal(t, ktPath, p.KeytabPath())
		assert.NotNil(t, p.Keytab())
		require.NotNil(t, p.Krb5Config())
		assert.Equal(t, "EXAMPLE.COM", p.Krb5Config().LibDefaults.DefaultRealm)
	})

	t.Run("CustomSkew", func(t *testing.T) {
		cfg, _ := testConfig(t)
		cfg.MaxClockSkew = time.Minute
		p, err := NewProvider(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })
		assert.Equal(t, time.Minute, p.MaxClockSkew())
	})

	errorCases := []struct {
		name   string
		mutate func(*config.KerberosConfig)
	}{
		{"NoKeytabPath", func(c *config.KerberosConfig) { c.KeytabPath = "" }},
		{"NoPrincipal", func(c *config.KerberosConfig) { c.ServicePrincipal = "" }},
		{"PrincipalWithoutRealm", func(c *config.KerberosConfig) { c.ServicePrincipal = "ldap/ds.example.com" }},
		{"MissingKeytab", func(c *config.KerberosConfig) { c.KeytabPath = filepath.Join(t.TempDir(), "nope") }},
		{"MissingExplicitKrb5Conf", func(c *config.KerberosConfig) { c.Krb5Conf = filepath.Join(t.TempDir(), "nope") }},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _ := testConfig(t)
			tc.mutate(cfg)
			_, err := NewProvider(cfg)
			assert.ErrorIs(t, err, auth.ErrConfiguration)
		})
	}

	t.Run("NilConfig", func(t *testing.T) {
		_, err := NewProvider(nil)
		assert.ErrorIs(t, err, auth.ErrConfiguration)
	})
}

func TestReloadKeytab(t *testing.T) {
	t.Setenv(EnvKeytab, "")
	t.Setenv(EnvPrincipal, "")
	t.Setenv(EnvKrb5Conf, "")

	cfg, ktPath := testConfig(t)
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	writeKeytab(t, ktPath, 2)
	require.NoError(t, p.ReloadKeytab())
	require.Len(t, p.Keytab().Entries, 1)
	assert.Equal(t, uint32(2), p.Keytab().Entries[0].KVNO)

	require.NoError(t, os.WriteFile(ktPath, []byte("garbage"), 0o600))
	assert.Error(t, p.ReloadKeytab())
	assert.Equal(t, uint32(2), p.Keytab().Entries[0].KVNO, "previous keytab must stay active")
}

func TestStaticProvider(t *testing.T) {
	kt := keytab.New()
	p := NewStaticProvider(kt, testSPN, 0)

	assert.Same(t, kt, p.Keytab())
	assert.Equal(t, DefaultMaxClockSkew, p.MaxClockSkew())
	assert.Nil(t, p.Krb5Config())
	assert.Error(t, p.ReloadKeytab())
	assert.NoError(t, p.Close())
}

func TestKeytabManager(t *testing.T) {
	t.Setenv(EnvKeytab, "")
	t.Setenv(EnvPrincipal, "")
	t.Setenv(EnvKrb5Conf, "")

	cfg, ktPath := testConfig(t)
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	km := NewKeytabManager(ktPath, p, time.Hour)
	require.NoError(t, km.Start())
	t.Cleanup(km.Stop)

	assert.False(t, km.checkAndReload(), "unchanged file must not reload")

	writeKeytab(t, ktPath, 5)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(ktPath, future, future))

	assert.True(t, km.checkAndReload())
	assert.Equal(t, uint32(5), p.Keytab().Entries[0].KVNO)
	assert.False(t, km.checkAndReload())

	km.Stop()
	km.Stop()
}

func TestKeytabManagerDefaults(t *testing.T) {
	km := NewKeytabManager("/nonexistent/keytab", nil, 0)
	assert.Equal(t, DefaultKeytabRefresh, km.interval)
	assert.Error(t, km.Start())
	km.Stop()
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "debug"

sasl:
  mechanisms: [plain, digest-md5]
  digest_md5:
    realm: example.com
    qop: [auth, auth-conf]
    max_buffer: 32Ki

sasl_channel:
  max_frame_size: 1Mi
  write_timeout: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if got := cfg.SASL.Mechanisms; len(got) != 2 || got[0] != "PLAIN" || got[1] != "DIGEST-MD5" {
		t.Errorf("Expected upper-cased mechanisms, got %v", got)
	}
	if cfg.SASL.DigestMD5.MaxBuffer != 32*bytesize.KiB {
		t.Errorf("Expected max_buffer 32Ki, got %v", cfg.SASL.DigestMD5.MaxBuffer)
	}
	if cfg.SASLChannel.MaxFrameSize != bytesize.MiB {
		t.Errorf("Expected max_frame_size 1Mi, got %v", cfg.SASLChannel.MaxFrameSize)
	}
	if cfg.SASLChannel.WriteTimeout != 5*time.Second {
		t.Errorf("Expected write_timeout 5s, got %v", cfg.SASLChannel.WriteTimeout)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Server.Port != 1389 {
		t.Errorf("Expected default LDAP port 1389, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
`)
	t.Setenv("LDAPAUTH_LOGGING_LEVEL", "WARN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected env override WARN, got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeConfig(t, `
passthrough:
  enabled: true
  mapping_policy: mapped-search
  primary_servers: ["ldap.example.com:389"]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected mapped-search without attributes to be rejected")
	}
}

func TestLoad_IdentityMappers(t *testing.T) {
	path := writeConfig(t, `
identity_mappers:
  by-mail:
    pattern: "^([^@]+)@example\\.com$"
    replacement: "$1"
    match_attributes: [uid, cn]
    base_dns: ["ou=people,dc=example,dc=com"]
sasl:
  plain:
    identity_mapper: by-mail
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	m, ok := cfg.IdentityMappers["by-mail"]
	if !ok {
		t.Fatalf("by-mail mapper missing: %v", cfg.IdentityMappers)
	}
	if m.Type != "regex" {
		t.Errorf("Expected regex type default, got %q", m.Type)
	}
	if len(m.MatchAttributes) != 2 {
		t.Errorf("Expected two match attributes, got %v", m.MatchAttributes)
	}
	if _, ok := cfg.IdentityMappers[DefaultIdentityMapper]; !ok {
		t.Errorf("Expected default mapper alongside configured ones")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.PassThrough.MappedSearchBindDN = "cn=search,dc=example,dc=com"
	cfg.PassThrough.MappedSearchBindPassword = "secret"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 && os.PathSeparator == '/' {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.PassThrough.MappedSearchBindDN != cfg.PassThrough.MappedSearchBindDN {
		t.Errorf("bind DN lost in round trip: %q", loaded.PassThrough.MappedSearchBindDN)
	}
	if loaded.PassThrough.PoolSize != cfg.PassThrough.PoolSize {
		t.Errorf("pool size lost in round trip: %d", loaded.PassThrough.PoolSize)
	}
}

func TestGetDefaultConfigPath_UsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "ldapauth", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in a fresh directory")
	}
	_ = yamlSafePath(dir)
}

package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/bytesize"
)

// DefaultIdentityMapper is the name of the mapper created when none is configured.
const DefaultIdentityMapper = "exact-match"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyAdminDefaults(&cfg.Admin)
	applyServerDefaults(&cfg.Server)
	applyPasswordDefaults(&cfg.Password)
	applyIdentityMapperDefaults(cfg)
	applyCertificateMapperDefaults(&cfg.CertificateMapper)
	applySASLDefaults(&cfg.SASL)
	applyKerberosDefaults(&cfg.Kerberos)
	applyTLSDefaults(&cfg.TLS)
	applySASLChannelDefaults(&cfg.SASLChannel)
	applyPassThroughDefaults(&cfg.PassThrough)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 && cfg.LDAPSPort == 0 {
		cfg.Port = 1389
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 16 * bytesize.MiB
	}
}

func applyPasswordDefaults(cfg *PasswordConfig) {
	if cfg.DefaultScheme == "" {
		cfg.DefaultScheme = "SSHA512"
	}
	cfg.DefaultScheme = strings.ToUpper(cfg.DefaultScheme)

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.PBKDF2Iterations == 0 {
		cfg.PBKDF2Iterations = 10000
	}
}

// applyIdentityMapperDefaults guarantees an exact-match mapper on uid so the
// mechanisms always have something to reference.
func applyIdentityMapperDefaults(cfg *Config) {
	if cfg.IdentityMappers == nil {
		cfg.IdentityMappers = make(map[string]IdentityMapperConfig)
	}
	if _, ok := cfg.IdentityMappers[DefaultIdentityMapper]; !ok {
		cfg.IdentityMappers[DefaultIdentityMapper] = IdentityMapperConfig{Type: "exact"}
	}

	for name, m := range cfg.IdentityMappers {
		if m.Type == "" {
			m.Type = "regex"
		}
		if len(m.MatchAttributes) == 0 {
			m.MatchAttributes = []string{"uid"}
		}
		if m.Type == "regex" && m.Pattern != "" && m.Replacement == "" {
			m.Replacement = "$0"
		}
		cfg.IdentityMappers[name] = m
	}
}

func applyCertificateMapperDefaults(cfg *CertificateMapperConfig) {
	if cfg.Type == "" {
		cfg.Type = "subject_equals_dn"
	}
	if cfg.Attribute == "" {
		switch cfg.Type {
		case "fingerprint":
			cfg.Attribute = "ds-certificate-fingerprint"
		case "subject_dn":
			cfg.Attribute = "ds-certificate-subject-dn"
		}
	}
	if cfg.Type == "fingerprint" && cfg.Algorithm == "" {
		cfg.Algorithm = "MD5"
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
}

func applySASLDefaults(cfg *SASLConfig) {
	if len(cfg.Mechanisms) == 0 {
		cfg.Mechanisms = []string{"ANONYMOUS", "PLAIN", "EXTERNAL", "DIGEST-MD5"}
	}
	for i, m := range cfg.Mechanisms {
		cfg.Mechanisms[i] = strings.ToUpper(m)
	}

	if cfg.Plain.IdentityMapper == "" {
		cfg.Plain.IdentityMapper = DefaultIdentityMapper
	}

	if cfg.DigestMD5.IdentityMapper == "" {
		cfg.DigestMD5.IdentityMapper = DefaultIdentityMapper
	}
	if len(cfg.DigestMD5.QOP) == 0 {
		cfg.DigestMD5.QOP = []string{"auth"}
	}
	if cfg.DigestMD5.MaxBuffer == 0 {
		cfg.DigestMD5.MaxBuffer = 65536
	}

	if cfg.GSSAPI.IdentityMapper == "" {
		cfg.GSSAPI.IdentityMapper = DefaultIdentityMapper
	}
	if len(cfg.GSSAPI.QOP) == 0 {
		cfg.GSSAPI.QOP = []string{"auth"}
	}
	if cfg.GSSAPI.MaxBuffer == 0 {
		cfg.GSSAPI.MaxBuffer = 65536
	}

	if cfg.External.CertificateValidation == "" {
		cfg.External.CertificateValidation = "ignore"
	}
	if cfg.External.CertificateAttribute == "" {
		cfg.External.CertificateAttribute = "userCertificate"
	}
}

func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = "/etc/krb5.conf"
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.KeytabRefresh == 0 {
		cfg.KeytabRefresh = 60 * time.Second
	}
}

func applyTLSDefaults(cfg *TLSConfig) {
	if cfg.ClientAuth == "" {
		cfg.ClientAuth = "optional"
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
}

func applySASLChannelDefaults(cfg *SASLChannelConfig) {
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = 16 * bytesize.MiB
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
}

func applyPassThroughDefaults(cfg *PassThroughConfig) {
	if cfg.MappingPolicy == "" {
		cfg.MappingPolicy = "unmapped"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 2 * runtime.NumCPU()
	}
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = 5 * time.Second
	}

	pc := &cfg.PasswordCache
	if pc.TTL == 0 {
		pc.TTL = 8 * time.Hour
	}
	if pc.Scheme == "" {
		pc.Scheme = "SSHA512"
	}
	pc.Scheme = strings.ToUpper(pc.Scheme)
	if pc.Store == "" {
		pc.Store = "memory"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Directory: DirectoryConfig{
			NamingContexts: []string{"dc=example,dc=com"},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the ldapauth configuration.
//
// It captures the static configuration of the authentication layer:
//   - Logging, telemetry, metrics and the admin HTTP endpoint
//   - The bind front end (LDAP listener) and its TLS settings
//   - Password storage, identity/certificate mappers and SASL mechanisms
//   - Kerberos credentials for GSSAPI
//   - The LDAP pass-through authentication policy
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (LDAPAUTH_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin configures the HTTP endpoint serving /metrics, /healthz and status
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Server configures the LDAP bind listener
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Directory seeds the in-memory directory used for identity lookups
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`

	// Password configures storage schemes
	Password PasswordConfig `mapstructure:"password" yaml:"password"`

	// IdentityMappers are named identity mappers referenced by SASL mechanisms
	IdentityMappers map[string]IdentityMapperConfig `mapstructure:"identity_mappers" validate:"dive" yaml:"identity_mappers"`

	// CertificateMapper maps client certificates to entries for SASL EXTERNAL
	CertificateMapper CertificateMapperConfig `mapstructure:"certificate_mapper" yaml:"certificate_mapper"`

	// SASL configures the mechanism handlers
	SASL SASLConfig `mapstructure:"sasl" yaml:"sasl"`

	// Kerberos contains the GSSAPI acceptor credentials.
	// Environment variable overrides:
	//   LDAPAUTH_KERBEROS_KEYTAB overrides KeytabPath
	//   LDAPAUTH_KERBEROS_PRINCIPAL overrides ServicePrincipal
	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`

	// TLS configures the TLS connection security provider
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`

	// SASLChannel configures SASL integrity/confidentiality framing
	SASLChannel SASLChannelConfig `mapstructure:"sasl_channel" yaml:"sasl_channel"`

	// PassThrough configures LDAP pass-through authentication
	PassThrough PassThroughConfig `mapstructure:"passthrough" yaml:"passthrough"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics collection.
// When Enabled is false, no metrics are registered (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the interface to listen on. Default: 127.0.0.1
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// Port is the HTTP port. Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ServerConfig configures the LDAP bind listener.
type ServerConfig struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// Port is the plain LDAP port. 0 disables the plain listener.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// LDAPSPort is the LDAP-over-TLS port. Requires tls.cert_file and tls.key_file.
	LDAPSPort int `mapstructure:"ldaps_port" validate:"omitempty,min=1,max=65535" yaml:"ldaps_port"`

	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,min=0" yaml:"max_connections"`

	// MaxMessageSize bounds a single LDAP message. Default: 16Mi
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size"`

	// IdleTimeout closes connections without traffic. 0 disables.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// AllowAnonymousSimpleBind accepts simple binds with an empty DN and password
	AllowAnonymousSimpleBind bool `mapstructure:"allow_anonymous_simple_bind" yaml:"allow_anonymous_simple_bind"`
}

// DirectoryConfig points at the entries backing identity lookups.
type DirectoryConfig struct {
	// EntriesFile is a YAML file of entries (dn plus attributes) loaded at startup
	EntriesFile string `mapstructure:"entries_file" yaml:"entries_file"`

	// NamingContexts are the base DNs searched when a mapper names none
	NamingContexts []string `mapstructure:"naming_contexts" yaml:"naming_contexts"`

	// ProxiedAuthDNs hold the proxied-authorization privilege
	ProxiedAuthDNs []string `mapstructure:"proxied_auth_dns" yaml:"proxied_auth_dns"`
}

// PasswordConfig configures storage schemes.
type PasswordConfig struct {
	// DefaultScheme encodes new passwords. Default: SSHA512
	DefaultScheme string `mapstructure:"default_scheme" validate:"required" yaml:"default_scheme"`

	// BcryptCost is the BCRYPT work factor. Default: 10
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"omitempty,min=4,max=31" yaml:"bcrypt_cost"`

	// PBKDF2Iterations is the PBKDF2 round count. Default: 10000
	PBKDF2Iterations int `mapstructure:"pbkdf2_iterations" validate:"omitempty,min=1000" yaml:"pbkdf2_iterations"`
}

// IdentityMapperConfig configures a regex or exact-match identity mapper.
type IdentityMapperConfig struct {
	// Type is "regex" or "exact"
	Type string `mapstructure:"type" validate:"required,oneof=regex exact" yaml:"type"`

	// MatchAttributes are the attributes compared to the mapped value. Default: [uid]
	MatchAttributes []string `mapstructure:"match_attributes" validate:"dive,required" yaml:"match_attributes"`

	// BaseDNs are the search bases. Empty means directory naming contexts.
	BaseDNs []string `mapstructure:"base_dns" yaml:"base_dns"`

	// Pattern is the regular expression applied to the identifier (regex only)
	Pattern string `mapstructure:"pattern" validate:"required_if=Type regex" yaml:"pattern"`

	// Replacement uses Go $1 group syntax (regex only)
	Replacement string `mapstructure:"replacement" yaml:"replacement"`
}

// CertificateMapperConfig configures the certificate mapper.
type CertificateMapperConfig struct {
	// Type is fingerprint, subject_dn or subject_equals_dn
	Type string `mapstructure:"type" validate:"omitempty,oneof=fingerprint subject_dn subject_equals_dn" yaml:"type"`

	// Attribute holds the fingerprint or subject DN
	Attribute string `mapstructure:"attribute" yaml:"attribute"`

	// Algorithm is MD5 or SHA1 (fingerprint only)
	Algorithm string `mapstructure:"algorithm" validate:"omitempty,oneof=MD5 SHA1 md5 sha1" yaml:"algorithm"`

	BaseDNs []string `mapstructure:"base_dns" yaml:"base_dns"`
}

// SASLConfig configures the SASL mechanism handlers.
type SASLConfig struct {
	// Mechanisms lists the enabled mechanism names
	Mechanisms []string `mapstructure:"mechanisms" validate:"dive,oneof=ANONYMOUS PLAIN EXTERNAL DIGEST-MD5 GSSAPI" yaml:"mechanisms"`

	Plain     PlainConfig     `mapstructure:"plain" yaml:"plain"`
	DigestMD5 DigestMD5Config `mapstructure:"digest_md5" yaml:"digest_md5"`
	GSSAPI    GSSAPIConfig    `mapstructure:"gssapi" yaml:"gssapi"`
	External  ExternalConfig  `mapstructure:"external" yaml:"external"`
}

// PlainConfig configures SASL PLAIN.
type PlainConfig struct {
	// IdentityMapper names an entry in identity_mappers
	IdentityMapper string `mapstructure:"identity_mapper" yaml:"identity_mapper"`
}

// DigestMD5Config configures SASL DIGEST-MD5.
type DigestMD5Config struct {
	// Realm defaults to the server FQDN
	Realm string `mapstructure:"realm" yaml:"realm"`

	// QOP lists offered protections: auth, auth-int, auth-conf
	QOP []string `mapstructure:"qop" validate:"dive,oneof=auth auth-int auth-conf" yaml:"qop"`

	// ServerFQDN defaults to the local host name
	ServerFQDN string `mapstructure:"server_fqdn" yaml:"server_fqdn"`

	IdentityMapper string `mapstructure:"identity_mapper" yaml:"identity_mapper"`

	// MaxBuffer is advertised as maxbuf when a security layer is offered
	MaxBuffer bytesize.ByteSize `mapstructure:"max_buffer" yaml:"max_buffer"`
}

// GSSAPIConfig configures SASL GSSAPI.
type GSSAPIConfig struct {
	// QOP lists offered protections: auth, auth-int, auth-conf
	QOP []string `mapstructure:"qop" validate:"dive,oneof=auth auth-int auth-conf" yaml:"qop"`

	// MaxBuffer is the largest wrapped buffer the server accepts
	MaxBuffer bytesize.ByteSize `mapstructure:"max_buffer" yaml:"max_buffer"`

	IdentityMapper string `mapstructure:"identity_mapper" yaml:"identity_mapper"`
}

// ExternalConfig configures SASL EXTERNAL.
type ExternalConfig struct {
	// CertificateValidation is ignore, if-present or always
	CertificateValidation string `mapstructure:"certificate_validation" validate:"omitempty,oneof=ignore if-present always" yaml:"certificate_validation"`

	// CertificateAttribute holds the user's certificates. Default: userCertificate
	CertificateAttribute string `mapstructure:"certificate_attribute" yaml:"certificate_attribute"`
}

// KerberosConfig contains the GSSAPI acceptor credentials.
//
// The server needs a keytab file containing the service principal's key
// and a valid krb5.conf for realm resolution.
type KerberosConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// KeytabPath is the path to the Kerberos keytab file.
	// Override: LDAPAUTH_KERBEROS_KEYTAB
	KeytabPath string `mapstructure:"keytab_path" validate:"required_if=Enabled true" yaml:"keytab_path"`

	// ServicePrincipal is the Kerberos service principal name (SPN).
	// Format: ldap/hostname@REALM
	// Override: LDAPAUTH_KERBEROS_PRINCIPAL
	ServicePrincipal string `mapstructure:"service_principal" validate:"required_if=Enabled true" yaml:"service_principal"`

	// Krb5Conf is the path to the Kerberos configuration file.
	// Default: /etc/krb5.conf
	Krb5Conf string `mapstructure:"krb5_conf" yaml:"krb5_conf"`

	// MaxClockSkew is the maximum allowed clock difference between client and server.
	// Default: 5m
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" yaml:"max_clock_skew"`

	// KeytabRefresh is the keytab change polling interval. Default: 60s
	KeytabRefresh time.Duration `mapstructure:"keytab_refresh" yaml:"keytab_refresh"`
}

// TLSConfig configures the TLS provider.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`

	// CAFile holds the roots trusted for client certificates
	CAFile string `mapstructure:"ca_file" yaml:"ca_file"`

	// ClientAuth is disabled, optional or required
	ClientAuth string `mapstructure:"client_auth" validate:"omitempty,oneof=disabled optional required" yaml:"client_auth"`

	// Protocols restricts TLS versions (TLSv1.2, TLSv1.3). Empty allows both.
	Protocols []string `mapstructure:"protocols" validate:"dive,oneof=TLSv1.2 TLSv1.3" yaml:"protocols"`

	// CipherSuites restricts TLS 1.2 suites by IANA name. Empty uses Go defaults.
	CipherSuites []string `mapstructure:"cipher_suites" yaml:"cipher_suites"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// SASLChannelConfig configures SASL QOP framing.
type SASLChannelConfig struct {
	// MaxFrameSize rejects inbound frames larger than this. Default: 16Mi
	MaxFrameSize bytesize.ByteSize `mapstructure:"max_frame_size" yaml:"max_frame_size"`

	// WriteTimeout bounds a blocked write before the connection is closed. Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// PassThroughConfig configures LDAP pass-through authentication.
type PassThroughConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PrimaryServers are host:port addresses tried first (round-robin)
	PrimaryServers []string `mapstructure:"primary_servers" validate:"required_if=Enabled true,dive,hostname_port" yaml:"primary_servers"`

	// SecondaryServers are used when every primary server is unavailable
	SecondaryServers []string `mapstructure:"secondary_servers" validate:"dive,hostname_port" yaml:"secondary_servers"`

	// MappingPolicy is unmapped, mapped-bind or mapped-search
	MappingPolicy string `mapstructure:"mapping_policy" validate:"omitempty,oneof=unmapped mapped-bind mapped-search" yaml:"mapping_policy"`

	// MappedAttributes are read from the local entry for mapped-bind and mapped-search
	MappedAttributes []string `mapstructure:"mapped_attributes" yaml:"mapped_attributes"`

	// MappedSearchBaseDNs are the remote search bases for mapped-search
	MappedSearchBaseDNs []string `mapstructure:"mapped_search_base_dns" yaml:"mapped_search_base_dns"`

	// MappedSearchBindDN authenticates remote searches. Empty searches anonymously.
	MappedSearchBindDN       string `mapstructure:"mapped_search_bind_dn" yaml:"mapped_search_bind_dn"`
	MappedSearchBindPassword string `mapstructure:"mapped_search_bind_password" yaml:"mapped_search_bind_password,omitempty"`

	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`

	// UseSSL dials LDAPS; UseStartTLS upgrades a plain connection
	UseSSL      bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	UseStartTLS bool   `mapstructure:"use_start_tls" yaml:"use_start_tls"`
	TrustAll    bool   `mapstructure:"trust_all" yaml:"trust_all"`
	CAFile      string `mapstructure:"ca_file" yaml:"ca_file"`

	// PoolSize bounds idle connections per server. Default: 2 x NumCPU
	PoolSize int `mapstructure:"pool_size" validate:"omitempty,min=1" yaml:"pool_size"`

	// MonitorInterval is how often unavailable servers are re-probed. Default: 5s
	MonitorInterval time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`

	PasswordCache PasswordCacheConfig `mapstructure:"password_cache" yaml:"password_cache"`
}

// PasswordCacheConfig configures local caching of remotely verified passwords.
type PasswordCacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// TTL bounds how long a cached password is trusted. Default: 8h
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// Scheme encodes the cached password. Default: SSHA512
	Scheme string `mapstructure:"scheme" yaml:"scheme"`

	// Store is memory or badger
	Store string `mapstructure:"store" validate:"omitempty,oneof=memory badger" yaml:"store"`

	// Path is the badger directory
	Path string `mapstructure:"path" validate:"required_if=Store badger" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LDAPAUTH_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  ldapauth config init\n\n"+
				"Or specify a custom config file:\n"+
				"  ldapauth <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  ldapauth config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold the pass-through search password
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: LDAPAUTH_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("LDAPAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/ldapauth/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts "64Ki" style strings and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ldapauth")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "ldapauth")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

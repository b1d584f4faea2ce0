package ldap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/security"
)

// Protocol names reported by Adapter.Protocol.
const (
	ProtocolLDAP  = "LDAP"
	ProtocolLDAPS = "LDAPS"
)

// Defaults applied by applyDefaults.
const (
	DefaultMaxMessageSize  = 16 << 20
	DefaultShutdownTimeout = 30 * time.Second
)

// Config configures one LDAP listener.
type Config struct {
	BindAddress string
	Port        int

	// TLS negotiates TLS on accept (LDAPS). Otherwise clients may use
	// StartTLS when Dependencies.TLSConfig is set.
	TLS bool

	MaxConnections int

	// MaxMessageSize bounds one LDAPMessage. Larger messages close the
	// connection with a notice of disconnection.
	MaxMessageSize int

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration

	ShutdownTimeout time.Duration

	// AllowAnonymousSimpleBind accepts a simple bind with an empty name and
	// password.
	AllowAnonymousSimpleBind bool

	// Channel options passed to security.WrapChannel.
	MaxFrameSize     int
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// FromConfig builds the listener configuration from the server sections.
// ldaps selects the LDAPS port.
func FromConfig(cfg *config.Config, ldaps bool) Config {
	port := cfg.Server.Port
	if ldaps {
		port = cfg.Server.LDAPSPort
	}
	return Config{
		BindAddress:              cfg.Server.BindAddress,
		Port:                     port,
		TLS:                      ldaps,
		MaxConnections:           cfg.Server.MaxConnections,
		MaxMessageSize:           int(cfg.Server.MaxMessageSize),
		IdleTimeout:              cfg.Server.IdleTimeout,
		ShutdownTimeout:          cfg.ShutdownTimeout,
		AllowAnonymousSimpleBind: cfg.Server.AllowAnonymousSimpleBind,
		MaxFrameSize:             int(cfg.SASLChannel.MaxFrameSize),
		WriteTimeout:             cfg.SASLChannel.WriteTimeout,
		HandshakeTimeout:         cfg.TLS.HandshakeTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Dependencies are the collaborators a listener serves binds with.
type Dependencies struct {
	// Dispatcher runs SASL binds.
	Dispatcher *auth.Dispatcher

	// Directory resolves simple bind DNs.
	Directory directory.Directory

	// Passwords verifies simple bind passwords.
	Passwords auth.PasswordValidator

	// TLSConfig is required for LDAPS and enables StartTLS otherwise.
	TLSConfig *tls.Config

	// Optional.
	SecurityMetrics *security.Metrics
	Metrics         *Metrics
}

func validate(cfg Config, deps Dependencies) error {
	var errs []error
	if deps.Dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if deps.Directory == nil {
		errs = append(errs, errors.New("directory is required"))
	}
	if deps.Passwords == nil {
		errs = append(errs, errors.New("password validator is required"))
	}
	if cfg.TLS && deps.TLSConfig == nil {
		errs = append(errs, errors.New("LDAPS requires a TLS configuration"))
	}
	if cfg.Port < 0 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", auth.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

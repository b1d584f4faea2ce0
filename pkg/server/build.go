package server

import (
	"fmt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	ldapadapter "github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/adapter/ldap"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/api"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/api/handlers"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/kerberos"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/mapper"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/sasl"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/sasl/digestmd5"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/sasl/gssapi"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/security"
)

func (s *Server) buildDirectory() error {
	if s.directory == nil {
		s.directory = directory.NewMemoryDirectory(s.cfg.Directory.NamingContexts...)
	}

	if path := s.cfg.Directory.EntriesFile; path != "" {
		n, err := s.directory.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load directory entries: %w", err)
		}
		logger.Info("Directory entries loaded", logger.KeyPath, path, logger.KeyEntries, n)
	}

	for _, dn := range s.cfg.Directory.ProxiedAuthDNs {
		if err := s.directory.GrantPrivilege(dn, directory.PrivilegeProxiedAuth); err != nil {
			return fmt.Errorf("grant proxied-auth to %q: %w", dn, err)
		}
	}
	return nil
}

func (s *Server) buildPasswords() error {
	s.registry = password.NewRegistryWithOptions(password.Options{
		BcryptCost:       s.cfg.Password.BcryptCost,
		PBKDF2Iterations: s.cfg.Password.PBKDF2Iterations,
	})
	if _, err := s.registry.Get(s.cfg.Password.DefaultScheme); err != nil {
		return fmt.Errorf("%w: password.default_scheme: %v", auth.ErrConfiguration, err)
	}
	s.local = password.NewLocalPolicy(s.registry)
	s.validator = s.local

	if !s.cfg.PassThrough.Enabled {
		return nil
	}

	policy, err := passthrough.New(s.cfg.PassThrough,
		passthrough.WithRegistry(s.registry),
		passthrough.WithMetrics(passthrough.NewMetrics()),
	)
	if err != nil {
		return fmt.Errorf("pass-through authentication: %w", err)
	}
	s.passThrough = policy
	s.validator = policy
	return nil
}

func (s *Server) buildMechanisms() error {
	mappers, err := mapper.NewSet(s.directory, s.cfg.IdentityMappers)
	if err != nil {
		return err
	}

	resolver := func(name string) (*sasl.Resolver, error) {
		m, err := mappers.Get(name)
		if err != nil {
			return nil, err
		}
		return &sasl.Resolver{Directory: s.directory, Mapper: m, Privileges: s.directory}, nil
	}

	s.dispatcher = auth.NewDispatcher(auth.NewBindMetrics())

	for _, name := range s.cfg.SASL.Mechanisms {
		mech, err := s.buildMechanism(name, mappers, resolver)
		if err != nil {
			return fmt.Errorf("sasl %s: %w", name, err)
		}
		s.dispatcher.Register(mech)
	}

	logger.Info("SASL mechanisms registered", "mechanisms", s.dispatcher.Mechanisms())
	return nil
}

func (s *Server) buildMechanism(
	name string,
	mappers *mapper.Set,
	resolver func(string) (*sasl.Resolver, error),
) (auth.Mechanism, error) {
	cfg := s.cfg.SASL

	switch name {
	case "ANONYMOUS":
		return sasl.NewAnonymous(), nil

	case "PLAIN":
		r, err := resolver(cfg.Plain.IdentityMapper)
		if err != nil {
			return nil, err
		}
		return sasl.NewPlain(r, s.validator)

	case "EXTERNAL":
		certMapper, err := mapper.NewCertificateMapper(s.directory, s.cfg.CertificateMapper)
		if err != nil {
			return nil, err
		}
		// u: authorization identities go through the default mapper.
		r, err := resolver(config.DefaultIdentityMapper)
		if err != nil {
			r = &sasl.Resolver{Directory: s.directory, Privileges: s.directory}
		}
		return sasl.NewExternal(sasl.ExternalConfig{
			Mapper:               certMapper,
			Resolver:             r,
			Validation:           sasl.CertificateValidation(cfg.External.CertificateValidation),
			CertificateAttribute: cfg.External.CertificateAttribute,
		})

	case "DIGEST-MD5":
		r, err := resolver(cfg.DigestMD5.IdentityMapper)
		if err != nil {
			return nil, err
		}
		return digestmd5.New(digestmd5.Config{
			Realm:      cfg.DigestMD5.Realm,
			QOP:        cfg.DigestMD5.QOP,
			ServerFQDN: cfg.DigestMD5.ServerFQDN,
			MaxBuffer:  int(cfg.DigestMD5.MaxBuffer),
			Resolver:   r,
			Passwords:  s.local,
		})

	case "GSSAPI":
		m, err := mappers.Get(cfg.GSSAPI.IdentityMapper)
		if err != nil {
			return nil, err
		}
		if err := s.buildKerberos(); err != nil {
			return nil, err
		}
		return gssapi.New(gssapi.Config{
			Verifier:  gssapi.NewKrb5Verifier(s.kerberos),
			Mapper:    m,
			QOP:       cfg.GSSAPI.QOP,
			MaxBuffer: int(cfg.GSSAPI.MaxBuffer),
			Metrics:   gssapi.NewMetrics(),
		})

	default:
		return nil, fmt.Errorf("%w: unknown mechanism", auth.ErrConfiguration)
	}
}

func (s *Server) buildKerberos() error {
	if !s.cfg.Kerberos.Enabled {
		return fmt.Errorf("%w: GSSAPI requires kerberos.enabled", auth.ErrConfiguration)
	}
	provider, err := kerberos.NewProvider(&s.cfg.Kerberos)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrConfiguration, err)
	}
	s.kerberos = provider
	s.keytabs = kerberos.NewKeytabManager(provider.KeytabPath(), provider, s.cfg.Kerberos.KeytabRefresh)
	return nil
}

func (s *Server) buildListeners() error {
	if s.cfg.TLS.CertFile != "" || s.cfg.TLS.KeyFile != "" {
		tc, err := security.BuildTLSConfig(s.cfg.TLS)
		if err != nil {
			return err
		}
		s.tlsConfig = tc
	}

	deps := ldapadapter.Dependencies{
		Dispatcher:      s.dispatcher,
		Directory:       s.directory,
		Passwords:       s.validator,
		TLSConfig:       s.tlsConfig,
		SecurityMetrics: security.NewMetrics(),
		Metrics:         ldapadapter.NewMetrics(),
	}

	if s.cfg.Server.Port != 0 {
		l, err := ldapadapter.New(ldapadapter.FromConfig(s.cfg, false), deps)
		if err != nil {
			return err
		}
		s.listeners = append(s.listeners, l)
	}
	if s.cfg.Server.LDAPSPort != 0 {
		l, err := ldapadapter.New(ldapadapter.FromConfig(s.cfg, true), deps)
		if err != nil {
			return err
		}
		s.listeners = append(s.listeners, l)
	}
	if len(s.listeners) == 0 {
		return fmt.Errorf("%w: no LDAP or LDAPS port configured", auth.ErrConfiguration)
	}
	return nil
}

func (s *Server) buildAdmin() {
	if !s.cfg.Admin.Enabled {
		return
	}

	listeners := make([]handlers.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}

	deps := api.Dependencies{
		Listeners:  listeners,
		Mechanisms: s.dispatcher,
	}
	// A nil *Policy stored in the interface would read as enabled.
	if s.passThrough != nil {
		deps.PassThrough = s.passThrough
	}

	s.admin = api.NewServer(api.FromConfig(s.cfg.Admin), deps)
}

// reload applies the parts of a new configuration that can change without
// restarting listeners.
func (s *Server) reload(cfg *config.Config) {
	logger.SetLevel(cfg.Logging.Level)

	if cfg.PassThrough.Enabled != s.cfg.PassThrough.Enabled {
		logger.Warn("Enabling or disabling pass-through authentication requires a restart")
		return
	}
	if s.passThrough == nil {
		return
	}
	if err := s.passThrough.Reload(cfg.PassThrough); err != nil {
		logger.Error("Pass-through configuration rejected", logger.Err(err))
		return
	}
	logger.Info("Pass-through configuration applied",
		"primary", len(cfg.PassThrough.PrimaryServers),
		"secondary", len(cfg.PassThrough.SecondaryServers))
}

package kerberos

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// Provider holds the service keytab, krb5.conf and service principal.
//
// Thread Safety: all methods are safe for concurrent use. The keytab can be
// swapped at runtime with ReloadKeytab.
type Provider struct {
	keytab           *keytab.Keytab
	krb5Conf         *krb5config.Config
	servicePrincipal string
	maxClockSkew     time.Duration
	keytabPath       string
	keytabManager    *KeytabManager
	mu               sync.RWMutex
}

// NewProvider loads the keytab and krb5.conf named by cfg and starts
// polling the keytab for changes. A keytab that cannot be loaded is a
// configuration error. A missing krb5.conf is tolerated only when none was
// configured; acceptors do not need realm data to verify AP-REQs.
func NewProvider(cfg *config.KerberosConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: kerberos config is nil", auth.ErrConfiguration)
	}

	keytabPath := resolveKeytabPath(cfg.KeytabPath)
	if keytabPath == "" {
		return nil, fmt.Errorf("%w: kerberos keytab path not configured (set keytab_path or %s)", auth.ErrConfiguration, EnvKeytab)
	}

	servicePrincipal := resolveServicePrincipal(cfg.ServicePrincipal)
	if servicePrincipal == "" {
		return nil, fmt.Errorf("%w: kerberos service principal not configured (set service_principal or %s)", auth.ErrConfiguration, EnvPrincipal)
	}
	if _, realm := SplitPrincipal(servicePrincipal); realm == "" {
		return nil, fmt.Errorf("%w: service principal %q has no realm", auth.ErrConfiguration, servicePrincipal)
	}

	kt, err := loadKeytab(keytabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load keytab %s: %v", auth.ErrConfiguration, keytabPath, err)
	}

	krb5ConfPath, explicit := resolveKrb5ConfPath(cfg.Krb5Conf)
	krbCfg, err := loadKrb5Conf(krb5ConfPath)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: load krb5.conf %s: %v", auth.ErrConfiguration, krb5ConfPath, err)
		}
		logger.Debug("No krb5.conf found, continuing without realm configuration", logger.KeyPath, krb5ConfPath)
		krbCfg = nil
	}

	skew := cfg.MaxClockSkew
	if skew <= 0 {
		skew = DefaultMaxClockSkew
	}

	p := &Provider{
		keytab:           kt,
		krb5Conf:         krbCfg,
		servicePrincipal: servicePrincipal,
		maxClockSkew:     skew,
		keytabPath:       keytabPath,
	}

	km := NewKeytabManager(keytabPath, p, cfg.KeytabRefresh)
	if err := km.Start(); err != nil {
		// Hot reload is best effort: the keytab was readable a moment ago.
		logger.Warn("Keytab hot-reload failed to start, continuing without it",
			logger.KeyPath, keytabPath, logger.Err(err))
	}
	p.keytabManager = km

	return p, nil
}

// NewStaticProvider wraps an in-memory keytab. It never reloads.
func NewStaticProvider(kt *keytab.Keytab, servicePrincipal string, maxClockSkew time.Duration) *Provider {
	if maxClockSkew <= 0 {
		maxClockSkew = DefaultMaxClockSkew
	}
	return &Provider{
		keytab:           kt,
		servicePrincipal: servicePrincipal,
		maxClockSkew:     maxClockSkew,
	}
}

// Keytab returns the current keytab.
func (p *Provider) Keytab() *keytab.Keytab {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keytab
}

// ServicePrincipal returns the full service principal, e.g.
// ldap/ds.example.com@EXAMPLE.COM.
func (p *Provider) ServicePrincipal() string {
	return p.servicePrincipal
}

// Realm returns the realm of the service principal.
func (p *Provider) Realm() string {
	_, realm := SplitPrincipal(p.servicePrincipal)
	return realm
}

func (p *Provider) MaxClockSkew() time.Duration {
	return p.maxClockSkew
}

// Krb5Config returns the loaded krb5.conf, or nil when none was found.
func (p *Provider) Krb5Config() *krb5config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.krb5Conf
}

// KeytabPath returns the file the keytab was loaded from, empty for a
// static provider.
func (p *Provider) KeytabPath() string {
	return p.keytabPath
}

// ReloadKeytab re-reads the keytab file and swaps it in. On error the
// previous keytab stays active.
func (p *Provider) ReloadKeytab() error {
	if p.keytabPath == "" {
		return errors.New("static provider has no keytab file")
	}
	kt, err := loadKeytab(p.keytabPath)
	if err != nil {
		return fmt.Errorf("reload keytab %s: %w", p.keytabPath, err)
	}

	p.mu.Lock()
	p.keytab = kt
	p.mu.Unlock()

	return nil
}

// Close stops keytab polling. Safe to call multiple times.
func (p *Provider) Close() error {
	if p.keytabManager != nil {
		p.keytabManager.Stop()
	}
	return nil
}

func loadKeytab(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keytab file: %w", err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab: %w", err)
	}

	return kt, nil
}

func loadKrb5Conf(path string) (*krb5config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	cfg, err := krb5config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse krb5.conf: %w", err)
	}

	return cfg, nil
}

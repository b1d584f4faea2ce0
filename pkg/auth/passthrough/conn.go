package passthrough

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// Conn is the subset of a remote LDAP connection used for pass-through.
// *ldap.Conn satisfies it.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
	IsClosing() bool
}

var _ Conn = (*ldap.Conn)(nil)

// Dialer opens connections to a remote server given as host:port.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) { return f(ctx, addr) }

// LDAPDialer dials remote servers with go-ldap.
type LDAPDialer struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	// UseSSL dials ldaps://. UseStartTLS upgrades an ldap:// connection.
	UseSSL      bool
	UseStartTLS bool

	// TLSConfig is used for both LDAPS and StartTLS. ServerName is filled
	// in per address when empty.
	TLSConfig *tls.Config
}

// NewLDAPDialer builds a dialer from the pass-through configuration.
func NewLDAPDialer(cfg config.PassThroughConfig) (*LDAPDialer, error) {
	d := &LDAPDialer{
		ConnectTimeout:   cfg.ConnectTimeout,
		OperationTimeout: cfg.OperationTimeout,
		UseSSL:           cfg.UseSSL,
		UseStartTLS:      cfg.UseStartTLS,
	}
	if !cfg.UseSSL && !cfg.UseStartTLS {
		return d, nil
	}

	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TrustAll {
		tc.InsecureSkipVerify = true // #nosec G402 -- operator opted in with trust_all
	} else if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: passthrough ca_file: %v", auth.ErrConfiguration, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: passthrough ca_file %s holds no certificates", auth.ErrConfiguration, cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	d.TLSConfig = tc
	return d, nil
}

func (d *LDAPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	nd := &net.Dialer{Timeout: d.ConnectTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		nd.Deadline = deadline
	}

	var tc *tls.Config
	if d.TLSConfig != nil {
		tc = d.TLSConfig.Clone()
		if tc.ServerName == "" {
			tc.ServerName = host
		}
	}

	scheme := "ldap"
	opts := []ldap.DialOpt{ldap.DialWithDialer(nd)}
	if d.UseSSL {
		scheme = "ldaps"
		opts = append(opts, ldap.DialWithTLSConfig(tc))
	}

	conn, err := ldap.DialURL(scheme+"://"+addr, opts...)
	if err != nil {
		return nil, err
	}
	if d.OperationTimeout > 0 {
		conn.SetTimeout(d.OperationTimeout)
	}
	if d.UseStartTLS && !d.UseSSL {
		if err := conn.StartTLS(tc); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

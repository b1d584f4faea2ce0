package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// Client certificate policies accepted in config.TLSConfig.ClientAuth.
const (
	ClientAuthDisabled = "disabled"
	ClientAuthOptional = "optional"
	ClientAuthRequired = "required"
)

var tlsVersions = map[string]uint16{
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// TLSProvider protects a connection with TLS. The handshake completes in
// NewTLSProvider, so the negotiated state is fixed for the provider's life.
type TLSProvider struct {
	conn         *tls.Conn
	state        tls.ConnectionState
	ssf          int
	writeTimeout time.Duration
	metrics      *Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewTLSProvider runs a server handshake on raw. On failure raw is closed
// and the error wraps auth.ErrHandshake.
func NewTLSProvider(ctx context.Context, raw net.Conn, cfg *tls.Config, opts Options) (*TLSProvider, error) {
	start := time.Now()
	conn := tls.Server(raw, cfg)

	hctx, cancel := context.WithTimeout(ctx, opts.handshakeTimeout())
	defer cancel()

	if err := conn.HandshakeContext(hctx); err != nil {
		_ = raw.Close()
		opts.Metrics.RecordHandshake(false, time.Since(start))
		logger.Debug("TLS handshake failed", "address", raw.RemoteAddr(), logger.Err(err))
		return nil, fmt.Errorf("%w: %v", auth.ErrHandshake, err)
	}
	opts.Metrics.RecordHandshake(true, time.Since(start))

	state := conn.ConnectionState()
	suite := tls.CipherSuiteName(state.CipherSuite)
	p := &TLSProvider{
		conn:         conn,
		state:        state,
		ssf:          CipherSuiteSSF(suite),
		writeTimeout: opts.writeTimeout(),
		metrics:      opts.Metrics,
	}
	opts.Metrics.ProviderInstalled(NameTLS)

	logger.Debug("TLS established",
		"address", raw.RemoteAddr(),
		"version", tls.VersionName(state.Version),
		"cipher", suite,
		logger.KeySSF, p.ssf,
		"client_certs", len(state.PeerCertificates))
	return p, nil
}

func (t *TLSProvider) Name() string   { return NameTLS }
func (t *TLSProvider) IsSecure() bool { return true }
func (t *TLSProvider) SSF() int       { return t.ssf }

// CipherSuite is the IANA name of the negotiated suite.
func (t *TLSProvider) CipherSuite() string { return tls.CipherSuiteName(t.state.CipherSuite) }

// Version is the negotiated protocol, e.g. "TLS 1.3".
func (t *TLSProvider) Version() string { return tls.VersionName(t.state.Version) }

// ClientCertificateChain returns the peer chain, leaf first.
func (t *TLSProvider) ClientCertificateChain() []*x509.Certificate {
	if len(t.state.PeerCertificates) == 0 {
		return nil
	}
	return t.state.PeerCertificates
}

func (t *TLSProvider) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *TLSProvider) Write(p []byte) (int, error) {
	return t.WriteWithDeadline(p, time.Now().Add(t.writeTimeout))
}

func (t *TLSProvider) WriteWithDeadline(p []byte, deadline time.Time) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(t.conn, p, deadline); err != nil {
		if errors.Is(err, ErrWriteTimeout) {
			t.metrics.RecordError(NameTLS, reasonWriteTimeout)
			_ = t.Close()
		}
		return 0, err
	}
	return len(p), nil
}

// SetWriteDeadline lets a SASL provider be stacked on this one.
func (t *TLSProvider) SetWriteDeadline(d time.Time) error {
	return t.conn.SetWriteDeadline(d)
}

// Close sends close_notify and closes the connection exactly once.
func (t *TLSProvider) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
		t.metrics.ProviderRemoved(NameTLS)
	})
	return t.closeErr
}

// BuildTLSConfig assembles a server tls.Config from configuration. Errors
// wrap auth.ErrConfiguration.
func BuildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("%w: tls cert_file and key_file are required", auth.ErrConfiguration)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load key pair: %v", auth.ErrConfiguration, err)
	}

	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA file: %v", auth.ErrConfiguration, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", auth.ErrConfiguration, cfg.CAFile)
		}
		tc.ClientCAs = pool
	}

	tc.ClientAuth, err = clientAuthType(cfg.ClientAuth, tc.ClientCAs != nil)
	if err != nil {
		return nil, err
	}

	if len(cfg.Protocols) > 0 {
		lo, hi := uint16(0), uint16(0)
		for _, name := range cfg.Protocols {
			v, ok := tlsVersions[name]
			if !ok {
				return nil, fmt.Errorf("%w: unsupported TLS protocol %q", auth.ErrConfiguration, name)
			}
			if lo == 0 || v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		tc.MinVersion, tc.MaxVersion = lo, hi
	}

	if len(cfg.CipherSuites) > 0 {
		ids, err := cipherSuiteIDs(cfg.CipherSuites)
		if err != nil {
			return nil, err
		}
		tc.CipherSuites = ids
	}

	return tc, nil
}

// clientAuthType maps a policy name. Without trusted roots a client
// certificate is requested but not verified here; SASL EXTERNAL validates
// it against the user's entry.
func clientAuthType(policy string, haveRoots bool) (tls.ClientAuthType, error) {
	switch strings.ToLower(policy) {
	case "", ClientAuthDisabled:
		return tls.NoClientCert, nil
	case ClientAuthOptional:
		if haveRoots {
			return tls.VerifyClientCertIfGiven, nil
		}
		return tls.RequestClientCert, nil
	case ClientAuthRequired:
		if haveRoots {
			return tls.RequireAndVerifyClientCert, nil
		}
		return tls.RequireAnyClientCert, nil
	default:
		return tls.NoClientCert, fmt.Errorf("%w: unknown client_auth policy %q", auth.ErrConfiguration, policy)
	}
}

// cipherSuiteIDs resolves IANA suite names. Insecure suites are accepted
// when named explicitly.
func cipherSuiteIDs(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		known[cs.Name] = cs.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, n := range names {
		id, ok := known[strings.ToUpper(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cipher suite %q", auth.ErrConfiguration, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Package digestmd5 implements the DIGEST-MD5 SASL mechanism (RFC 2831)
// with the md5-sess algorithm and its auth-int and auth-conf security layers.
//
// A bind runs in two round trips. The first request carries no credentials
// and receives a challenge with a fresh nonce, which is kept as connection
// state. The second carries the digest-response; on success the server
// returns rspauth and, for auth-int or auth-conf, a security layer.
package digestmd5

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/sasl"
)

// Quality of protection values.
const (
	QOPAuth            = "auth"
	QOPIntegrity       = "auth-int"
	QOPConfidentiality = "auth-conf"
)

// DefaultMaxBuffer is the maxbuf assumed when a peer does not send one.
const DefaultMaxBuffer = 65536

const nonceLength = 16

var errNoChallenge = errors.New("no DIGEST-MD5 challenge outstanding")

// Config configures the handler.
type Config struct {
	// Realm defaults to ServerFQDN.
	Realm string

	// QOP lists the offered protections. Default: auth.
	QOP []string

	// ServerFQDN forms the expected digest-uri ldap/<fqdn>. Empty resolves
	// the local host name.
	ServerFQDN string

	// MaxBuffer is the largest wrapped message accepted. Default: 65536
	MaxBuffer int

	Resolver  *sasl.Resolver
	Passwords auth.ClearPasswordSource
}

// Mechanism is the DIGEST-MD5 handler. It is safe for concurrent use; all
// per-bind data lives in the connection's mechanism state.
type Mechanism struct {
	realm     string
	fqdn      string
	qop       []string
	maxBuffer int
	resolver  *sasl.Resolver
	passwords auth.ClearPasswordSource
}

var _ auth.Mechanism = (*Mechanism)(nil)

// New validates cfg. A missing identity mapper or password source, an
// unknown QOP or an unresolvable host name is a configuration error.
func New(cfg Config) (*Mechanism, error) {
	if cfg.Resolver == nil || cfg.Resolver.Directory == nil || cfg.Resolver.Mapper == nil {
		return nil, fmt.Errorf("%w: DIGEST-MD5 requires a directory and an identity mapper", auth.ErrConfiguration)
	}
	if cfg.Passwords == nil {
		return nil, fmt.Errorf("%w: DIGEST-MD5 requires a clear password source", auth.ErrConfiguration)
	}

	qop := make([]string, 0, len(cfg.QOP))
	for _, q := range cfg.QOP {
		q = strings.ToLower(strings.TrimSpace(q))
		switch q {
		case QOPAuth, QOPIntegrity, QOPConfidentiality:
		default:
			return nil, fmt.Errorf("%w: unknown DIGEST-MD5 qop %q", auth.ErrConfiguration, q)
		}
		if !slices.Contains(qop, q) {
			qop = append(qop, q)
		}
	}
	if len(qop) == 0 {
		qop = []string{QOPAuth}
	}

	fqdn := cfg.ServerFQDN
	if fqdn == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			return nil, fmt.Errorf("%w: cannot determine server FQDN: %v", auth.ErrConfiguration, err)
		}
		fqdn = host
	}

	realm := cfg.Realm
	if realm == "" {
		realm = fqdn
	}

	maxBuffer := cfg.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	if maxBuffer > maxBufLimit {
		maxBuffer = maxBufLimit
	}

	return &Mechanism{
		realm:     realm,
		fqdn:      fqdn,
		qop:       qop,
		maxBuffer: maxBuffer,
		resolver:  cfg.Resolver,
		passwords: cfg.Passwords,
	}, nil
}

func (*Mechanism) Name() string          { return auth.MechanismDigestMD5 }
func (*Mechanism) IsPasswordBased() bool { return true }
func (*Mechanism) IsSecure() bool        { return true }

// Realm returns the realm sent in challenges.
func (m *Mechanism) Realm() string { return m.realm }

// DigestURI returns the digest-uri clients must send.
func (m *Mechanism) DigestURI() string { return "ldap/" + m.fqdn }

// state is the per-connection record between the challenge and the response.
type state struct {
	nonce string
	nc    uint32
}

func (s *state) Dispose() error {
	s.nonce = ""
	return nil
}

// ProcessBind issues a challenge for an empty request and verifies the
// digest-response otherwise.
func (m *Mechanism) ProcessBind(ctx context.Context, conn *auth.Connection, req *auth.BindRequest) *auth.BindOutcome {
	if len(req.Credentials) == 0 {
		return m.challenge(conn)
	}

	st, _ := conn.MechanismState(auth.MechanismDigestMD5).(*state)
	if st == nil {
		return auth.Failed(fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, errNoChallenge))
	}

	resp, err := ParseResponse(req.Credentials)
	if err != nil {
		return auth.Failed(err)
	}
	if err := m.checkResponse(ctx, st, resp); err != nil {
		return auth.Failed(err)
	}

	entry, err := m.resolver.ResolveAuthcID(ctx, resp.Username)
	if err != nil {
		return auth.Failed(err)
	}
	authz, err := m.resolver.ResolveAuthzID(ctx, entry, resp.AuthzID)
	if err != nil {
		return auth.Failed(err)
	}

	clears, err := m.passwords.ClearPasswords(ctx, entry)
	if err != nil {
		return auth.Failed(fmt.Errorf("read clear passwords of %q: %w", entry.DN, err))
	}
	if len(clears) == 0 {
		return auth.Failed(fmt.Errorf("%w: %q has no reversible password", auth.ErrInvalidCredentials, entry.DN))
	}

	var (
		p   *params
		ha1 [md5.Size]byte
	)
	for _, pw := range clears {
		candidate := paramsFor(resp, resp.Realm, pw)
		key := candidate.sessionKey()
		if subtle.ConstantTimeCompare(candidate.digest(key, methodAuthenticate), resp.Digest) == 1 {
			p, ha1 = candidate, key
			break
		}
	}
	if p == nil {
		return auth.Failed(fmt.Errorf("%w: digest mismatch for %q", auth.ErrInvalidCredentials, entry.DN))
	}
	st.nc = resp.NC

	var layer auth.SecurityLayer
	if resp.QOP != QOPAuth {
		l, err := NewLayer(resp.QOP, resp.Cipher, ha1, resp.MaxBuf, true)
		if err != nil {
			return auth.Failed(fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err))
		}
		layer = l
	}

	rspauth := fmt.Appendf(nil, "rspauth=%x", p.digest(ha1, methodResponseAuth))
	return auth.Succeeded(sasl.Info(auth.MechanismDigestMD5, entry, authz), rspauth, layer)
}

func (m *Mechanism) challenge(conn *auth.Connection) *auth.BindOutcome {
	raw := make([]byte, nonceLength)
	if _, err := rand.Read(raw); err != nil {
		return auth.Failed(fmt.Errorf("generate nonce: %w", err))
	}

	c := &Challenge{
		Realm: m.realm,
		Nonce: base64.StdEncoding.EncodeToString(raw),
		QOP:   m.qop,
	}
	if m.offersLayer() {
		c.MaxBuf = m.maxBuffer
	}
	if slices.Contains(m.qop, QOPConfidentiality) {
		c.Ciphers = SupportedCiphers
	}

	if err := conn.SetMechanismState(auth.MechanismDigestMD5, &state{nonce: c.Nonce}); err != nil {
		return auth.Failed(err)
	}
	return auth.InProgress([]byte(c.String()))
}

func (m *Mechanism) offersLayer() bool {
	return slices.Contains(m.qop, QOPIntegrity) || slices.Contains(m.qop, QOPConfidentiality)
}

// checkResponse validates the response against the outstanding challenge.
func (m *Mechanism) checkResponse(ctx context.Context, st *state, r *Response) error {
	if subtle.ConstantTimeCompare([]byte(r.Nonce), []byte(st.nonce)) != 1 {
		return fmt.Errorf("%w: nonce does not match the challenge", auth.ErrInvalidCredentials)
	}
	if r.NC != st.nc+1 {
		logger.WarnCtx(ctx, "DIGEST-MD5 nonce count out of sequence, possible replay",
			"nc", r.NCText, "expected", st.nc+1)
		return fmt.Errorf("%w: nonce count %s out of sequence", auth.ErrInvalidCredentials, r.NCText)
	}
	if !strings.EqualFold(r.DigestURI, m.DigestURI()) {
		return fmt.Errorf("%w: digest-uri %q, expected %q", auth.ErrInvalidCredentials, r.DigestURI, m.DigestURI())
	}
	if r.Realm != "" && r.Realm != m.realm {
		return fmt.Errorf("%w: realm %q not served", auth.ErrInvalidCredentials, r.Realm)
	}
	if !slices.Contains(m.qop, r.QOP) {
		return fmt.Errorf("%w: qop %q not offered", auth.ErrInvalidCredentials, r.QOP)
	}
	if r.QOP == QOPConfidentiality {
		if r.Cipher == "" {
			return fmt.Errorf("%w: auth-conf requires a cipher", auth.ErrInvalidCredentials)
		}
		if !slices.Contains(SupportedCiphers, r.Cipher) {
			return fmt.Errorf("%w: cipher %q not offered", auth.ErrInvalidCredentials, r.Cipher)
		}
	}
	return nil
}

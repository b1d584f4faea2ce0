package sasl

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/mapper"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

const (
	aliceDN = "uid=alice,ou=people,dc=example,dc=com"
	bobDN   = "uid=bob,ou=people,dc=example,dc=com"
	proxyDN = "uid=proxy,ou=people,dc=example,dc=com"
)

type fixture struct {
	dir      *directory.MemoryDirectory
	resolver *Resolver
	policy   *password.LocalPolicy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := password.NewRegistryWithOptions(password.Options{BcryptCost: 4, PBKDF2Iterations: 1000})
	enc := func(pw string) string {
		v, err := reg.Encode("SSHA256", []byte(pw))
		require.NoError(t, err)
		return string(v)
	}

	d := directory.NewMemoryDirectory("dc=example,dc=com")
	require.NoError(t, d.AddEntry("dc=example,dc=com", map[string][]string{"objectClass": {"domain"}}))
	require.NoError(t, d.AddEntry("ou=people,dc=example,dc=com", map[string][]string{"objectClass": {"organizationalUnit"}}))
	require.NoError(t, d.AddEntry(aliceDN, map[string][]string{"uid": {"alice"}, "userPassword": {enc("alice-pw")}}))
	require.NoError(t, d.AddEntry(bobDN, map[string][]string{"uid": {"bob"}, "userPassword": {enc("bob-pw")}}))
	require.NoError(t, d.AddEntry(proxyDN, map[string][]string{
		"uid": {"proxy"}, "userPassword": {enc("proxy-pw")}, directory.PrivilegeAttribute: {string(directory.PrivilegeProxiedAuth)},
	}))

	m, err := mapper.NewExactMatchMapper(d, "exact-match", []string{"uid"}, nil)
	require.NoError(t, err)

	return &fixture{
		dir:      d,
		resolver: &Resolver{Directory: d, Mapper: m, Privileges: d},
		policy:   password.NewLocalPolicy(reg),
	}
}

func plainCreds(authzid, authcid, pw string) []byte {
	return []byte(authzid + "\x00" + authcid + "\x00" + pw)
}

type errValidator struct{ err error }

func (v errValidator) PasswordMatches(context.Context, *ldap.Entry, []byte) (bool, error) {
	return false, v.err
}

type certChannel struct{ chain []*x509.Certificate }

func (c certChannel) Name() string                                { return "tls" }
func (c certChannel) IsSecure() bool                              { return true }
func (c certChannel) SSF() int                                    { return 128 }
func (c certChannel) ClientCertificateChain() []*x509.Certificate { return c.chain }

func selfSigned(t *testing.T, subject pkix.Name) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// ============================================================================
// ANONYMOUS
// ============================================================================

func TestAnonymous(t *testing.T) {
	a := NewAnonymous()
	conn := auth.NewConnection("192.0.2.1:1", nil)

	for _, creds := range [][]byte{nil, []byte("trace@example.com"), {0xff, 0xfe}} {
		out := a.ProcessBind(context.Background(), conn, &auth.BindRequest{Mechanism: "ANONYMOUS", Credentials: creds})
		require.True(t, out.Succeeded())
		assert.False(t, out.AuthInfo.IsAuthenticated())
	}
	assert.False(t, a.IsPasswordBased())
}

// ============================================================================
// PLAIN
// ============================================================================

func TestParsePlain(t *testing.T) {
	tests := []struct {
		name    string
		creds   []byte
		authzid string
		authcid string
		pw      string
		wantErr bool
	}{
		{"no authzid", plainCreds("", "alice", "pw"), "", "alice", "pw", false},
		{"with authzid", plainCreds("dn:uid=bob", "alice", "pw"), "dn:uid=bob", "alice", "pw", false},
		{"nil", nil, "", "", "", true},
		{"one separator", []byte("alice\x00pw"), "", "", "", true},
		{"empty authcid", plainCreds("", "", "pw"), "", "", "", true},
		{"empty password", plainCreds("", "alice", ""), "", "", "", true},
		{"nul in password", plainCreds("", "alice", "p\x00w"), "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authzid, authcid, pw, err := ParsePlain(tt.creds)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.authzid, authzid)
			assert.Equal(t, tt.authcid, authcid)
			assert.Equal(t, tt.pw, string(pw))
		})
	}
}

func TestPlainBind(t *testing.T) {
	f := newFixture(t)
	p, err := NewPlain(f.resolver, f.policy)
	require.NoError(t, err)
	conn := auth.NewConnection("192.0.2.1:1", nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		creds     []byte
		wantCode  auth.ResultCode
		wantAuthn string
		wantAuthz string
	}{
		{"bare id", plainCreds("", "alice", "alice-pw"), auth.ResultSuccess, aliceDN, ""},
		{"u: prefix", plainCreds("", "u:alice", "alice-pw"), auth.ResultSuccess, aliceDN, ""},
		{"dn: prefix", plainCreds("", "dn:"+aliceDN, "alice-pw"), auth.ResultSuccess, aliceDN, ""},
		{"self authzid", plainCreds("u:alice", "alice", "alice-pw"), auth.ResultSuccess, aliceDN, ""},
		{"self authzid by dn", plainCreds("dn:UID=ALICE,ou=people,dc=example,dc=com", "alice", "alice-pw"), auth.ResultSuccess, aliceDN, ""},
		{"wrong password", plainCreds("", "alice", "nope"), auth.ResultInvalidCredentials, "", ""},
		{"unknown user", plainCreds("", "carol", "x"), auth.ResultInvalidCredentials, "", ""},
		{"unknown dn", plainCreds("", "dn:uid=carol,dc=example,dc=com", "x"), auth.ResultInvalidCredentials, "", ""},
		{"malformed", []byte("garbage"), auth.ResultInvalidCredentials, "", ""},
		{"proxy without privilege", plainCreds("u:bob", "alice", "alice-pw"), auth.ResultInvalidCredentials, "", ""},
		{"proxy with privilege", plainCreds("u:bob", "proxy", "proxy-pw"), auth.ResultSuccess, proxyDN, bobDN},
		{"proxy by dn", plainCreds("dn:"+aliceDN, "proxy", "proxy-pw"), auth.ResultSuccess, proxyDN, aliceDN},
		{"proxy to unknown", plainCreds("u:carol", "proxy", "proxy-pw"), auth.ResultInvalidCredentials, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.ProcessBind(ctx, conn, &auth.BindRequest{Mechanism: "PLAIN", Credentials: tt.creds})
			require.Equal(t, tt.wantCode, out.ResultCode, "err: %v", out.Err)
			if tt.wantCode != auth.ResultSuccess {
				assert.Error(t, out.Err)
				return
			}
			assert.Equal(t, tt.wantAuthn, out.AuthInfo.AuthenticationDN)
			assert.Equal(t, tt.wantAuthz, out.AuthInfo.AuthorizationDN)
			assert.Equal(t, auth.MechanismPlain, out.AuthInfo.Mechanism)
		})
	}
}

func TestPlainRemoteInfrastructureFailure(t *testing.T) {
	f := newFixture(t)
	infra := fmt.Errorf("connect ldap1:389: %w", auth.ErrRemoteAuthInfrastructure)
	p, err := NewPlain(f.resolver, errValidator{err: infra})
	require.NoError(t, err)

	out := p.ProcessBind(context.Background(), auth.NewConnection("192.0.2.1:1", nil),
		&auth.BindRequest{Mechanism: "PLAIN", Credentials: plainCreds("", "alice", "alice-pw")})
	assert.Equal(t, auth.ResultUnavailable, out.ResultCode)
	assert.ErrorIs(t, out.Err, auth.ErrRemoteAuthInfrastructure)
}

func TestPlainConfiguration(t *testing.T) {
	f := newFixture(t)
	_, err := NewPlain(nil, f.policy)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
	_, err = NewPlain(f.resolver, nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestPlainThroughDispatcher(t *testing.T) {
	f := newFixture(t)
	p, err := NewPlain(f.resolver, f.policy)
	require.NoError(t, err)

	d := auth.NewDispatcher(nil)
	d.Register(p)
	d.Register(NewAnonymous())
	conn := auth.NewConnection("192.0.2.1:1", nil)

	out := d.ProcessBind(context.Background(), conn, &auth.BindRequest{Mechanism: "plain", Credentials: plainCreds("", "alice", "alice-pw")})
	require.True(t, out.Succeeded())
	assert.Equal(t, "dn:"+aliceDN, conn.AuthenticationInfo().AuthzID())

	out = d.ProcessBind(context.Background(), conn, &auth.BindRequest{Mechanism: "PLAIN", Credentials: plainCreds("", "alice", "bad")})
	assert.Equal(t, auth.ResultInvalidCredentials, out.ResultCode)
	assert.Nil(t, conn.AuthenticationInfo())
}

// ============================================================================
// Authorization identity
// ============================================================================

func TestResolveAuthzIDAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proxy, err := f.dir.GetEntry(ctx, proxyDN)
	require.NoError(t, err)

	authz, err := f.resolver.ResolveAuthzID(ctx, proxy, "dn:")
	require.NoError(t, err)
	assert.True(t, authz.Anonymous)

	alice, err := f.dir.GetEntry(ctx, aliceDN)
	require.NoError(t, err)
	_, err = f.resolver.ResolveAuthzID(ctx, alice, "dn:")
	assert.ErrorIs(t, err, auth.ErrProxiedAuthDenied)
}

// ============================================================================
// EXTERNAL
// ============================================================================

func TestExternal(t *testing.T) {
	f := newFixture(t)
	cert := selfSigned(t, pkix.Name{CommonName: "alice"})
	stranger := selfSigned(t, pkix.Name{CommonName: "alice"})
	require.NoError(t, f.dir.AddEntry("uid=certalice,ou=people,dc=example,dc=com", map[string][]string{
		"uid":                          {"certalice"},
		mapper.DefaultSubjectAttribute: {mapper.SubjectDN(cert)},
		"userCertificate;binary":       {string(cert.Raw)},
	}))

	cm, err := mapper.NewSubjectAttributeMapper(f.dir, "", nil)
	require.NoError(t, err)
	ctx := context.Background()
	req := &auth.BindRequest{Mechanism: "EXTERNAL"}

	t.Run("no certificate", func(t *testing.T) {
		e, err := NewExternal(ExternalConfig{Mapper: cm})
		require.NoError(t, err)
		out := e.ProcessBind(ctx, auth.NewConnection("192.0.2.1:1", nil), req)
		assert.Equal(t, auth.ResultInappropriateAuthentication, out.ResultCode)
	})

	t.Run("mapped", func(t *testing.T) {
		e, err := NewExternal(ExternalConfig{Mapper: cm, Validation: ValidateAlways})
		require.NoError(t, err)
		conn := auth.NewConnection("192.0.2.1:1", certChannel{chain: []*x509.Certificate{cert}})
		out := e.ProcessBind(ctx, conn, req)
		require.True(t, out.Succeeded(), "err: %v", out.Err)
		assert.Equal(t, "uid=certalice,ou=people,dc=example,dc=com", out.AuthInfo.AuthenticationDN)
	})

	t.Run("same subject different key fails validation", func(t *testing.T) {
		e, err := NewExternal(ExternalConfig{Mapper: cm, Validation: ValidateIfPresent})
		require.NoError(t, err)
		conn := auth.NewConnection("192.0.2.1:1", certChannel{chain: []*x509.Certificate{stranger}})
		out := e.ProcessBind(ctx, conn, req)
		assert.Equal(t, auth.ResultInvalidCredentials, out.ResultCode)
	})

	t.Run("same subject different key accepted when ignored", func(t *testing.T) {
		e, err := NewExternal(ExternalConfig{Mapper: cm})
		require.NoError(t, err)
		conn := auth.NewConnection("192.0.2.1:1", certChannel{chain: []*x509.Certificate{stranger}})
		out := e.ProcessBind(ctx, conn, req)
		assert.True(t, out.Succeeded())
	})

	t.Run("authzid without resolver", func(t *testing.T) {
		e, err := NewExternal(ExternalConfig{Mapper: cm})
		require.NoError(t, err)
		conn := auth.NewConnection("192.0.2.1:1", certChannel{chain: []*x509.Certificate{cert}})
		out := e.ProcessBind(ctx, conn, &auth.BindRequest{Mechanism: "EXTERNAL", Credentials: []byte("u:bob")})
		assert.Equal(t, auth.ResultInvalidCredentials, out.ResultCode)
	})

	t.Run("bad policy", func(t *testing.T) {
		_, err := NewExternal(ExternalConfig{Mapper: cm, Validation: "sometimes"})
		assert.ErrorIs(t, err, auth.ErrConfiguration)
		_, err = NewExternal(ExternalConfig{})
		assert.ErrorIs(t, err, auth.ErrConfiguration)
	})
}

func TestExternalValidateAlwaysWithoutStoredCertificate(t *testing.T) {
	f := newFixture(t)
	cert := selfSigned(t, pkix.Name{CommonName: "nocert"})
	require.NoError(t, f.dir.AddEntry("uid=nocert,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"nocert"}, mapper.DefaultSubjectAttribute: {mapper.SubjectDN(cert)},
	}))
	cm, err := mapper.NewSubjectAttributeMapper(f.dir, "", nil)
	require.NoError(t, err)
	conn := auth.NewConnection("192.0.2.1:1", certChannel{chain: []*x509.Certificate{cert}})

	always, err := NewExternal(ExternalConfig{Mapper: cm, Validation: ValidateAlways})
	require.NoError(t, err)
	out := always.ProcessBind(context.Background(), conn, &auth.BindRequest{Mechanism: "EXTERNAL"})
	assert.Equal(t, auth.ResultInvalidCredentials, out.ResultCode)

	ifPresent, err := NewExternal(ExternalConfig{Mapper: cm, Validation: ValidateIfPresent})
	require.NoError(t, err)
	out = ifPresent.ProcessBind(context.Background(), conn, &auth.BindRequest{Mechanism: "EXTERNAL"})
	assert.True(t, out.Succeeded())
}

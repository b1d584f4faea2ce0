package mapper

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

func newDirectory(t *testing.T) *directory.MemoryDirectory {
	t.Helper()
	d := directory.NewMemoryDirectory("dc=example,dc=com", "o=example")
	add := func(dn string, attrs map[string][]string) {
		require.NoError(t, d.AddEntry(dn, attrs))
	}
	add("dc=example,dc=com", map[string][]string{"objectClass": {"domain"}})
	add("ou=people,dc=example,dc=com", map[string][]string{"objectClass": {"organizationalUnit"}})
	add("ou=staff,dc=example,dc=com", map[string][]string{"objectClass": {"organizationalUnit"}})
	add("uid=alice,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"alice"}, "mail": {"alice@example.com"},
	})
	add("uid=bob,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"bob"}, "mail": {"shared@example.com"},
	})
	add("uid=bob,ou=staff,dc=example,dc=com", map[string][]string{
		"uid": {"bob"}, "mail": {"shared@example.com"},
	})
	add("uid=weird*(name),ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"weird*(name)"},
	})
	add("o=example", map[string][]string{"objectClass": {"organization"}})
	return d
}

func selfSigned(t *testing.T, subject pkix.Name) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
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

func assertMappingError(t *testing.T, err error, target error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, target)
	var me *MappingError
	assert.True(t, errors.As(err, &me), "expected *MappingError, got %T", err)
}

// ============================================================================
// Identity mappers
// ============================================================================

func TestExactMatchMapper(t *testing.T) {
	d := newDirectory(t)
	m, err := NewExactMatchMapper(d, "exact-match", []string{"uid"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	entry, err := m.MapIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)

	_, err = m.MapIdentity(ctx, "nobody")
	assertMappingError(t, err, ErrNoMapping)
	assert.ErrorIs(t, err, auth.ErrMappingNotFound)
	assert.Equal(t, auth.ResultInvalidCredentials, auth.ResultCodeForError(err))

	entry, err = m.MapIdentity(ctx, "weird*(name)")
	require.NoError(t, err)
	assert.Equal(t, "weird*(name)", entry.GetAttributeValue("uid"))
}

func TestMapperAmbiguity(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	t.Run("within one base", func(t *testing.T) {
		m, err := NewExactMatchMapper(d, "by-uid", []string{"uid"}, []string{"dc=example,dc=com"})
		require.NoError(t, err)
		_, err = m.MapIdentity(ctx, "bob")
		assertMappingError(t, err, ErrAmbiguousMapping)
	})

	t.Run("across bases", func(t *testing.T) {
		m, err := NewExactMatchMapper(d, "by-uid", []string{"uid"},
			[]string{"ou=people,dc=example,dc=com", "ou=staff,dc=example,dc=com"})
		require.NoError(t, err)
		_, err = m.MapIdentity(ctx, "bob")
		assertMappingError(t, err, ErrAmbiguousMapping)
	})

	t.Run("overlapping bases return the same entry once", func(t *testing.T) {
		m, err := NewExactMatchMapper(d, "by-uid", []string{"uid"},
			[]string{"dc=example,dc=com", "ou=people,dc=example,dc=com"})
		require.NoError(t, err)
		entry, err := m.MapIdentity(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)
	})
}

func TestMapperSkipsMissingBase(t *testing.T) {
	d := newDirectory(t)
	m, err := NewExactMatchMapper(d, "by-uid", []string{"uid"},
		[]string{"ou=missing,dc=example,dc=com", "ou=people,dc=example,dc=com"})
	require.NoError(t, err)

	entry, err := m.MapIdentity(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)
}

func TestRegexMapper(t *testing.T) {
	d := newDirectory(t)
	m, err := NewRegexMapper(d, RegexConfig{
		Name:            "strip-realm",
		MatchAttributes: []string{"uid"},
		Pattern:         `^([^@]+)@.+$`,
		Replacement:     "$1",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", m.Transform("alice@EXAMPLE.COM"))
	assert.Equal(t, "alice", m.Transform("alice"))

	entry, err := m.MapIdentity(context.Background(), "alice@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)
}

func TestRegexMapperMultipleAttributes(t *testing.T) {
	d := newDirectory(t)
	m, err := NewExactMatchMapper(d, "uid-or-mail", []string{"uid", "mail"}, nil)
	require.NoError(t, err)

	entry, err := m.MapIdentity(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)
}

func TestRegexMapperConfigurationErrors(t *testing.T) {
	d := newDirectory(t)

	_, err := NewRegexMapper(d, RegexConfig{Name: "x"})
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewRegexMapper(d, RegexConfig{Name: "x", MatchAttributes: []string{"uid"}, Pattern: "("})
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewRegexMapper(d, RegexConfig{Name: "x", MatchAttributes: []string{"uid"}, BaseDNs: []string{"not a dn"}})
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestEqualityFilter(t *testing.T) {
	assert.Equal(t, "(uid=alice)", equalityFilter([]string{"uid"}, "alice"))
	assert.Equal(t, "(|(uid=a\\2a)(mail=a\\2a))", equalityFilter([]string{"uid", "mail"}, "a*"))
}

// ============================================================================
// Certificate mappers
// ============================================================================

func TestFingerprint(t *testing.T) {
	fp, err := Fingerprint("md5", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "90:01:50:98:3C:D2:4F:B0:D6:96:3F:7D:28:E1:7F:72", fp)

	fp, err = Fingerprint("SHA1", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "A9:99:3E:36:47:06:81:6A:BA:3E:25:71:78:50:C2:6C:9C:D0:D8:9D", fp)

	_, err = Fingerprint("SHA512", nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestFingerprintMapper(t *testing.T) {
	d := newDirectory(t)
	cert := selfSigned(t, pkix.Name{CommonName: "alice"})
	fp, err := Fingerprint(AlgorithmSHA1, cert.Raw)
	require.NoError(t, err)
	require.NoError(t, d.AddEntry("uid=certuser,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"certuser"}, DefaultFingerprintAttribute: {fp},
	}))

	m, err := NewFingerprintMapper(d, "", "sha1", nil)
	require.NoError(t, err)

	entry, err := m.MapCertificate(context.Background(), []*x509.Certificate{cert})
	require.NoError(t, err)
	assert.Equal(t, "uid=certuser,ou=people,dc=example,dc=com", entry.DN)

	other := selfSigned(t, pkix.Name{CommonName: "mallory"})
	_, err = m.MapCertificate(context.Background(), []*x509.Certificate{other})
	assertMappingError(t, err, ErrNoMapping)

	_, err = m.MapCertificate(context.Background(), nil)
	assertMappingError(t, err, ErrNoMapping)
}

func TestSubjectAttributeMapper(t *testing.T) {
	d := newDirectory(t)
	cert := selfSigned(t, pkix.Name{CommonName: "Alice", Organization: []string{"Example"}})
	subject := SubjectDN(cert)
	assert.Equal(t, "CN=Alice,O=Example", subject)

	require.NoError(t, d.AddEntry("uid=alice2,ou=people,dc=example,dc=com", map[string][]string{
		"uid": {"alice2"}, DefaultSubjectAttribute: {subject},
	}))

	m, err := NewSubjectAttributeMapper(d, "", []string{"ou=people,dc=example,dc=com"})
	require.NoError(t, err)

	entry, err := m.MapCertificate(context.Background(), []*x509.Certificate{cert})
	require.NoError(t, err)
	assert.Equal(t, "uid=alice2,ou=people,dc=example,dc=com", entry.DN)
}

func TestSubjectEqualsDNMapper(t *testing.T) {
	d := newDirectory(t)
	require.NoError(t, d.AddEntry("cn=Service,o=example", map[string][]string{"cn": {"Service"}}))
	cert := selfSigned(t, pkix.Name{CommonName: "Service", Organization: []string{"example"}})

	m, err := NewSubjectEqualsDNMapper(d, nil)
	require.NoError(t, err)
	entry, err := m.MapCertificate(context.Background(), []*x509.Certificate{cert})
	require.NoError(t, err)
	assert.True(t, strings.EqualFold("cn=Service,o=example", entry.DN))

	restricted, err := NewSubjectEqualsDNMapper(d, []string{"dc=example,dc=com"})
	require.NoError(t, err)
	_, err = restricted.MapCertificate(context.Background(), []*x509.Certificate{cert})
	assertMappingError(t, err, ErrNoMapping)

	unknown := selfSigned(t, pkix.Name{CommonName: "Ghost", Organization: []string{"example"}})
	_, err = m.MapCertificate(context.Background(), []*x509.Certificate{unknown})
	assertMappingError(t, err, ErrNoMapping)
}

// ============================================================================
// Factory
// ============================================================================

func TestNewSetFromConfig(t *testing.T) {
	d := newDirectory(t)
	set, err := NewSet(d, map[string]config.IdentityMapperConfig{
		"exact-match": {Type: "exact", MatchAttributes: []string{"uid"}},
		"strip":       {Type: "regex", MatchAttributes: []string{"uid"}, Pattern: `@.*$`, Replacement: ""},
	})
	require.NoError(t, err)

	m, err := set.Get("EXACT-MATCH")
	require.NoError(t, err)
	entry, err := m.MapIdentity(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)

	m, err = set.Get("strip")
	require.NoError(t, err)
	entry, err = m.MapIdentity(context.Background(), "alice@realm")
	require.NoError(t, err)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", entry.DN)

	_, err = set.Get("missing")
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = NewSet(d, map[string]config.IdentityMapperConfig{"bad": {Type: "ldap"}})
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestNewCertificateMapperFromConfig(t *testing.T) {
	d := newDirectory(t)

	m, err := NewCertificateMapper(d, config.CertificateMapperConfig{Type: "fingerprint", Algorithm: "MD5"})
	require.NoError(t, err)
	assert.IsType(t, &FingerprintMapper{}, m)

	m, err = NewCertificateMapper(d, config.CertificateMapperConfig{Type: "subject_dn"})
	require.NoError(t, err)
	assert.IsType(t, &SubjectAttributeMapper{}, m)

	m, err = NewCertificateMapper(d, config.CertificateMapperConfig{})
	require.NoError(t, err)
	assert.IsType(t, &SubjectEqualsDNMapper{}, m)

	_, err = NewCertificateMapper(d, config.CertificateMapperConfig{Type: "crl"})
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

package mapper

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// Default attributes searched by the certificate mappers.
const (
	DefaultFingerprintAttribute = "ds-certificate-fingerprint"
	DefaultSubjectAttribute     = "ds-certificate-subject-dn"
)

// Fingerprint algorithms.
const (
	AlgorithmMD5  = "MD5"
	AlgorithmSHA1 = "SHA1"
)

// Fingerprint formats the digest of der as upper-case hex pairs joined by ':'.
func Fingerprint(algorithm string, der []byte) (string, error) {
	var sum []byte
	switch strings.ToUpper(algorithm) {
	case AlgorithmMD5:
		s := md5.Sum(der)
		sum = s[:]
	case AlgorithmSHA1, "SHA-1":
		s := sha1.Sum(der)
		sum = s[:]
	default:
		return "", fmt.Errorf("%w: unsupported fingerprint algorithm %q", auth.ErrConfiguration, algorithm)
	}

	hexStr := strings.ToUpper(hex.EncodeToString(sum))
	pairs := make([]string, 0, len(sum))
	for i := 0; i < len(hexStr); i += 2 {
		pairs = append(pairs, hexStr[i:i+2])
	}
	return strings.Join(pairs, ":"), nil
}

// SubjectDN renders the certificate subject as an RFC 2253 string.
func SubjectDN(cert *x509.Certificate) string {
	return cert.Subject.String()
}

func leaf(chain []*x509.Certificate) (*x509.Certificate, error) {
	if len(chain) == 0 || chain[0] == nil {
		return nil, &MappingError{Err: fmt.Errorf("%w: %v", ErrNoMapping, errEmptyChain)}
	}
	return chain[0], nil
}

// FingerprintMapper finds the entry whose fingerprint attribute holds the
// leaf certificate fingerprint.
type FingerprintMapper struct {
	dir       directory.Directory
	attribute string
	algorithm string
	bases     []string
}

var _ CertificateMapper = (*FingerprintMapper)(nil)

// NewFingerprintMapper validates the algorithm and bases.
func NewFingerprintMapper(dir directory.Directory, attribute, algorithm string, bases []string) (*FingerprintMapper, error) {
	if attribute == "" {
		attribute = DefaultFingerprintAttribute
	}
	if algorithm == "" {
		algorithm = AlgorithmMD5
	}
	if _, err := Fingerprint(algorithm, nil); err != nil {
		return nil, err
	}
	if err := validateBases(bases); err != nil {
		return nil, err
	}
	return &FingerprintMapper{dir: dir, attribute: attribute, algorithm: strings.ToUpper(algorithm), bases: bases}, nil
}

// MapCertificate implements CertificateMapper.
func (m *FingerprintMapper) MapCertificate(ctx context.Context, chain []*x509.Certificate) (entry *ldap.Entry, err error) {
	ctx, end := mapperSpan(ctx, telemetry.SpanMapCertificate, "fingerprint")
	defer func() { end(err, entry) }()

	cert, err := leaf(chain)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(m.algorithm, cert.Raw)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "Mapping certificate fingerprint", "fingerprint", fp)
	return uniqueSearch(ctx, m.dir, m.bases, equalityFilter([]string{m.attribute}, fp), fp)
}

// SubjectAttributeMapper finds the entry whose subject attribute holds the
// leaf certificate subject DN.
type SubjectAttributeMapper struct {
	dir       directory.Directory
	attribute string
	bases     []string
}

var _ CertificateMapper = (*SubjectAttributeMapper)(nil)

// NewSubjectAttributeMapper validates the bases.
func NewSubjectAttributeMapper(dir directory.Directory, attribute string, bases []string) (*SubjectAttributeMapper, error) {
	if attribute == "" {
		attribute = DefaultSubjectAttribute
	}
	if err := validateBases(bases); err != nil {
		return nil, err
	}
	return &SubjectAttributeMapper{dir: dir, attribute: attribute, bases: bases}, nil
}

// MapCertificate implements CertificateMapper.
func (m *SubjectAttributeMapper) MapCertificate(ctx context.Context, chain []*x509.Certificate) (entry *ldap.Entry, err error) {
	ctx, end := mapperSpan(ctx, telemetry.SpanMapCertificate, "subject_dn")
	defer func() { end(err, entry) }()

	cert, err := leaf(chain)
	if err != nil {
		return nil, err
	}
	subject := SubjectDN(cert)
	return uniqueSearch(ctx, m.dir, m.bases, equalityFilter([]string{m.attribute}, subject), subject)
}

// SubjectEqualsDNMapper treats the leaf subject DN as the entry DN.
type SubjectEqualsDNMapper struct {
	dir   directory.Directory
	bases []string
}

var _ CertificateMapper = (*SubjectEqualsDNMapper)(nil)

// NewSubjectEqualsDNMapper validates the bases. When bases are set the
// entry must lie below one of them.
func NewSubjectEqualsDNMapper(dir directory.Directory, bases []string) (*SubjectEqualsDNMapper, error) {
	if err := validateBases(bases); err != nil {
		return nil, err
	}
	return &SubjectEqualsDNMapper{dir: dir, bases: bases}, nil
}

// MapCertificate implements CertificateMapper.
func (m *SubjectEqualsDNMapper) MapCertificate(ctx context.Context, chain []*x509.Certificate) (entry *ldap.Entry, err error) {
	ctx, end := mapperSpan(ctx, telemetry.SpanMapCertificate, "subject_equals_dn")
	defer func() { end(err, entry) }()

	cert, err := leaf(chain)
	if err != nil {
		return nil, err
	}
	subject := SubjectDN(cert)

	if len(m.bases) > 0 && !underAny(subject, m.bases) {
		return nil, &MappingError{Identifier: subject, Err: ErrNoMapping}
	}

	entry, err = m.dir.GetEntry(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", subject, err)
	}
	if entry == nil {
		return nil, &MappingError{Identifier: subject, Err: ErrNoMapping}
	}
	return entry, nil
}

func underAny(dn string, bases []string) bool {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return false
	}
	for _, base := range bases {
		b, err := ldap.ParseDN(base)
		if err != nil {
			continue
		}
		if b.AncestorOfFold(parsed) || b.EqualFold(parsed) {
			return true
		}
	}
	return false
}

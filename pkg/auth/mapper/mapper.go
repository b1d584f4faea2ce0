// Package mapper resolves client-supplied identities and certificates to
// directory entries.
//
// Every mapper enforces the same rule: exactly one entry must match across
// all configured base DNs. No match yields ErrNoMapping, two or more
// distinct entries yield ErrAmbiguousMapping. Both are returned inside a
// *MappingError naming the identifier.
package mapper

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// IdentityMapper maps an authentication or authorization identifier (a
// user name, not a DN) to the entry it designates.
type IdentityMapper interface {
	MapIdentity(ctx context.Context, id string) (*ldap.Entry, error)
}

// CertificateMapper maps a client certificate chain, leaf first, to the
// entry of its owner.
type CertificateMapper interface {
	MapCertificate(ctx context.Context, chain []*x509.Certificate) (*ldap.Entry, error)
}

// Mapping outcomes. They are the auth package sentinels, so callers may
// test against either name.
var (
	ErrNoMapping        = auth.ErrMappingNotFound
	ErrAmbiguousMapping = auth.ErrMappingAmbiguous
)

// errEmptyChain is returned when a certificate mapper receives no certificates.
var errEmptyChain = errors.New("mapper: empty certificate chain")

// MappingError reports a failed mapping together with the identifier.
type MappingError struct {
	// Identifier is the user name, fingerprint or subject DN that was mapped.
	Identifier string
	Err        error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %q: %v", e.Identifier, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// searchSizeLimit is enough to detect ambiguity.
const searchSizeLimit = 2

// uniqueSearch runs filter below every base and returns the single entry that
// matches. A base that does not exist is skipped.
func uniqueSearch(ctx context.Context, dir directory.Directory, bases []string, filter, identifier string) (*ldap.Entry, error) {
	if len(bases) == 0 {
		bases = dir.NamingContexts()
	}

	var match *ldap.Entry
	for _, base := range bases {
		req := ldap.NewSearchRequest(
			base,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			searchSizeLimit,
			0,
			false,
			filter,
			nil,
			nil,
		)

		result, err := dir.Search(ctx, req)
		if err != nil {
			var lerr *ldap.Error
			if errors.As(err, &lerr) {
				switch lerr.ResultCode {
				case ldap.LDAPResultNoSuchObject:
					logger.DebugCtx(ctx, "Mapper search base does not exist", logger.BaseDN(base))
					continue
				case ldap.LDAPResultSizeLimitExceeded:
					return nil, &MappingError{Identifier: identifier, Err: ErrAmbiguousMapping}
				}
			}
			return nil, fmt.Errorf("search %q for %q: %w", base, identifier, err)
		}

		for _, entry := range result.Entries {
			if match == nil {
				match = entry
				continue
			}
			if !directory.SameDN(match.DN, entry.DN) {
				logger.WarnCtx(ctx, "Identity maps to multiple entries",
					logger.Filter(filter), "first", match.DN, "second", entry.DN)
				return nil, &MappingError{Identifier: identifier, Err: ErrAmbiguousMapping}
			}
		}
	}

	if match == nil {
		return nil, &MappingError{Identifier: identifier, Err: ErrNoMapping}
	}
	return match, nil
}

// equalityFilter builds (a=v) for one attribute or (|(a1=v)(a2=v)...) for several.
func equalityFilter(attrs []string, value string) string {
	escaped := ldap.EscapeFilter(value)
	if len(attrs) == 1 {
		return "(" + attrs[0] + "=" + escaped + ")"
	}
	var b strings.Builder
	b.WriteString("(|")
	for _, a := range attrs {
		b.WriteString("(" + a + "=" + escaped + ")")
	}
	b.WriteString(")")
	return b.String()
}

// validateBases rejects unparseable base DNs at construction time.
func validateBases(bases []string) error {
	for _, base := range bases {
		if _, err := ldap.ParseDN(base); err != nil {
			return fmt.Errorf("%w: invalid base DN %q: %v", auth.ErrConfiguration, base, err)
		}
	}
	return nil
}

func mapperSpan(ctx context.Context, spanName, name string) (context.Context, func(err error, entry *ldap.Entry)) {
	ctx, span := telemetry.StartMapperSpan(ctx, spanName, name)
	return ctx, func(err error, entry *ldap.Entry) {
		if err != nil {
			span.RecordError(err)
		} else if entry != nil {
			span.SetAttributes(telemetry.BindDN(entry.DN))
		}
		span.End()
	}
}

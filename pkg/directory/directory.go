// Package directory defines the directory services the authentication layer
// consumes: entry lookup, internal search and privilege checks. MemoryDirectory
// is a self-contained implementation used by the bind listener and by tests.
package directory

import (
	"context"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Directory is the entry store consulted by identity mappers and mechanisms.
//
// Search follows go-ldap client semantics: a base that does not exist yields
// an *ldap.Error with LDAPResultNoSuchObject, and exceeding the request size
// limit returns the entries collected so far together with an *ldap.Error
// carrying LDAPResultSizeLimitExceeded.
type Directory interface {
	// GetEntry returns the entry named by dn, or (nil, nil) when it does not exist.
	GetEntry(ctx context.Context, dn string) (*ldap.Entry, error)

	Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error)

	// NamingContexts lists the base DNs searched when a caller configures none.
	NamingContexts() []string
}

// Privilege names a capability that may be held by an authenticated identity.
type Privilege string

const (
	// PrivilegeProxiedAuth allows binding as one identity and acting as another.
	PrivilegeProxiedAuth Privilege = "proxied-auth"
)

// PrivilegeAttribute lists the privileges granted to an entry.
const PrivilegeAttribute = "ds-privilege-name"

// PrivilegeChecker decides whether an identity holds a privilege.
type PrivilegeChecker interface {
	HasPrivilege(ctx context.Context, dn string, p Privilege) bool
}

// NormalizeDN returns a canonical, case-folded form of dn suitable for map
// keys and equality checks. Whitespace around separators is dropped.
func NormalizeDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, rdn := range parsed.RDNs {
		if i > 0 {
			b.WriteByte(',')
		}
		for j, attr := range rdn.Attributes {
			if j > 0 {
				b.WriteByte('+')
			}
			b.WriteString(strings.ToLower(attr.Type))
			b.WriteByte('=')
			b.WriteString(strings.ToLower(attr.Value))
		}
	}
	return b.String(), nil
}

// SameDN reports whether a and b name the same entry. Unparseable DNs are
// never equal to anything.
func SameDN(a, b string) bool {
	na, err := NormalizeDN(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeDN(b)
	if err != nil {
		return false
	}
	return na == nb
}

// IsNullDN reports whether dn is the empty (root) DN.
func IsNullDN(dn string) bool {
	return strings.TrimSpace(dn) == ""
}

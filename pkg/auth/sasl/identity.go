package sasl

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/mapper"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// Identity prefixes.
const (
	prefixDN   = "dn:"
	prefixUser = "u:"
)

// Resolver turns SASL authentication and authorization identities into
// directory entries.
type Resolver struct {
	Directory  directory.Directory
	Mapper     mapper.IdentityMapper
	Privileges directory.PrivilegeChecker
}

// Authorization is the outcome of resolving an authzid.
type Authorization struct {
	// DN is the authorization DN. Empty with Anonymous set means the client
	// asked to act anonymously ("dn:").
	DN        string
	Entry     *ldap.Entry
	Anonymous bool
}

// ResolveAuthcID returns the entry an authentication identity designates.
// Unknown or ambiguous identities are reported as invalid credentials.
func (r *Resolver) ResolveAuthcID(ctx context.Context, id string) (*ldap.Entry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty authentication identity", auth.ErrInvalidCredentials)
	}

	if hasPrefixFold(id, prefixDN) {
		dn := strings.TrimSpace(id[len(prefixDN):])
		if dn == "" {
			return nil, fmt.Errorf("%w: empty authentication DN", auth.ErrInvalidCredentials)
		}
		return r.lookupDN(ctx, dn)
	}

	if hasPrefixFold(id, prefixUser) {
		id = id[len(prefixUser):]
	}
	return r.mapUser(ctx, id)
}

// ResolveAuthzID resolves authzid for an authenticated entry. An empty
// authzid returns (nil, nil): the client acts as itself. Any other identity
// that does not designate authEntry requires the proxied-auth privilege.
func (r *Resolver) ResolveAuthzID(ctx context.Context, authEntry *ldap.Entry, authzid string) (*Authorization, error) {
	if authzid == "" {
		return nil, nil
	}

	var authz *Authorization
	switch {
	case hasPrefixFold(authzid, prefixDN):
		dn := strings.TrimSpace(authzid[len(prefixDN):])
		if dn == "" {
			authz = &Authorization{Anonymous: true}
			break
		}
		if directory.SameDN(dn, authEntry.DN) {
			return nil, nil
		}
		entry, err := r.lookupDN(ctx, dn)
		if err != nil {
			return nil, err
		}
		authz = &Authorization{DN: entry.DN, Entry: entry}

	default:
		id := authzid
		if hasPrefixFold(id, prefixUser) {
			id = id[len(prefixUser):]
		}
		entry, err := r.mapUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if directory.SameDN(entry.DN, authEntry.DN) {
			return nil, nil
		}
		authz = &Authorization{DN: entry.DN, Entry: entry}
	}

	if r.Privileges == nil || !r.Privileges.HasPrivilege(ctx, authEntry.DN, directory.PrivilegeProxiedAuth) {
		logger.InfoCtx(ctx, "Proxied authorization denied",
			logger.BindDN(authEntry.DN), logger.AuthzID(authzid))
		return nil, fmt.Errorf("%w: %s may not act as %q", auth.ErrProxiedAuthDenied, authEntry.DN, authzid)
	}
	return authz, nil
}

// Info builds the AuthenticationInfo for an authenticated entry and an
// optional authorization.
func Info(mechanism string, authEntry *ldap.Entry, authz *Authorization) *auth.AuthenticationInfo {
	info := &auth.AuthenticationInfo{
		Mechanism:           mechanism,
		AuthenticationDN:    authEntry.DN,
		AuthenticationEntry: authEntry,
	}
	if authz != nil && !authz.Anonymous {
		info.AuthorizationDN = authz.DN
		info.AuthorizationEntry = authz.Entry
	}
	return info
}

func (r *Resolver) lookupDN(ctx context.Context, dn string) (*ldap.Entry, error) {
	if _, err := ldap.ParseDN(dn); err != nil {
		return nil, fmt.Errorf("%w: invalid DN %q", auth.ErrInvalidCredentials, dn)
	}
	entry, err := r.Directory.GetEntry(ctx, dn)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", dn, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no entry %q", auth.ErrInvalidCredentials, dn)
	}
	return entry, nil
}

func (r *Resolver) mapUser(ctx context.Context, id string) (*ldap.Entry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty user identity", auth.ErrInvalidCredentials)
	}
	if r.Mapper == nil {
		return nil, fmt.Errorf("%w: no identity mapper configured", auth.ErrConfiguration)
	}
	return r.Mapper.MapIdentity(ctx, id)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

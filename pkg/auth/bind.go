package auth

import (
	"context"

	"github.com/go-ldap/ldap/v3"
)

// BindRequest is one SASL bind round trip as received from the client.
type BindRequest struct {
	// DN is the bind DN from the request. SASL mechanisms ignore it.
	DN string

	// Mechanism is the SASL mechanism name, upper-cased.
	Mechanism string

	// Credentials are the SASL credentials. Nil means the client sent none,
	// which differs from an empty octet string for some mechanisms.
	Credentials []byte
}

// HasCredentials reports whether the client included a credentials field.
func (r *BindRequest) HasCredentials() bool {
	return r.Credentials != nil
}

// BindOutcome is the result of processing a BindRequest.
type BindOutcome struct {
	ResultCode ResultCode

	// ServerCredentials are returned in serverSaslCreds. Nil means absent.
	ServerCredentials []byte

	// DiagnosticMessage is the client-visible text. The dispatcher replaces
	// it with a coarse message derived from ResultCode.
	DiagnosticMessage string

	// AuthInfo is set on success.
	AuthInfo *AuthenticationInfo

	// SecurityLayer is installed after the successful bind response has been
	// written, when the mechanism negotiated integrity or confidentiality.
	SecurityLayer SecurityLayer

	// Err is the internal cause of a failure. It is logged, never sent.
	Err error
}

// InProgress continues a multi-stage bind with a server challenge.
func InProgress(serverCreds []byte) *BindOutcome {
	if serverCreds == nil {
		serverCreds = []byte{}
	}
	return &BindOutcome{ResultCode: ResultSaslBindInProgress, ServerCredentials: serverCreds}
}

// Succeeded completes a bind. layer may be nil.
func Succeeded(info *AuthenticationInfo, serverCreds []byte, layer SecurityLayer) *BindOutcome {
	return &BindOutcome{
		ResultCode:        ResultSuccess,
		ServerCredentials: serverCreds,
		AuthInfo:          info,
		SecurityLayer:     layer,
	}
}

// Failed ends a bind with the result code derived from err.
func Failed(err error) *BindOutcome {
	return &BindOutcome{ResultCode: ResultCodeForError(err), Err: err}
}

// FailedWithCode ends a bind with an explicit result code.
func FailedWithCode(code ResultCode, err error) *BindOutcome {
	return &BindOutcome{ResultCode: code, Err: err}
}

// InProgress reports whether the bind expects another round trip.
func (o *BindOutcome) InProgress() bool {
	return o.ResultCode == ResultSaslBindInProgress
}

// Succeeded reports whether the bind completed successfully.
func (o *BindOutcome) Succeeded() bool {
	return o.ResultCode == ResultSuccess
}

// AuthenticationInfo is the identity established by a successful bind.
type AuthenticationInfo struct {
	// Mechanism is the SASL mechanism or "SIMPLE".
	Mechanism string

	// AuthenticationDN is the DN whose credentials were verified.
	AuthenticationDN string

	// AuthorizationDN is the identity operations run as. Empty means the
	// authentication DN.
	AuthorizationDN string

	AuthenticationEntry *ldap.Entry
	AuthorizationEntry  *ldap.Entry

	// Anonymous is set for ANONYMOUS and unauthenticated simple binds.
	Anonymous bool
}

// AnonymousInfo returns the identity of an unauthenticated client.
func AnonymousInfo(mechanism string) *AuthenticationInfo {
	return &AuthenticationInfo{Mechanism: mechanism, Anonymous: true}
}

// IsAuthenticated reports whether the connection holds a non-anonymous identity.
func (a *AuthenticationInfo) IsAuthenticated() bool {
	return a != nil && !a.Anonymous
}

// EffectiveDN returns the DN operations are authorized as.
func (a *AuthenticationInfo) EffectiveDN() string {
	if a == nil || a.Anonymous {
		return ""
	}
	if a.AuthorizationDN != "" {
		return a.AuthorizationDN
	}
	return a.AuthenticationDN
}

// AuthzID renders the identity in RFC 4532 form ("dn:..." or "").
func (a *AuthenticationInfo) AuthzID() string {
	dn := a.EffectiveDN()
	if dn == "" {
		return ""
	}
	return "dn:" + dn
}

// PasswordValidator verifies a clear-text password for an entry.
//
// Implementations return (false, nil) for a wrong password and an error
// wrapping ErrRemoteAuthInfrastructure when the password could not be
// checked at all.
type PasswordValidator interface {
	PasswordMatches(ctx context.Context, entry *ldap.Entry, password []byte) (bool, error)
}

// ClearPasswordSource returns the plaintext passwords of an entry, for
// mechanisms that need the shared secret (DIGEST-MD5).
type ClearPasswordSource interface {
	ClearPasswords(ctx context.Context, entry *ldap.Entry) ([][]byte, error)
}

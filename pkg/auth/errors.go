package auth

import (
	"errors"

	"github.com/go-ldap/ldap/v3"
)

// ResultCode is an LDAP result code as returned in a BindResponse.
type ResultCode uint16

// Result codes produced by bind processing.
const (
	ResultSuccess                     = ResultCode(ldap.LDAPResultSuccess)
	ResultOperationsError             = ResultCode(ldap.LDAPResultOperationsError)
	ResultProtocolError               = ResultCode(ldap.LDAPResultProtocolError)
	ResultAuthMethodNotSupported      = ResultCode(ldap.LDAPResultAuthMethodNotSupported)
	ResultConfidentialityRequired     = ResultCode(ldap.LDAPResultConfidentialityRequired)
	ResultSaslBindInProgress          = ResultCode(ldap.LDAPResultSaslBindInProgress)
	ResultInappropriateAuthentication = ResultCode(ldap.LDAPResultInappropriateAuthentication)
	ResultInvalidCredentials          = ResultCode(ldap.LDAPResultInvalidCredentials)
	ResultInsufficientAccessRights    = ResultCode(ldap.LDAPResultInsufficientAccessRights)
	ResultUnavailable                 = ResultCode(ldap.LDAPResultUnavailable)
	ResultUnwillingToPerform          = ResultCode(ldap.LDAPResultUnwillingToPerform)
	ResultOther                       = ResultCode(ldap.LDAPResultOther)
)

// String returns the RFC 4511 name of the code.
func (c ResultCode) String() string {
	if s, ok := ldap.LDAPResultCodeMap[uint16(c)]; ok {
		return s
	}
	return "Unknown"
}

// Standard authentication errors. Packages wrap them with %w so callers can
// classify failures with errors.Is.
var (
	// ErrInvalidCredentials covers malformed and wrong credentials alike.
	// Clients only ever see a generic invalidCredentials result.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrConfiguration fails construction of a handler, mapper or policy.
	ErrConfiguration = errors.New("auth: configuration error")

	// ErrMappingNotFound means no entry matched an identity.
	ErrMappingNotFound = errors.New("auth: no entry matches identity")

	// ErrMappingAmbiguous means more than one entry matched an identity.
	ErrMappingAmbiguous = errors.New("auth: identity matches multiple entries")

	// ErrRemoteAuthInfrastructure means a pass-through server could not be
	// used. It is never reported as a wrong password.
	ErrRemoteAuthInfrastructure = errors.New("auth: remote authentication service failure")

	// ErrNotReversible is returned when plaintext is requested from a
	// one-way storage scheme.
	ErrNotReversible = errors.New("auth: password storage scheme is not reversible")

	// ErrFraming means a SASL frame was malformed. The connection must close.
	ErrFraming = errors.New("auth: malformed security layer frame")

	// ErrHandshake means TLS or SASL negotiation failed. The connection must close.
	ErrHandshake = errors.New("auth: security handshake failed")

	// ErrUnsupportedMechanism means no mechanism is registered under the name.
	ErrUnsupportedMechanism = errors.New("auth: unsupported authentication mechanism")

	// ErrInappropriateAuthentication means the mechanism cannot be used on
	// this connection, e.g. EXTERNAL without a client certificate.
	ErrInappropriateAuthentication = errors.New("auth: inappropriate authentication")

	// ErrProxiedAuthDenied means an authorization identity was requested
	// without the proxied-auth privilege.
	ErrProxiedAuthDenied = errors.New("auth: proxied authorization not permitted")
)

// ResultCodeForError maps an error to the result code sent to the client.
func ResultCodeForError(err error) ResultCode {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrRemoteAuthInfrastructure):
		return ResultUnavailable
	case errors.Is(err, ErrUnsupportedMechanism):
		return ResultAuthMethodNotSupported
	case errors.Is(err, ErrInappropriateAuthentication):
		return ResultInappropriateAuthentication
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrMappingNotFound),
		errors.Is(err, ErrMappingAmbiguous),
		errors.Is(err, ErrProxiedAuthDenied):
		return ResultInvalidCredentials
	case errors.Is(err, ErrFraming), errors.Is(err, ErrHandshake):
		return ResultProtocolError
	default:
		return ResultOther
	}
}

// DiagnosticMessage is the client-visible text for a result code. It never
// reveals which part of the credentials was wrong.
func DiagnosticMessage(code ResultCode) string {
	switch code {
	case ResultSuccess, ResultSaslBindInProgress:
		return ""
	case ResultInvalidCredentials:
		return "invalid credentials"
	case ResultAuthMethodNotSupported:
		return "unsupported SASL mechanism"
	case ResultInappropriateAuthentication:
		return "authentication mechanism not appropriate for this connection"
	case ResultUnavailable:
		return "authentication service temporarily unavailable"
	case ResultProtocolError:
		return "malformed bind request"
	default:
		return "internal error during authentication"
	}
}

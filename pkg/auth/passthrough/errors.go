package passthrough

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Mapping failures. The client sees them as invalid credentials.
var (
	// ErrMappingAttributeNotFound means none of the mapped attributes has a
	// value in the local entry.
	ErrMappingAttributeNotFound = fmt.Errorf("%w: mapped attribute not present in entry", auth.ErrInvalidCredentials)

	// ErrTooManyCandidates means a remote search matched more than one entry.
	ErrTooManyCandidates = fmt.Errorf("%w: remote search matched more than one entry", auth.ErrInvalidCredentials)

	// ErrNoCandidatesFound means every remote search base came up empty.
	ErrNoCandidatesFound = fmt.Errorf("%w: remote search matched no entries", auth.ErrInvalidCredentials)
)

var (
	errNoServerAvailable = errors.New("no remote server available")
	errPoolClosed        = errors.New("connection pool closed")
)

// InfrastructureError reports that a remote server could not be used to
// verify a password. It matches auth.ErrRemoteAuthInfrastructure.
type InfrastructureError struct {
	Server string
	Op     string
	Err    error
}

func (e *InfrastructureError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("pass-through %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pass-through %s on %s: %v", e.Op, e.Server, e.Err)
}

func (e *InfrastructureError) Unwrap() []error {
	return []error{auth.ErrRemoteAuthInfrastructure, e.Err}
}

// serviceErrorCodes are result codes after which a connection or server is
// considered unusable rather than the request being refused.
var serviceErrorCodes = []uint16{
	ldap.LDAPResultOperationsError,
	ldap.LDAPResultProtocolError,
	ldap.LDAPResultTimeLimitExceeded,
	ldap.LDAPResultAdminLimitExceeded,
	ldap.LDAPResultUnavailableCriticalExtension,
	ldap.LDAPResultBusy,
	ldap.LDAPResultUnavailable,
	ldap.LDAPResultUnwillingToPerform,
	ldap.LDAPResultLoopDetect,
	ldap.LDAPResultOther,
	ldap.LDAPResultServerDown,
	ldap.LDAPResultLocalError,
	ldap.LDAPResultEncodingError,
	ldap.LDAPResultDecodingError,
	ldap.LDAPResultTimeout,
	ldap.LDAPResultConnectError,
	ldap.ErrorNetwork,
	ldap.ErrorUnexpectedMessage,
	ldap.ErrorUnexpectedResponse,
}

// isServiceError reports whether err means the connection should be
// discarded and the server possibly marked down. Errors that are not LDAP
// results (dial failures, closed connections) always are.
func isServiceError(err error) bool {
	if err == nil {
		return false
	}
	var le *ldap.Error
	if !errors.As(err, &le) {
		return true
	}
	return ldap.IsErrorAnyOf(err, serviceErrorCodes...)
}

// resultCode returns the LDAP result code carried by err, or 0.
func resultCode(err error) uint16 {
	var le *ldap.Error
	if errors.As(err, &le) {
		return le.ResultCode
	}
	return 0
}

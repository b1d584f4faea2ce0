package adapter

import (
	"errors"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// ProtocolError is an error carrying the LDAP result code reported to the
// client. errors.Is reaches the underlying cause through Unwrap.
type ProtocolError interface {
	error

	// Code is the LDAP result code.
	Code() uint32

	// Message is the client-visible diagnostic message. It never carries
	// the internal cause.
	Message() string

	Unwrap() error
}

type resultError struct {
	code auth.ResultCode
	err  error
}

// NewProtocolError wraps err with an LDAP result code.
func NewProtocolError(code auth.ResultCode, err error) ProtocolError {
	return &resultError{code: code, err: err}
}

func (e *resultError) Error() string {
	if e.err == nil {
		return e.code.String()
	}
	return e.code.String() + ": " + e.err.Error()
}

func (e *resultError) Code() uint32    { return uint32(e.code) }
func (e *resultError) Message() string { return auth.DiagnosticMessage(e.code) }
func (e *resultError) Unwrap() error   { return e.err }

// ResultCodeOf returns the result code carried by err, falling back to
// auth.ResultCodeForError.
func ResultCodeOf(err error) auth.ResultCode {
	var pe ProtocolError
	if errors.As(err, &pe) {
		return auth.ResultCode(pe.Code())
	}
	return auth.ResultCodeForError(err)
}

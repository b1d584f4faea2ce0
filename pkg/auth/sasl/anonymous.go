package sasl

import (
	"context"
	"unicode/utf8"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// maxTraceLength bounds the logged trace string (RFC 4505 allows 255 characters).
const maxTraceLength = 255

// Anonymous implements the ANONYMOUS mechanism (RFC 4505). The optional
// credentials are trace information and are only logged.
type Anonymous struct{}

var _ auth.Mechanism = (*Anonymous)(nil)

// NewAnonymous returns the ANONYMOUS handler.
func NewAnonymous() *Anonymous { return &Anonymous{} }

func (*Anonymous) Name() string          { return auth.MechanismAnonymous }
func (*Anonymous) IsPasswordBased() bool { return false }
func (*Anonymous) IsSecure() bool        { return false }

// ProcessBind always succeeds with an unauthenticated identity.
func (a *Anonymous) ProcessBind(ctx context.Context, _ *auth.Connection, req *auth.BindRequest) *auth.BindOutcome {
	if len(req.Credentials) > 0 {
		trace := req.Credentials
		if !utf8.Valid(trace) {
			trace = []byte("<invalid utf-8>")
		}
		runes := []rune(string(trace))
		if len(runes) > maxTraceLength {
			runes = runes[:maxTraceLength]
		}
		logger.InfoCtx(ctx, "Anonymous bind", logger.KeyTrace, string(runes))
	}
	return auth.Succeeded(auth.AnonymousInfo(auth.MechanismAnonymous), nil, nil)
}

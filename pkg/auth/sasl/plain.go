package sasl

import (
	"bytes"
	"context"
	"fmt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Plain implements the PLAIN mechanism (RFC 4616):
// [authzid] NUL authcid NUL passwd.
type Plain struct {
	resolver  *Resolver
	passwords auth.PasswordValidator
}

var _ auth.Mechanism = (*Plain)(nil)

// NewPlain returns the PLAIN handler. Both collaborators are required.
func NewPlain(resolver *Resolver, passwords auth.PasswordValidator) (*Plain, error) {
	if resolver == nil || resolver.Directory == nil {
		return nil, fmt.Errorf("%w: PLAIN requires a directory", auth.ErrConfiguration)
	}
	if passwords == nil {
		return nil, fmt.Errorf("%w: PLAIN requires a password validator", auth.ErrConfiguration)
	}
	return &Plain{resolver: resolver, passwords: passwords}, nil
}

func (*Plain) Name() string          { return auth.MechanismPlain }
func (*Plain) IsPasswordBased() bool { return true }
func (*Plain) IsSecure() bool        { return false }

// ParsePlain splits PLAIN credentials. Missing separators, an empty authcid
// and an empty password are all invalid credentials.
func ParsePlain(creds []byte) (authzid, authcid string, password []byte, err error) {
	parts := bytes.SplitN(creds, []byte{0}, 3)
	if len(parts) != 3 {
		return "", "", nil, fmt.Errorf("%w: malformed PLAIN credentials", auth.ErrInvalidCredentials)
	}
	if len(parts[1]) == 0 {
		return "", "", nil, fmt.Errorf("%w: empty authentication identity", auth.ErrInvalidCredentials)
	}
	if len(parts[2]) == 0 {
		return "", "", nil, fmt.Errorf("%w: empty password", auth.ErrInvalidCredentials)
	}
	if bytes.IndexByte(parts[2], 0) >= 0 {
		return "", "", nil, fmt.Errorf("%w: malformed PLAIN credentials", auth.ErrInvalidCredentials)
	}
	return string(parts[0]), string(parts[1]), parts[2], nil
}

// ProcessBind completes in one round trip.
func (p *Plain) ProcessBind(ctx context.Context, _ *auth.Connection, req *auth.BindRequest) *auth.BindOutcome {
	authzid, authcid, password, err := ParsePlain(req.Credentials)
	if err != nil {
		return auth.Failed(err)
	}

	entry, err := p.resolver.ResolveAuthcID(ctx, authcid)
	if err != nil {
		return auth.Failed(err)
	}

	authz, err := p.resolver.ResolveAuthzID(ctx, entry, authzid)
	if err != nil {
		return auth.Failed(err)
	}

	ok, err := p.passwords.PasswordMatches(ctx, entry, password)
	if err != nil {
		return auth.Failed(fmt.Errorf("verify password for %q: %w", entry.DN, err))
	}
	if !ok {
		return auth.Failed(fmt.Errorf("%w: wrong password for %q", auth.ErrInvalidCredentials, entry.DN))
	}

	return auth.Succeeded(Info(auth.MechanismPlain, entry, authz), nil, nil)
}

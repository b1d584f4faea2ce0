package password

import (
	"context"
	"errors"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Attribute names holding stored passwords.
const (
	AttrUserPassword = "userPassword"
	AttrAuthPassword = "authPassword"
)

// LocalPolicy verifies passwords against the values stored in an entry.
//
// Values are tried in order; the first match wins. Values with an unknown
// scheme or a malformed encoding are logged and skipped.
type LocalPolicy struct {
	registry *Registry
}

var (
	_ auth.PasswordValidator   = (*LocalPolicy)(nil)
	_ auth.ClearPasswordSource = (*LocalPolicy)(nil)
)

// NewLocalPolicy returns a policy backed by reg.
func NewLocalPolicy(reg *Registry) *LocalPolicy {
	return &LocalPolicy{registry: reg}
}

// Registry returns the scheme registry.
func (p *LocalPolicy) Registry() *Registry {
	return p.registry
}

// PasswordMatches implements auth.PasswordValidator.
func (p *LocalPolicy) PasswordMatches(ctx context.Context, entry *ldap.Entry, password []byte) (bool, error) {
	if entry == nil || len(password) == 0 {
		return false, nil
	}

	_, span := telemetry.StartSpan(ctx, telemetry.SpanPasswordVerify)
	defer span.End()

	for _, value := range entry.GetEqualFoldRawAttributeValues(AttrUserPassword) {
		name, payload, err := Decode(value)
		if err != nil {
			logger.DebugCtx(ctx, "Skipping untagged password value", logger.BindDN(entry.DN))
			continue
		}
		scheme, err := p.registry.Get(name)
		if err != nil {
			logger.WarnCtx(ctx, "Unknown password storage scheme",
				logger.BindDN(entry.DN), logger.Scheme(name))
			continue
		}
		if scheme.Matches(password, payload) {
			span.SetAttributes(telemetry.Scheme(name))
			return true, nil
		}
	}

	for _, value := range entry.GetEqualFoldAttributeValues(AttrAuthPassword) {
		ok, err := p.registry.MatchesAuthPassword(password, value)
		if err != nil {
			logger.WarnCtx(ctx, "Cannot use authPassword value",
				logger.BindDN(entry.DN), logger.Err(err))
			continue
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// ClearPasswords implements auth.ClearPasswordSource. Only values stored
// with a reversible scheme are returned.
func (p *LocalPolicy) ClearPasswords(ctx context.Context, entry *ldap.Entry) ([][]byte, error) {
	if entry == nil {
		return nil, nil
	}

	var out [][]byte
	for _, value := range entry.GetEqualFoldRawAttributeValues(AttrUserPassword) {
		name, payload, err := Decode(value)
		if err != nil {
			continue
		}
		scheme, err := p.registry.Get(name)
		if err != nil || !scheme.IsReversible() {
			continue
		}
		plain, err := scheme.Plaintext(payload)
		if err != nil {
			if !errors.Is(err, auth.ErrNotReversible) {
				logger.WarnCtx(ctx, "Cannot recover clear-text password",
					logger.BindDN(entry.DN), logger.Scheme(name), logger.Err(err))
			}
			continue
		}
		out = append(out, plain)
	}
	return out, nil
}

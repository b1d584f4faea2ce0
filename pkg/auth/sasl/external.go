package sasl

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/mapper"
)

// CertificateValidation controls whether the presented certificate must be
// stored in the mapped entry.
type CertificateValidation string

const (
	// ValidateIgnore accepts any mapped certificate.
	ValidateIgnore CertificateValidation = "ignore"

	// ValidateIfPresent requires a match only when the entry stores certificates.
	ValidateIfPresent CertificateValidation = "if-present"

	// ValidateAlways requires the entry to store the presented certificate.
	ValidateAlways CertificateValidation = "always"
)

// DefaultCertificateAttribute holds DER certificates in user entries.
const DefaultCertificateAttribute = "userCertificate"

// ExternalConfig configures the EXTERNAL handler.
type ExternalConfig struct {
	Mapper     mapper.CertificateMapper
	Resolver   *Resolver
	Validation CertificateValidation

	// CertificateAttribute defaults to userCertificate. Values stored as
	// userCertificate;binary are also checked.
	CertificateAttribute string
}

// External implements the EXTERNAL mechanism (RFC 4422 appendix A) over a
// TLS client certificate.
type External struct {
	mapper     mapper.CertificateMapper
	resolver   *Resolver
	validation CertificateValidation
	attribute  string
}

var _ auth.Mechanism = (*External)(nil)

// NewExternal validates cfg.
func NewExternal(cfg ExternalConfig) (*External, error) {
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("%w: EXTERNAL requires a certificate mapper", auth.ErrConfiguration)
	}
	switch cfg.Validation {
	case "":
		cfg.Validation = ValidateIgnore
	case ValidateIgnore, ValidateIfPresent, ValidateAlways:
	default:
		return nil, fmt.Errorf("%w: unknown certificate validation policy %q", auth.ErrConfiguration, cfg.Validation)
	}
	if cfg.CertificateAttribute == "" {
		cfg.CertificateAttribute = DefaultCertificateAttribute
	}
	return &External{
		mapper:     cfg.Mapper,
		resolver:   cfg.Resolver,
		validation: cfg.Validation,
		attribute:  cfg.CertificateAttribute,
	}, nil
}

func (*External) Name() string          { return auth.MechanismExternal }
func (*External) IsPasswordBased() bool { return false }
func (*External) IsSecure() bool        { return true }

// ProcessBind maps the client certificate chain. Credentials, when present,
// carry an authorization identity.
func (e *External) ProcessBind(ctx context.Context, conn *auth.Connection, req *auth.BindRequest) *auth.BindOutcome {
	chain := conn.ClientCertificateChain()
	if len(chain) == 0 {
		return auth.Failed(fmt.Errorf("%w: no client certificate", auth.ErrInappropriateAuthentication))
	}

	entry, err := e.mapper.MapCertificate(ctx, chain)
	if err != nil {
		return auth.Failed(err)
	}

	if err := e.validate(entry, chain[0].Raw); err != nil {
		return auth.Failed(err)
	}

	var authz *Authorization
	if authzid := string(req.Credentials); authzid != "" {
		if e.resolver == nil {
			return auth.Failed(fmt.Errorf("%w: authorization identity not supported", auth.ErrInvalidCredentials))
		}
		authz, err = e.resolver.ResolveAuthzID(ctx, entry, authzid)
		if err != nil {
			return auth.Failed(err)
		}
	}

	return auth.Succeeded(Info(auth.MechanismExternal, entry, authz), nil, nil)
}

func (e *External) validate(entry *ldap.Entry, der []byte) error {
	if e.validation == ValidateIgnore {
		return nil
	}

	stored := append(entry.GetEqualFoldRawAttributeValues(e.attribute),
		entry.GetEqualFoldRawAttributeValues(e.attribute+";binary")...)
	if len(stored) == 0 {
		if e.validation == ValidateAlways {
			return fmt.Errorf("%w: %s has no %s", auth.ErrInvalidCredentials, entry.DN, e.attribute)
		}
		return nil
	}
	for _, v := range stored {
		if bytes.Equal(v, der) {
			return nil
		}
	}
	return fmt.Errorf("%w: presented certificate not stored in %s", auth.ErrInvalidCredentials, entry.DN)
}

package mapper

import (
	"fmt"
	"strings"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// Set holds the identity mappers named in configuration.
type Set struct {
	mappers map[string]IdentityMapper
}

// NewSet builds every configured identity mapper. Names are matched
// case-insensitively.
func NewSet(dir directory.Directory, cfgs map[string]config.IdentityMapperConfig) (*Set, error) {
	s := &Set{mappers: make(map[string]IdentityMapper, len(cfgs))}
	for name, cfg := range cfgs {
		m, err := NewIdentityMapper(dir, name, cfg)
		if err != nil {
			return nil, err
		}
		s.mappers[strings.ToLower(name)] = m
	}
	return s, nil
}

// Get returns the mapper with the given name.
func (s *Set) Get(name string) (IdentityMapper, error) {
	m, ok := s.mappers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown identity mapper %q", auth.ErrConfiguration, name)
	}
	return m, nil
}

// Add registers m under name, replacing any existing mapper.
func (s *Set) Add(name string, m IdentityMapper) {
	s.mappers[strings.ToLower(name)] = m
}

// NewIdentityMapper builds one mapper from configuration.
func NewIdentityMapper(dir directory.Directory, name string, cfg config.IdentityMapperConfig) (IdentityMapper, error) {
	switch cfg.Type {
	case "exact":
		return NewExactMatchMapper(dir, name, cfg.MatchAttributes, cfg.BaseDNs)
	case "regex", "":
		return NewRegexMapper(dir, RegexConfig{
			Name:            name,
			MatchAttributes: cfg.MatchAttributes,
			BaseDNs:         cfg.BaseDNs,
			Pattern:         cfg.Pattern,
			Replacement:     cfg.Replacement,
		})
	default:
		return nil, fmt.Errorf("%w: identity mapper %q has unknown type %q", auth.ErrConfiguration, name, cfg.Type)
	}
}

// NewCertificateMapper builds the configured certificate mapper.
func NewCertificateMapper(dir directory.Directory, cfg config.CertificateMapperConfig) (CertificateMapper, error) {
	switch cfg.Type {
	case "fingerprint":
		return NewFingerprintMapper(dir, cfg.Attribute, cfg.Algorithm, cfg.BaseDNs)
	case "subject_dn":
		return NewSubjectAttributeMapper(dir, cfg.Attribute, cfg.BaseDNs)
	case "subject_equals_dn", "":
		return NewSubjectEqualsDNMapper(dir, cfg.BaseDNs)
	default:
		return nil, fmt.Errorf("%w: unknown certificate mapper type %q", auth.ErrConfiguration, cfg.Type)
	}
}

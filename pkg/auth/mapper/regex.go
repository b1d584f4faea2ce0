package mapper

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// RegexConfig configures a RegexMapper.
type RegexConfig struct {
	// Name labels the mapper in logs and traces.
	Name string

	// MatchAttributes are compared with the mapped value. At least one.
	MatchAttributes []string

	// BaseDNs are searched in order. Empty means the directory naming contexts.
	BaseDNs []string

	// Pattern is applied to the identifier. Empty maps the identifier as-is.
	Pattern string

	// Replacement rewrites every match of Pattern, using $1 group syntax.
	Replacement string
}

// RegexMapper rewrites an identifier with a regular expression and searches
// for the entry whose match attributes equal the result.
type RegexMapper struct {
	name        string
	dir         directory.Directory
	attrs       []string
	bases       []string
	pattern     *regexp.Regexp
	replacement string
}

var _ IdentityMapper = (*RegexMapper)(nil)

// NewRegexMapper validates cfg and returns a mapper.
func NewRegexMapper(dir directory.Directory, cfg RegexConfig) (*RegexMapper, error) {
	if len(cfg.MatchAttributes) == 0 {
		return nil, fmt.Errorf("%w: identity mapper %q has no match attributes", auth.ErrConfiguration, cfg.Name)
	}
	if err := validateBases(cfg.BaseDNs); err != nil {
		return nil, err
	}

	m := &RegexMapper{
		name:        cfg.Name,
		dir:         dir,
		attrs:       append([]string(nil), cfg.MatchAttributes...),
		bases:       append([]string(nil), cfg.BaseDNs...),
		replacement: cfg.Replacement,
	}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: identity mapper %q: %v", auth.ErrConfiguration, cfg.Name, err)
		}
		m.pattern = re
	}
	return m, nil
}

// NewExactMatchMapper returns a mapper that searches for the identifier
// unchanged.
func NewExactMatchMapper(dir directory.Directory, name string, attrs, bases []string) (*RegexMapper, error) {
	return NewRegexMapper(dir, RegexConfig{Name: name, MatchAttributes: attrs, BaseDNs: bases})
}

// Name returns the configured mapper name.
func (m *RegexMapper) Name() string {
	return m.name
}

// Transform applies the pattern and replacement to id.
func (m *RegexMapper) Transform(id string) string {
	if m.pattern == nil {
		return id
	}
	return m.pattern.ReplaceAllString(id, m.replacement)
}

// MapIdentity implements IdentityMapper.
func (m *RegexMapper) MapIdentity(ctx context.Context, id string) (entry *ldap.Entry, err error) {
	ctx, end := mapperSpan(ctx, telemetry.SpanMapIdentity, m.name)
	defer func() { end(err, entry) }()

	value := m.Transform(id)
	filter := equalityFilter(m.attrs, value)

	logger.DebugCtx(ctx, "Mapping identity", "mapper", m.name, logger.Filter(filter))

	return uniqueSearch(ctx, m.dir, m.bases, filter, id)
}

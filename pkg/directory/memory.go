package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// MemoryDirectory is a thread-safe in-memory Directory and PrivilegeChecker.
//
// Filters are compiled with go-ldap into BER packets and evaluated against
// the stored entries, so the same RFC 4515 strings work here and against a
// remote server. Attribute names and values compare case-insensitively.
type MemoryDirectory struct {
	mu       sync.RWMutex
	entries  map[string]*ldap.Entry // normalized DN -> entry
	order    []string               // insertion order for stable results
	contexts []string
}

// NewMemoryDirectory creates an empty directory serving the given naming contexts.
func NewMemoryDirectory(namingContexts ...string) *MemoryDirectory {
	return &MemoryDirectory{
		entries:  make(map[string]*ldap.Entry),
		contexts: append([]string(nil), namingContexts...),
	}
}

// Add stores or replaces an entry.
func (d *MemoryDirectory) Add(entry *ldap.Entry) error {
	if entry == nil {
		return fmt.Errorf("nil entry")
	}
	key, err := NormalizeDN(entry.DN)
	if err != nil {
		return fmt.Errorf("invalid entry DN %q: %w", entry.DN, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = entry
	return nil
}

// AddEntry is a convenience wrapper building the entry from an attribute map.
func (d *MemoryDirectory) AddEntry(dn string, attrs map[string][]string) error {
	return d.Add(ldap.NewEntry(dn, attrs))
}

// Delete removes an entry. Missing entries are ignored.
func (d *MemoryDirectory) Delete(dn string) {
	key, err := NormalizeDN(dn)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[key]; !ok {
		return
	}
	delete(d.entries, key)
	d.order = slices.DeleteFunc(d.order, func(k string) bool { return k == key })
}

// Len returns the number of stored entries.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// NamingContexts implements Directory.
func (d *MemoryDirectory) NamingContexts() []string {
	return append([]string(nil), d.contexts...)
}

// GetEntry implements Directory.
func (d *MemoryDirectory) GetEntry(_ context.Context, dn string) (*ldap.Entry, error) {
	key, err := NormalizeDN(dn)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries[key], nil
}

// Search implements Directory.
func (d *MemoryDirectory) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	baseKey, err := NormalizeDN(req.BaseDN)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}

	filter, err := ldap.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if baseKey != "" {
		if _, ok := d.entries[baseKey]; !ok {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject,
				fmt.Errorf("base %q does not exist", req.BaseDN))
		}
	}

	result := &ldap.SearchResult{}
	for _, key := range d.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !inScope(key, baseKey, req.Scope) {
			continue
		}

		entry := d.entries[key]
		match, err := evaluate(filter, entry)
		if err != nil {
			return nil, ldap.NewError(ldap.LDAPResultUnwillingToPerform, err)
		}
		if !match {
			continue
		}

		if req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit {
			return result, ldap.NewError(ldap.LDAPResultSizeLimitExceeded,
				fmt.Errorf("size limit %d exceeded", req.SizeLimit))
		}
		result.Entries = append(result.Entries, project(entry, req.Attributes, req.TypesOnly))
	}

	return result, nil
}

// HasPrivilege implements PrivilegeChecker by reading ds-privilege-name from
// the identity's entry.
func (d *MemoryDirectory) HasPrivilege(ctx context.Context, dn string, p Privilege) bool {
	entry, err := d.GetEntry(ctx, dn)
	if err != nil || entry == nil {
		return false
	}
	for _, v := range entry.GetEqualFoldAttributeValues(PrivilegeAttribute) {
		if strings.EqualFold(v, string(p)) {
			return true
		}
	}
	return false
}

// inScope reports whether the entry key lies within the search scope.
// Keys are normalized DNs so suffix checks on RDN boundaries are exact.
func inScope(key, base string, scope int) bool {
	switch scope {
	case ldap.ScopeBaseObject:
		return key == base
	case ldap.ScopeSingleLevel:
		parent, ok := parentKey(key)
		return ok && parent == base
	default:
		if base == "" {
			return true
		}
		return key == base || strings.HasSuffix(key, ","+base)
	}
}

func parentKey(key string) (string, bool) {
	// Normalized keys never contain escaped commas in attribute types, but
	// values may; walk RDN boundaries honoring backslash escapes.
	escaped := false
	for i := 0; i < len(key); i++ {
		switch {
		case escaped:
			escaped = false
		case key[i] == '\\':
			escaped = true
		case key[i] == ',':
			return key[i+1:], true
		}
	}
	return "", key != ""
}

// project copies the requested attributes. An empty list or "*" returns all
// user attributes; "1.1" returns none.
func project(entry *ldap.Entry, attrs []string, typesOnly bool) *ldap.Entry {
	all := len(attrs) == 0 || slices.Contains(attrs, "*")
	out := &ldap.Entry{DN: entry.DN}

	for _, a := range entry.Attributes {
		if !all && !slices.ContainsFunc(attrs, func(want string) bool { return strings.EqualFold(want, a.Name) }) {
			continue
		}
		values := append([]string(nil), a.Values...)
		if typesOnly {
			values = nil
		}
		out.Attributes = append(out.Attributes, ldap.NewEntryAttribute(a.Name, values))
	}
	return out
}

// evaluate applies a compiled filter packet to an entry.
func evaluate(f *ber.Packet, entry *ldap.Entry) (bool, error) {
	switch f.Tag {
	case ldap.FilterAnd:
		for _, child := range f.Children {
			ok, err := evaluate(child, entry)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case ldap.FilterOr:
		for _, child := range f.Children {
			ok, err := evaluate(child, entry)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case ldap.FilterNot:
		if len(f.Children) != 1 {
			return false, fmt.Errorf("malformed NOT filter")
		}
		ok, err := evaluate(f.Children[0], entry)
		return !ok, err

	case ldap.FilterPresent:
		attr := packetString(f)
		if strings.EqualFold(attr, "objectClass") {
			return true, nil
		}
		return len(entry.GetEqualFoldAttributeValues(attr)) > 0, nil

	case ldap.FilterEqualityMatch, ldap.FilterApproxMatch:
		attr, value, err := assertion(f)
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(entry.GetEqualFoldAttributeValues(attr), func(v string) bool {
			return strings.EqualFold(v, value)
		}), nil

	case ldap.FilterGreaterOrEqual, ldap.FilterLessOrEqual:
		attr, value, err := assertion(f)
		if err != nil {
			return false, err
		}
		for _, v := range entry.GetEqualFoldAttributeValues(attr) {
			c := strings.Compare(strings.ToLower(v), strings.ToLower(value))
			if (f.Tag == ldap.FilterGreaterOrEqual && c >= 0) || (f.Tag == ldap.FilterLessOrEqual && c <= 0) {
				return true, nil
			}
		}
		return false, nil

	case ldap.FilterSubstrings:
		return substringMatch(f, entry)

	default:
		return false, fmt.Errorf("unsupported filter type %d", f.Tag)
	}
}

func assertion(f *ber.Packet) (string, string, error) {
	if len(f.Children) != 2 {
		return "", "", fmt.Errorf("malformed attribute value assertion")
	}
	return packetString(f.Children[0]), packetString(f.Children[1]), nil
}

func substringMatch(f *ber.Packet, entry *ldap.Entry) (bool, error) {
	if len(f.Children) != 2 {
		return false, fmt.Errorf("malformed substrings filter")
	}
	attr := packetString(f.Children[0])

	for _, v := range entry.GetEqualFoldAttributeValues(attr) {
		rest := strings.ToLower(v)
		ok := true
		for _, part := range f.Children[1].Children {
			s := strings.ToLower(packetString(part))
			switch part.Tag {
			case ldap.FilterSubstringsInitial:
				if !strings.HasPrefix(rest, s) {
					ok = false
				} else {
					rest = rest[len(s):]
				}
			case ldap.FilterSubstringsAny:
				idx := strings.Index(rest, s)
				if idx < 0 {
					ok = false
				} else {
					rest = rest[idx+len(s):]
				}
			case ldap.FilterSubstringsFinal:
				ok = strings.HasSuffix(rest, s)
			}
			if !ok {
				break
			}
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func packetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	return string(p.Data.Bytes())
}

package password

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry errors.
var (
	// ErrUnknownScheme is returned for a scheme name nothing is registered under.
	ErrUnknownScheme = errors.New("password: unknown storage scheme")

	// ErrMalformedValue is returned for a stored value that is not in
	// "{SCHEME}payload" or "scheme$salt$digest" form.
	ErrMalformedValue = errors.New("password: malformed stored value")
)

// Options tune the work factors of the built-in schemes.
type Options struct {
	BcryptCost       int
	PBKDF2Iterations int
}

// Registry maps upper-cased scheme names to schemes. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	schemes      map[string]Scheme
	authPassword map[string]AuthPasswordScheme
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemes:      make(map[string]Scheme),
		authPassword: make(map[string]AuthPasswordScheme),
	}
}

// DefaultRegistry returns a registry holding every built-in scheme with
// default work factors.
func DefaultRegistry() *Registry {
	return NewRegistryWithOptions(Options{})
}

// NewRegistryWithOptions returns a registry holding every built-in scheme.
func NewRegistryWithOptions(opts Options) *Registry {
	r := NewRegistry()
	r.Register(NewClear())
	r.Register(NewSHA())
	r.Register(NewSSHA())
	r.Register(NewSSHA256())
	r.Register(NewSSHA384())
	r.Register(NewSSHA512())
	r.Register(NewBcrypt(opts.BcryptCost))
	r.Register(NewPBKDF2(opts.PBKDF2Iterations))
	r.Register(NewPBKDF2SHA256(opts.PBKDF2Iterations))
	r.Register(NewCrypt())
	return r
}

// Register adds s, replacing a scheme with the same name. Schemes with an
// authPassword form are also indexed under that name.
func (r *Registry) Register(s Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemes[strings.ToUpper(s.Name())] = s
	if ap, ok := s.(AuthPasswordScheme); ok && s.AuthPasswordName() != "" {
		r.authPassword[strings.ToUpper(s.AuthPasswordName())] = ap
	}
}

// Get returns the scheme registered under name (case-insensitive).
func (r *Registry) Get(name string) (Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemes[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return s, nil
}

// GetAuthPassword returns the scheme with the given RFC 3112 name.
func (r *Registry) GetAuthPassword(name string) (AuthPasswordScheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.authPassword[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return s, nil
}

// Names returns the registered scheme names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.schemes))
	for name := range r.schemes {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Encode encodes plain with the named scheme, returning the tagged value.
func (r *Registry) Encode(scheme string, plain []byte) ([]byte, error) {
	s, err := r.Get(scheme)
	if err != nil {
		return nil, err
	}
	return s.EncodeWithScheme(plain)
}

// Matches verifies plain against a tagged userPassword value.
func (r *Registry) Matches(plain, stored []byte) (bool, error) {
	name, payload, err := Decode(stored)
	if err != nil {
		return false, err
	}
	s, err := r.Get(name)
	if err != nil {
		return false, err
	}
	return s.Matches(plain, payload), nil
}

// Decode splits a "{SCHEME}payload" value. The scheme name is upper-cased.
func Decode(stored []byte) (scheme string, payload []byte, err error) {
	if len(stored) < 3 || stored[0] != '{' {
		return "", nil, ErrMalformedValue
	}
	end := -1
	for i := 1; i < len(stored); i++ {
		if stored[i] == '}' {
			end = i
			break
		}
	}
	if end <= 1 {
		return "", nil, ErrMalformedValue
	}
	return strings.ToUpper(string(stored[1:end])), stored[end+1:], nil
}

// IsEncoded reports whether value carries a "{SCHEME}" tag.
func IsEncoded(value []byte) bool {
	_, _, err := Decode(value)
	return err == nil
}

// AuthPassword is a parsed RFC 3112 value.
type AuthPassword struct {
	Scheme string
	Salt   string
	Digest string
}

// String renders the value in "scheme$salt$digest" form.
func (a AuthPassword) String() string {
	return a.Scheme + "$" + a.Salt + "$" + a.Digest
}

// ParseAuthPassword splits "scheme$salt$digest". Whitespace around each
// field is ignored and the scheme is upper-cased.
func ParseAuthPassword(value string) (AuthPassword, error) {
	parts := strings.Split(value, "$")
	if len(parts) != 3 {
		return AuthPassword{}, fmt.Errorf("%w: expected scheme$salt$digest", ErrMalformedValue)
	}
	ap := AuthPassword{
		Scheme: strings.ToUpper(strings.TrimSpace(parts[0])),
		Salt:   strings.TrimSpace(parts[1]),
		Digest: strings.TrimSpace(parts[2]),
	}
	if ap.Scheme == "" || ap.Salt == "" || ap.Digest == "" {
		return AuthPassword{}, fmt.Errorf("%w: empty authPassword field", ErrMalformedValue)
	}
	return ap, nil
}

// EncodeAuthPassword encodes plain in authPassword syntax with the scheme
// whose RFC 3112 name is authName.
func (r *Registry) EncodeAuthPassword(authName string, plain []byte) (string, error) {
	s, err := r.GetAuthPassword(authName)
	if err != nil {
		return "", err
	}
	fields, err := s.EncodeAuthPassword(plain)
	if err != nil {
		return "", err
	}
	return s.AuthPasswordName() + "$" + string(fields), nil
}

// MatchesAuthPassword verifies plain against an authPassword value.
func (r *Registry) MatchesAuthPassword(plain []byte, value string) (bool, error) {
	ap, err := ParseAuthPassword(value)
	if err != nil {
		return false, err
	}
	s, err := r.GetAuthPassword(ap.Scheme)
	if err != nil {
		return false, err
	}
	return s.MatchesAuthPassword(plain, ap.Salt, ap.Digest), nil
}

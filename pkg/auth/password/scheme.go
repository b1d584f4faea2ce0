package password

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Scheme encodes and verifies passwords in one storage format.
//
// Stored values passed to Matches and Plaintext are the payload without the
// "{NAME}" tag. Implementations must be safe for concurrent use.
type Scheme interface {
	// Name is the userPassword tag without braces, e.g. "SSHA".
	Name() string

	// AuthPasswordName is the RFC 3112 scheme name, or "" when the scheme
	// has no authPassword form.
	AuthPasswordName() string

	Encode(plain []byte) ([]byte, error)

	// EncodeWithScheme returns "{NAME}" followed by the encoded payload.
	EncodeWithScheme(plain []byte) ([]byte, error)

	Matches(plain, stored []byte) bool

	IsReversible() bool

	// Plaintext recovers the password from a reversible encoding. One-way
	// schemes return an error wrapping auth.ErrNotReversible.
	Plaintext(stored []byte) ([]byte, error)
}

// AuthPasswordScheme is implemented by schemes with an authPassword form.
type AuthPasswordScheme interface {
	Scheme

	// EncodeAuthPassword returns "base64(salt)$base64(digest)".
	EncodeAuthPassword(plain []byte) ([]byte, error)

	// MatchesAuthPassword verifies plain against base64 salt and digest fields.
	MatchesAuthPassword(plain []byte, salt, digest string) bool
}

// SaltLength is the number of random salt bytes used by salted schemes.
const SaltLength = 8

// withTag prefixes payload with "{name}".
func withTag(name string, payload []byte) []byte {
	out := make([]byte, 0, len(name)+2+len(payload))
	out = append(out, '{')
	out = append(out, name...)
	out = append(out, '}')
	return append(out, payload...)
}

func newSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func notReversible(name string) error {
	return fmt.Errorf("%w: %s", auth.ErrNotReversible, name)
}

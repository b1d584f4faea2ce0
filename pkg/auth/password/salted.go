package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// Salted is the salted-digest family (SSHA, SSHA256, SSHA384, SSHA512).
//
// Stored form: base64(H(plain ++ salt) ++ salt). Verification takes the
// trailing SaltLength bytes as the salt and the rest as the digest.
type Salted struct {
	name     string
	authName string
	newHash  func() hash.Hash
}

// NewSSHA returns salted SHA-1.
func NewSSHA() *Salted { return &Salted{name: "SSHA", authName: "SHA1", newHash: sha1.New} }

// NewSSHA256 returns salted SHA-256.
func NewSSHA256() *Salted { return &Salted{name: "SSHA256", authName: "SHA256", newHash: sha256.New} }

// NewSSHA384 returns salted SHA-384.
func NewSSHA384() *Salted { return &Salted{name: "SSHA384", authName: "SHA384", newHash: sha512.New384} }

// NewSSHA512 returns salted SHA-512.
func NewSSHA512() *Salted { return &Salted{name: "SSHA512", authName: "SHA512", newHash: sha512.New} }

func (s *Salted) Name() string             { return s.name }
func (s *Salted) AuthPasswordName() string { return s.authName }
func (s *Salted) IsReversible() bool       { return false }

// digest hashes plain ++ salt with a fresh hash per call.
func (s *Salted) digest(plain, salt []byte) []byte {
	h := s.newHash()
	h.Write(plain)
	h.Write(salt)
	return h.Sum(nil)
}

func (s *Salted) Encode(plain []byte) ([]byte, error) {
	salt, err := newSalt(SaltLength)
	if err != nil {
		return nil, err
	}
	raw := append(s.digest(plain, salt), salt...)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (s *Salted) EncodeWithScheme(plain []byte) ([]byte, error) {
	enc, err := s.Encode(plain)
	if err != nil {
		return nil, err
	}
	return withTag(s.name, enc), nil
}

func (s *Salted) Matches(plain, stored []byte) bool {
	raw, err := base64.StdEncoding.DecodeString(string(stored))
	if err != nil {
		logger.Warn("Cannot decode stored password", logger.Scheme(s.name), logger.Err(err))
		return false
	}
	if len(raw) <= SaltLength {
		logger.Warn("Stored password too short", logger.Scheme(s.name))
		return false
	}
	split := len(raw) - SaltLength
	return constantTimeEqual(s.digest(plain, raw[split:]), raw[:split])
}

func (s *Salted) Plaintext([]byte) ([]byte, error) {
	return nil, notReversible(s.name)
}

func (s *Salted) EncodeAuthPassword(plain []byte) ([]byte, error) {
	salt, err := newSalt(SaltLength)
	if err != nil {
		return nil, err
	}
	digest := s.digest(plain, salt)
	out := base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(digest)
	return []byte(out), nil
}

func (s *Salted) MatchesAuthPassword(plain []byte, salt, digest string) bool {
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		logger.Warn("Cannot decode authPassword salt", logger.Scheme(s.authName), logger.Err(err))
		return false
	}
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		logger.Warn("Cannot decode authPassword digest", logger.Scheme(s.authName), logger.Err(err))
		return false
	}
	return constantTimeEqual(s.digest(plain, saltBytes), want)
}

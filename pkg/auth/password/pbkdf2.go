package password

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// DefaultPBKDF2Iterations is the round count used when none is configured.
const DefaultPBKDF2Iterations = 10000

// PBKDF2 stores "iterations:base64(dk ++ salt)". The authPassword form is
// "iterations:base64(salt)$base64(dk)".
type PBKDF2 struct {
	name       string
	authName   string
	iterations int
	keyLen     int
	newHash    func() hash.Hash
}

// NewPBKDF2 returns PBKDF2 with HMAC-SHA1.
func NewPBKDF2(iterations int) *PBKDF2 {
	return newPBKDF2("PBKDF2", "PBKDF2", iterations, sha1.Size, sha1.New)
}

// NewPBKDF2SHA256 returns PBKDF2 with HMAC-SHA256.
func NewPBKDF2SHA256(iterations int) *PBKDF2 {
	return newPBKDF2("PBKDF2-HMAC-SHA256", "PBKDF2-HMAC-SHA256", iterations, sha256.Size, sha256.New)
}

func newPBKDF2(name, authName string, iterations, keyLen int, h func() hash.Hash) *PBKDF2 {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return &PBKDF2{name: name, authName: authName, iterations: iterations, keyLen: keyLen, newHash: h}
}

func (p *PBKDF2) Name() string             { return p.name }
func (p *PBKDF2) AuthPasswordName() string { return p.authName }
func (p *PBKDF2) IsReversible() bool       { return false }

func (p *PBKDF2) derive(plain, salt []byte, iterations int) []byte {
	return pbkdf2.Key(plain, salt, iterations, p.keyLen, p.newHash)
}

func (p *PBKDF2) Encode(plain []byte) ([]byte, error) {
	salt, err := newSalt(SaltLength)
	if err != nil {
		return nil, err
	}
	raw := append(p.derive(plain, salt, p.iterations), salt...)
	out := strconv.Itoa(p.iterations) + ":" + base64.StdEncoding.EncodeToString(raw)
	return []byte(out), nil
}

func (p *PBKDF2) EncodeWithScheme(plain []byte) ([]byte, error) {
	enc, err := p.Encode(plain)
	if err != nil {
		return nil, err
	}
	return withTag(p.name, enc), nil
}

func (p *PBKDF2) Matches(plain, stored []byte) bool {
	iterStr, encoded, ok := bytes.Cut(stored, []byte(":"))
	if !ok {
		logger.Warn("Stored password missing iteration count", logger.Scheme(p.name))
		return false
	}
	iterations, err := strconv.Atoi(string(iterStr))
	if err != nil || iterations <= 0 {
		logger.Warn("Invalid iteration count in stored password", logger.Scheme(p.name))
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		logger.Warn("Cannot decode stored password", logger.Scheme(p.name), logger.Err(err))
		return false
	}
	if len(raw) != p.keyLen+SaltLength {
		logger.Warn("Stored password has unexpected length", logger.Scheme(p.name))
		return false
	}
	return constantTimeEqual(p.derive(plain, raw[p.keyLen:], iterations), raw[:p.keyLen])
}

func (p *PBKDF2) Plaintext([]byte) ([]byte, error) {
	return nil, notReversible(p.name)
}

func (p *PBKDF2) EncodeAuthPassword(plain []byte) ([]byte, error) {
	salt, err := newSalt(SaltLength)
	if err != nil {
		return nil, err
	}
	dk := p.derive(plain, salt, p.iterations)
	out := strconv.Itoa(p.iterations) + ":" + base64.StdEncoding.EncodeToString(salt) +
		"$" + base64.StdEncoding.EncodeToString(dk)
	return []byte(out), nil
}

func (p *PBKDF2) MatchesAuthPassword(plain []byte, salt, digest string) bool {
	iterStr, saltB64, ok := strings.Cut(salt, ":")
	if !ok {
		return false
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return false
	}
	saltBytes, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		logger.Warn("Cannot decode authPassword salt", logger.Scheme(p.authName), logger.Err(err))
		return false
	}
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		logger.Warn("Cannot decode authPassword digest", logger.Scheme(p.authName), logger.Err(err))
		return false
	}
	return constantTimeEqual(p.derive(plain, saltBytes, iterations), want)
}

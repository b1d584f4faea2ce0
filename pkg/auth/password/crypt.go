package password

import (
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// Crypt stores crypt(3) modular hashes. New values use SHA-512-crypt;
// verification accepts $1$ (MD5), $5$ (SHA-256), $6$ (SHA-512) and
// $2a$/$2b$/$2y$ (bcrypt) values imported from system password files.
type Crypt struct{}

// NewCrypt returns the CRYPT scheme.
func NewCrypt() *Crypt { return &Crypt{} }

func (*Crypt) Name() string             { return "CRYPT" }
func (*Crypt) AuthPasswordName() string { return "" }
func (*Crypt) IsReversible() bool       { return false }

func (*Crypt) Encode(plain []byte) ([]byte, error) {
	hashed, err := sha512_crypt.New().Generate(plain, nil)
	if err != nil {
		return nil, err
	}
	return []byte(hashed), nil
}

func (c *Crypt) EncodeWithScheme(plain []byte) ([]byte, error) {
	enc, err := c.Encode(plain)
	if err != nil {
		return nil, err
	}
	return withTag(c.Name(), enc), nil
}

func (c *Crypt) Matches(plain, stored []byte) bool {
	hashed := string(stored)

	if strings.HasPrefix(hashed, "$2") {
		return bcrypt.CompareHashAndPassword(stored, plain) == nil
	}

	crypter := crypterFor(hashed)
	if crypter == nil {
		logger.Warn("Unsupported crypt variant", logger.Scheme(c.Name()))
		return false
	}
	return crypter.Verify(hashed, plain) == nil
}

func (c *Crypt) Plaintext([]byte) ([]byte, error) {
	return nil, notReversible(c.Name())
}

func crypterFor(hashed string) crypt.Crypter {
	switch {
	case strings.HasPrefix(hashed, sha512_crypt.MagicPrefix):
		return sha512_crypt.New()
	case strings.HasPrefix(hashed, sha256_crypt.MagicPrefix):
		return sha256_crypt.New()
	case strings.HasPrefix(hashed, md5_crypt.MagicPrefix):
		return md5_crypt.New()
	default:
		return nil
	}
}

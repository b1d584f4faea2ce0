package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// maxBcryptPassword is the longest input bcrypt accepts.
const maxBcryptPassword = 72

// ErrPasswordTooLong is returned when a password exceeds the bcrypt limit.
var ErrPasswordTooLong = errors.New("password: bcrypt input longer than 72 bytes")

// Bcrypt stores the modular crypt form "$2a$cost$..." produced by
// golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns the BCRYPT scheme. A cost outside bcrypt's range falls
// back to DefaultBcryptCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &Bcrypt{cost: cost}
}

func (*Bcrypt) Name() string             { return "BCRYPT" }
func (*Bcrypt) AuthPasswordName() string { return "" }
func (*Bcrypt) IsReversible() bool       { return false }

// Cost returns the configured work factor.
func (b *Bcrypt) Cost() int { return b.cost }

func (b *Bcrypt) Encode(plain []byte) ([]byte, error) {
	if len(plain) > maxBcryptPassword {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword(plain, b.cost)
}

func (b *Bcrypt) EncodeWithScheme(plain []byte) ([]byte, error) {
	enc, err := b.Encode(plain)
	if err != nil {
		return nil, err
	}
	return withTag(b.Name(), enc), nil
}

func (b *Bcrypt) Matches(plain, stored []byte) bool {
	err := bcrypt.CompareHashAndPassword(stored, plain)
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		logger.Warn("Cannot verify stored password", logger.Scheme(b.Name()), logger.Err(err))
	}
	return err == nil
}

func (b *Bcrypt) Plaintext([]byte) ([]byte, error) {
	return nil, notReversible(b.Name())
}

// NeedsRehash reports whether a stored hash uses a lower cost than configured.
func (b *Bcrypt) NeedsRehash(stored []byte) bool {
	cost, err := bcrypt.Cost(stored)
	if err != nil {
		return true
	}
	return cost < b.cost
}

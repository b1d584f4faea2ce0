package password

import (
	"crypto/sha1"
	"encoding/base64"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// SHA is the unsalted SHA-1 scheme. Identical passwords encode identically,
// so it is offered only for values imported from older directories.
type SHA struct{}

// NewSHA returns the SHA scheme.
func NewSHA() *SHA { return &SHA{} }

func (*SHA) Name() string             { return "SHA" }
func (*SHA) AuthPasswordName() string { return "" }
func (*SHA) IsReversible() bool       { return false }

func (*SHA) Encode(plain []byte) ([]byte, error) {
	sum := sha1.Sum(plain)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out, nil
}

func (s *SHA) EncodeWithScheme(plain []byte) ([]byte, error) {
	enc, err := s.Encode(plain)
	if err != nil {
		return nil, err
	}
	return withTag(s.Name(), enc), nil
}

func (s *SHA) Matches(plain, stored []byte) bool {
	want, err := base64.StdEncoding.DecodeString(string(stored))
	if err != nil {
		logger.Warn("Cannot decode stored password", logger.Scheme(s.Name()), logger.Err(err))
		return false
	}
	sum := sha1.Sum(plain)
	return constantTimeEqual(sum[:], want)
}

func (s *SHA) Plaintext([]byte) ([]byte, error) {
	return nil, notReversible(s.Name())
}

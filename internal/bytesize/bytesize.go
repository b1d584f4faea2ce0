// Package bytesize parses buffer and frame sizes written as "64Ki", "16MiB"
// or plain byte counts in configuration files.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

// suffixes is ordered longest first so "KiB" wins over "B".
var suffixes = []struct {
	unit string
	mult ByteSize
}{
	{"kib", KiB}, {"mib", MiB}, {"gib", GiB},
	{"ki", KiB}, {"mi", MiB}, {"gi", GiB},
	{"kb", KB}, {"mb", MB}, {"gb", GB},
	{"k", KB}, {"m", MB}, {"g", GB},
	{"b", B},
}

// Parse parses a human-readable size such as "64Ki", "1.5MiB" or "4096".
func Parse(s string) (ByteSize, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	mult := B
	for _, sfx := range suffixes {
		if rest, ok := strings.CutSuffix(trimmed, sfx.unit); ok {
			trimmed = strings.TrimSpace(rest)
			mult = sfx.mult
			break
		}
	}

	if n, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		if n > math.MaxUint64/uint64(mult) {
			return 0, fmt.Errorf("byte size %q overflows", s)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	if f*float64(mult) >= math.MaxUint64 {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return ByteSize(f * float64(mult)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the exact size, using a binary unit when it divides evenly.
func (b ByteSize) MarshalText() ([]byte, error) {
	switch {
	case b != 0 && b%GiB == 0:
		return []byte(fmt.Sprintf("%dGi", b/GiB)), nil
	case b != 0 && b%MiB == 0:
		return []byte(fmt.Sprintf("%dMi", b/MiB)), nil
	case b != 0 && b%KiB == 0:
		return []byte(fmt.Sprintf("%dKi", b/KiB)), nil
	default:
		return []byte(strconv.FormatUint(uint64(b), 10)), nil
	}
}

func (b ByteSize) String() string {
	text, _ := b.MarshalText()
	return string(text)
}

// Uint32 returns the size clamped to the uint32 range used by SASL buffer
// negotiation and frame headers.
func (b ByteSize) Uint32() uint32 {
	if b > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(b)
}

// Int returns the size as an int, clamped to math.MaxInt.
func (b ByteSize) Int() int {
	if uint64(b) > math.MaxInt {
		return math.MaxInt
	}
	return int(b)
}

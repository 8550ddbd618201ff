package permutation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var ErrInvalidSeed = errors.New("permutation: invalid seed")

// Seed is the 128-bit secret shared out-of-band, stored big-endian.
type Seed [16]byte

func SeedFromUint64(v uint64) Seed {
	var s Seed
	for i := 0; i < 8; i++ {
		s[15-i] = byte(v >> (8 * i))
	}
	return s
}

// ParseSeed accepts a decimal 128-bit integer or a 0x-prefixed hex string of
// at most 32 digits.
func ParseSeed(raw string) (Seed, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Seed{}, fmt.Errorf("%w: empty", ErrInvalidSeed)
	}

	var s Seed
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits := raw[2:]
		if digits == "" || len(digits) > 32 {
			return Seed{}, fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
		}
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
		}
		copy(s[16-len(b):], b)
		return s, nil
	}

	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return Seed{}, fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
	}
	n.FillBytes(s[:])
	return s, nil
}

// String renders the seed as a decimal integer.
func (s Seed) String() string {
	return new(big.Int).SetBytes(s[:]).String()
}

// DateKey renders the calendar fields of t, in t's own location, as the
// date component of the permutation key.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Today is the current calendar date in UTC.
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), time.UTC)
}

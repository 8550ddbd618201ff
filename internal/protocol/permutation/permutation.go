// Package permutation derives the shared dictionary permutation from a seed
// and a calendar date. The generator, the sampling rule and the shuffle are
// part of the wire contract: changing any of them breaks every peer.
package permutation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"word_armor/internal/cryptographic/kdf"
)

var ErrInvalidLength = errors.New("permutation: invalid length")

// NewGenerator returns the generator both peers derive for seed on date.
func NewGenerator(seed Seed, date time.Time) (*PCG64, error) {
	key, err := kdf.PermutationKey(seed[:], DateKey(date))
	if err != nil {
		return nil, fmt.Errorf("derive permutation key: %w", err)
	}
	return NewPCG64FromKey(key), nil
}

// Generate returns a permutation of [0, n) that is a pure function of
// (seed, date, n).
func Generate(seed Seed, date time.Time, n int) ([]uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	rng, err := NewGenerator(seed, date)
	if err != nil {
		return nil, err
	}

	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	Shuffle(rng, indices)
	return indices, nil
}

// Shuffle is a descending Fisher-Yates exchange: for i from len-1 down to 1,
// swap i with a uniform j in [0, i].
func Shuffle(rng *PCG64, indices []uint32) {
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.Below(uint32(i + 1))
		indices[i], indices[j] = indices[j], indices[i]
	}
}

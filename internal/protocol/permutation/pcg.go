package permutation

import (
	"encoding/binary"
	"math/bits"
)

// PCG64 multiplier, 0x2360ED051FC65DA44385DF649FCCF645.
const (
	mulHi uint64 = 0x2360ED051FC65DA4
	mulLo uint64 = 0x4385DF649FCCF645
)

// PCG64 is the 128-bit LCG / 64-bit XSL-RR output generator. The zero value
// is not usable; construct with NewPCG64 or NewPCG64FromKey.
type PCG64 struct {
	hi, lo       uint64
	incHi, incLo uint64
}

// NewPCG64 seeds a generator from a 128-bit state and stream, each given as
// (high, low) halves.
func NewPCG64(stateHi, stateLo, streamHi, streamLo uint64) *PCG64 {
	p := &PCG64{
		incHi: streamHi<<1 | streamLo>>63,
		incLo: streamLo<<1 | 1,
	}
	p.hi, p.lo = add128(stateHi, stateLo, p.incHi, p.incLo)
	p.step()
	return p
}

// NewPCG64FromKey reads state from key[0:16] and stream from key[16:32],
// both little-endian.
func NewPCG64FromKey(key [32]byte) *PCG64 {
	return NewPCG64(
		binary.LittleEndian.Uint64(key[8:16]),
		binary.LittleEndian.Uint64(key[0:8]),
		binary.LittleEndian.Uint64(key[24:32]),
		binary.LittleEndian.Uint64(key[16:24]),
	)
}

func (p *PCG64) step() {
	hi, lo := mul128(p.hi, p.lo, mulHi, mulLo)
	p.hi, p.lo = add128(hi, lo, p.incHi, p.incLo)
}

// Uint64 advances the state and outputs XSL-RR of the new state, matching
// pcg64_random_r.
func (p *PCG64) Uint64() uint64 {
	p.step()
	rot := int(p.hi >> 58)
	return bits.RotateLeft64(p.hi^p.lo, -rot)
}

func (p *PCG64) Uint32() uint32 {
	return uint32(p.Uint64())
}

// Below returns a uniform value in [0, n) using widening multiplication with
// rejection. n must be non-zero.
func (p *PCG64) Below(n uint32) uint32 {
	zone := (n << bits.LeadingZeros32(n)) - 1
	for {
		hi, lo := bits.Mul32(p.Uint32(), n)
		if lo <= zone {
			return hi
		}
	}
}

func add128(aHi, aLo, bHi, bLo uint64) (uint64, uint64) {
	lo, carry := bits.Add64(aLo, bLo, 0)
	hi, _ := bits.Add64(aHi, bHi, carry)
	return hi, lo
}

func mul128(aHi, aLo, bHi, bLo uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(aLo, bLo)
	hi += aHi*bLo + aLo*bHi
	return hi, lo
}

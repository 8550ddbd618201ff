package armor

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"word_armor/internal/payload"
	"word_armor/internal/protocol/mapping"
)

type (
	Encoder struct {
		mapping *mapping.Mapping

		// rng picks marker aliases; nil means the global source.
		mu  sync.Mutex
		rng *rand.Rand
	}

	EncoderOption func(*Encoder)
)

// WithAliasSource makes alias selection reproducible. Decoding never depends
// on which alias was chosen.
func WithAliasSource(src rand.Source) EncoderOption {
	return func(e *Encoder) {
		e.rng = rand.New(src)
	}
}

func NewEncoder(m *mapping.Mapping, opts ...EncoderOption) *Encoder {
	e := &Encoder{mapping: m}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode armors data with a fresh encoder.
func Encode(data []byte, m *mapping.Mapping, softLimit int) ([]string, error) {
	return NewEncoder(m).Encode(data, softLimit)
}

// Encode returns the fragments for data in order. softLimit is an advisory
// character budget per fragment; a fragment always carries at least one
// message word, so a single long word can exceed it. softLimit <= 0 puts the
// whole message in one fragment.
func (e *Encoder) Encode(data []byte, softLimit int) ([]string, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}

	words := make([]string, 0, len(data)/2+2)
	words = append(words, e.mapping.Alias(mapping.RoleBegin, e.pick()))
	for i := 0; i < len(data); i += 2 {
		code := uint16(data[i])<<8 | uint16(data[i+1])
		words = append(words, e.mapping.DataWord(code))
	}
	words = append(words, e.mapping.Alias(mapping.RoleEnd, e.pick()))

	var (
		fragments []string
		current   = make([]string, 0, 16)
		length    int
		carried   int
	)
	push := func(w string) {
		if len(current) > 0 {
			length++
		}
		length += len(w)
		current = append(current, w)
	}

	for _, w := range words {
		if carried > 0 && softLimit > 0 && length+1+len(w) > softLimit {
			fragments = append(fragments, strings.Join(current, " "))
			current = current[:0]
			length, carried = 0, 0

			push(e.mapping.Alias(mapping.RoleFragment, e.pick()))
			push(strconv.Itoa(len(fragments)))
		}
		push(w)
		carried++
	}
	fragments = append(fragments, strings.Join(current, " "))
	return fragments, nil
}

// EncodeFramed seals arbitrary data with the payload framing, which removes
// the even-length requirement, and armors the frame.
func (e *Encoder) EncodeFramed(data []byte, c payload.Compression, softLimit int) ([]string, error) {
	frame, err := payload.Seal(data, c)
	if err != nil {
		return nil, err
	}
	return e.Encode(frame, softLimit)
}

func (e *Encoder) pick() int {
	if e.rng == nil {
		return rand.IntN(mapping.AliasCount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(mapping.AliasCount)
}

package armor

import (
	"fmt"
	"runtime"
	"sort"

	"word_armor/internal/payload"
	"word_armor/internal/protocol/mapping"

	"golang.org/x/sync/errgroup"
)

type (
	Decoder struct {
		mapping    *mapping.Mapping
		bestEffort bool
	}

	DecoderOption func(*Decoder)
)

// WithBestEffort decodes whatever ordered fragments are present instead of
// failing with ErrIncompleteMessage when the begin fragment, the end marker
// or an intermediate fragment is missing. Ambiguous and duplicate orders
// still fail.
func WithBestEffort() DecoderOption {
	return func(d *Decoder) {
		d.bestEffort = true
	}
}

func NewDecoder(m *mapping.Mapping, opts ...DecoderOption) *Decoder {
	d := &Decoder{mapping: m}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reverses Encode for fragments given in any order.
func Decode(fragments []string, m *mapping.Mapping) ([]byte, error) {
	return NewDecoder(m).Decode(fragments)
}

func (d *Decoder) Decode(fragments []string) ([]byte, error) {
	parsed, err := d.parseAll(fragments)
	if err != nil {
		return nil, err
	}
	ordered, err := d.order(parsed)
	if err != nil {
		return nil, err
	}

	size := 0
	for _, f := range ordered {
		size += 2 * len(f.Codes)
	}
	out := make([]byte, 0, size)
	for _, f := range ordered {
		for _, c := range f.Codes {
			out = append(out, byte(c>>8), byte(c))
		}
	}
	return out, nil
}

// DecodeFramed decodes fragments produced by EncodeFramed.
func (d *Decoder) DecodeFramed(fragments []string) ([]byte, error) {
	frame, err := d.Decode(fragments)
	if err != nil {
		return nil, err
	}
	return payload.Open(frame)
}

func (d *Decoder) parseAll(fragments []string) ([]Fragment, error) {
	parsed := make([]Fragment, len(fragments))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range fragments {
		g.Go(func() error {
			f, err := ParseFragment(text, d.mapping)
			if err != nil {
				return fmt.Errorf("fragment %d: %w", i, err)
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (d *Decoder) order(parsed []Fragment) ([]Fragment, error) {
	sort.SliceStable(parsed, func(i, j int) bool {
		return sortKey(parsed[i]) < sortKey(parsed[j])
	})

	for i := 1; i < len(parsed); i++ {
		if parsed[i].Order == parsed[i-1].Order {
			return nil, fmt.Errorf("%w: %s claimed twice", ErrDuplicateFragment, describeOrder(parsed[i].Order))
		}
	}
	if d.bestEffort {
		return parsed, nil
	}

	if len(parsed) == 0 || !parsed[0].Begin {
		return nil, fmt.Errorf("%w: no begin marker", ErrIncompleteMessage)
	}
	for i, f := range parsed {
		if f.Order != Unnumbered && f.Order != i {
			return nil, fmt.Errorf("%w: fragment %d missing", ErrIncompleteMessage, i)
		}
		if f.End && i != len(parsed)-1 {
			return nil, fmt.Errorf("%w: %s follows the end marker", ErrAmbiguousOrder, describeOrder(parsed[i+1].Order))
		}
	}
	if !parsed[len(parsed)-1].End {
		return nil, fmt.Errorf("%w: no end marker", ErrIncompleteMessage)
	}
	return parsed, nil
}

func sortKey(f Fragment) int {
	if f.Order == Unnumbered {
		return int(^uint(0) >> 1)
	}
	return f.Order
}

func describeOrder(order int) string {
	if order == Unnumbered {
		return "unnumbered end fragment"
	}
	return fmt.Sprintf("order %d", order)
}

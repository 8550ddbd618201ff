package armor

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"word_armor/internal/protocol/mapping"
)

// Assembler collects fragments of one message as they arrive from a
// transport, in any order, and reports when the message is complete.
type Assembler struct {
	mu        sync.Mutex
	decoder   *Decoder
	texts     map[int]string
	fragments map[int]Fragment
}

func NewAssembler(m *mapping.Mapping) *Assembler {
	return &Assembler{
		decoder:   NewDecoder(m),
		texts:     make(map[int]string),
		fragments: make(map[int]Fragment),
	}
}

// Add records text and reports whether every fragment of the message is now
// present. Re-adding an identical fragment is a no-op; a different fragment
// claiming a known order fails with ErrDuplicateFragment.
func (a *Assembler) Add(text string) (bool, error) {
	f, err := ParseFragment(text, a.decoder.mapping)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.texts[f.Order]; ok {
		if prev != text {
			return false, fmt.Errorf("%w: %s claimed twice", ErrDuplicateFragment, describeOrder(f.Order))
		}
		return a.complete(), nil
	}
	a.texts[f.Order] = text
	a.fragments[f.Order] = f
	return a.complete(), nil
}

func (a *Assembler) complete() bool {
	if _, ok := a.fragments[0]; !ok {
		return false
	}
	last := -1
	if f, ok := a.fragments[Unnumbered]; ok && f.End {
		last = len(a.fragments) - 2
	} else {
		for order, f := range a.fragments {
			if f.End && order > last {
				last = order
			}
		}
	}
	if last < 0 {
		return false
	}
	for i := 0; i <= last; i++ {
		if _, ok := a.fragments[i]; !ok {
			return false
		}
	}
	return true
}

// Fragments returns the collected fragment strings, ordered.
func (a *Assembler) Fragments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ordered()
}

func (a *Assembler) ordered() []string {
	orders := make([]int, 0, len(a.texts))
	for order := range a.texts {
		orders = append(orders, order)
	}
	slices.SortFunc(orders, func(x, y int) int {
		return cmp.Compare(sortKey(Fragment{Order: x}), sortKey(Fragment{Order: y}))
	})

	out := make([]string, len(orders))
	for i, order := range orders {
		out[i] = a.texts[order]
	}
	return out
}

// Message decodes the collected fragments. It fails with
// ErrIncompleteMessage until Add has reported completion.
func (a *Assembler) Message() ([]byte, error) {
	return a.decoder.Decode(a.Fragments())
}

// MessageFramed is Message for fragments produced by EncodeFramed.
func (a *Assembler) MessageFramed() ([]byte, error) {
	return a.decoder.DecodeFramed(a.Fragments())
}

func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts)
}

func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.texts)
	clear(a.fragments)
}

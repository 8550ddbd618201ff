package armor

import (
	"fmt"
	"strconv"
	"strings"

	"word_armor/internal/protocol/mapping"
)

// Unnumbered is the order of a fragment that carries the end marker but
// neither the begin marker nor a fragment number. It sorts after every
// numbered fragment.
const Unnumbered = -1

// Fragment is the meaningful content of one fragment string.
type Fragment struct {
	Order int
	Begin bool
	End   bool
	Codes []uint16
}

// ParseFragment tokenizes text and resolves its order. Tokens that are not
// mapped words are dropped. Data words before the begin marker or after the
// end marker are dropped as well.
func ParseFragment(text string, m *mapping.Mapping) (Fragment, error) {
	var (
		f             Fragment
		numbered      bool
		meaningful    bool
		awaitingOrder bool
	)

	for _, tok := range strings.Fields(text) {
		if awaitingOrder {
			if n, err := strconv.ParseUint(tok, 10, 31); err == nil {
				f.Order = int(n)
				numbered = true
				awaitingOrder = false
				continue
			}
		}

		e, ok := m.Lookup(tok)
		if !ok {
			continue
		}
		first := !meaningful
		meaningful = true
		awaitingOrder = false

		switch e.Role {
		case mapping.RoleBegin:
			if !f.Begin {
				f.Begin = true
				f.Codes = f.Codes[:0]
			}
		case mapping.RoleEnd:
			f.End = true
		case mapping.RoleFragment:
			awaitingOrder = first
		case mapping.RoleData:
			if !f.End {
				f.Codes = append(f.Codes, e.Code)
			}
		}
	}

	switch {
	case f.Begin:
		if numbered && f.Order != 0 {
			return Fragment{}, fmt.Errorf("%w: begin fragment also numbered %d", ErrAmbiguousOrder, f.Order)
		}
		f.Order = 0
	case numbered:
		if f.Order == 0 {
			return Fragment{}, fmt.Errorf("%w: order 0 is reserved for the begin fragment", ErrAmbiguousOrder)
		}
	case f.End:
		f.Order = Unnumbered
	default:
		return Fragment{}, fmt.Errorf("%w: no begin marker or fragment number in %q", ErrAmbiguousOrder, abbreviate(text))
	}
	return f, nil
}

func abbreviate(s string) string {
	const limit = 48
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Package mapping partitions a dictionary permutation into structural marker
// aliases and 16-bit data codes. A built Mapping is immutable and safe to
// share between goroutines.
package mapping

import (
	"errors"
	"fmt"
	"time"

	"word_armor/internal/dictionary"
	"word_armor/internal/protocol/permutation"
)

const (
	AliasCount        = 5
	MarkerSlots       = 3 * AliasCount
	DataSlots         = 1 << 16
	MinDictionarySize = MarkerSlots + DataSlots
)

var (
	ErrDictionaryTooSmall = errors.New("mapping: dictionary too small")
	ErrPermutationLength  = errors.New("mapping: permutation does not match dictionary")
)

type Role uint8

const (
	RoleNone Role = iota
	RoleBegin
	RoleEnd
	RoleFragment
	RoleData
)

func (r Role) String() string {
	switch r {
	case RoleBegin:
		return "begin"
	case RoleEnd:
		return "end"
	case RoleFragment:
		return "fragment"
	case RoleData:
		return "data"
	default:
		return "none"
	}
}

// Entry is the meaning of one dictionary word. Code is set only for RoleData.
type Entry struct {
	Role Role
	Code uint16
}

type Mapping struct {
	dict *dictionary.Dictionary

	begin    [AliasCount]uint32
	end      [AliasCount]uint32
	fragment [AliasCount]uint32

	// data[c] is the dictionary index of the word for code c.
	data []uint32
	// roles is indexed by dictionary index.
	roles []Entry
}

// New derives the permutation for (seed, date) and builds the mapping.
func New(dict *dictionary.Dictionary, seed permutation.Seed, date time.Time) (*Mapping, error) {
	if dict.Len() < MinDictionarySize {
		return nil, fmt.Errorf("%w: %d words, need %d", ErrDictionaryTooSmall, dict.Len(), MinDictionarySize)
	}
	perm, err := permutation.Generate(seed, date, dict.Len())
	if err != nil {
		return nil, err
	}
	return Build(dict, perm)
}

// Build assigns P[0,5) to begin, P[5,10) to end, P[10,15) to fragment and
// P[15+c] to data code c. Words past 15+65536 stay unmapped.
func Build(dict *dictionary.Dictionary, perm []uint32) (*Mapping, error) {
	if dict.Len() < MinDictionarySize {
		return nil, fmt.Errorf("%w: %d words, need %d", ErrDictionaryTooSmall, dict.Len(), MinDictionarySize)
	}
	if len(perm) != dict.Len() {
		return nil, fmt.Errorf("%w: %d entries for %d words", ErrPermutationLength, len(perm), dict.Len())
	}
	seen := make([]bool, len(perm))
	for _, idx := range perm {
		if int(idx) >= len(perm) || seen[idx] {
			return nil, fmt.Errorf("%w: index %d out of range or repeated", ErrPermutationLength, idx)
		}
		seen[idx] = true
	}

	m := &Mapping{
		dict:  dict,
		data:  make([]uint32, DataSlots),
		roles: make([]Entry, dict.Len()),
	}
	for i := 0; i < AliasCount; i++ {
		m.begin[i] = perm[i]
		m.end[i] = perm[AliasCount+i]
		m.fragment[i] = perm[2*AliasCount+i]
		m.roles[m.begin[i]] = Entry{Role: RoleBegin}
		m.roles[m.end[i]] = Entry{Role: RoleEnd}
		m.roles[m.fragment[i]] = Entry{Role: RoleFragment}
	}
	for c := 0; c < DataSlots; c++ {
		idx := perm[MarkerSlots+c]
		m.data[c] = idx
		m.roles[idx] = Entry{Role: RoleData, Code: uint16(c)}
	}
	return m, nil
}

func (m *Mapping) Dictionary() *dictionary.Dictionary { return m.dict }

func (m *Mapping) Begin() []string    { return m.words(m.begin) }
func (m *Mapping) End() []string      { return m.words(m.end) }
func (m *Mapping) Fragment() []string { return m.words(m.fragment) }

// Alias returns the i-th alias word (0 <= i < AliasCount) for a marker role.
func (m *Mapping) Alias(role Role, i int) string {
	switch role {
	case RoleBegin:
		return m.dict.Word(m.begin[i])
	case RoleEnd:
		return m.dict.Word(m.end[i])
	case RoleFragment:
		return m.dict.Word(m.fragment[i])
	default:
		panic(fmt.Sprintf("mapping: %s is not a marker role", role))
	}
}

func (m *Mapping) words(idx [AliasCount]uint32) []string {
	out := make([]string, AliasCount)
	for i, v := range idx {
		out[i] = m.dict.Word(v)
	}
	return out
}

func (m *Mapping) DataWord(code uint16) string {
	return m.dict.Word(m.data[code])
}

// DataIndex is the dictionary index of the word for code.
func (m *Mapping) DataIndex(code uint16) uint32 {
	return m.data[code]
}

// Lookup resolves a word. Words outside the dictionary, and dictionary words
// with no role, report false.
func (m *Mapping) Lookup(word string) (Entry, bool) {
	idx, ok := m.dict.Index(word)
	if !ok {
		return Entry{}, false
	}
	return m.LookupIndex(idx)
}

func (m *Mapping) LookupIndex(idx uint32) (Entry, bool) {
	if int(idx) >= len(m.roles) {
		return Entry{}, false
	}
	e := m.roles[idx]
	return e, e.Role != RoleNone
}

package armor

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"word_armor/internal/payload"
	"word_armor/internal/protocol/mapping"
	"word_armor/internal/protocol/permutation"
	"word_armor/internal/testutil/dicttest"
)

var goldenDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

var (
	fixtureOnce   sync.Once
	goldenMapping *mapping.Mapping
	wideMapping   *mapping.Mapping
	otherMapping  *mapping.Mapping
)

// fixtures returns a mapping over the smallest usable dictionary, one over a larger
// dictionary that leaves words unmapped, and one for a different seed.
func fixtures(t *testing.T) (golden, wide, other *mapping.Mapping) {
	t.Helper()
	fixtureOnce.Do(func() {
		var err error
		goldenMapping, err = mapping.New(dicttest.New(t, mapping.MinDictionarySize), permutation.SeedFromUint64(69), goldenDate)
		if err != nil {
			t.Fatalf("golden mapping: %v", err)
		}
		wideMapping, err = mapping.New(dicttest.New(t, 70000), permutation.SeedFromUint64(69), goldenDate)
		if err != nil {
			t.Fatalf("wide mapping: %v", err)
		}
		otherMapping, err = mapping.New(dicttest.New(t, mapping.MinDictionarySize), permutation.SeedFromUint64(70), goldenDate)
		if err != nil {
			t.Fatalf("other mapping: %v", err)
		}
	})
	if goldenMapping == nil || wideMapping == nil || otherMapping == nil {
		t.Fatalf("fixtures unavailable")
	}
	return goldenMapping, wideMapping, otherMapping
}

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.UintN(256))
	}
	return out
}

func contains(list []string, w string) bool {
	for _, v := range list {
		if v == w {
			return true
		}
	}
	return false
}

func TestConcreteExample(t *testing.T) {
	m, _, _ := fixtures(t)
	dict := m.Dictionary()

	frags, err := Encode([]byte{0x48, 0x69}, m, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("fragments: got %d want 1", len(frags))
	}
	words := strings.Fields(frags[0])
	if len(words) != 3 {
		t.Fatalf("words: got %v", words)
	}
	if !contains(m.Begin(), words[0]) || !contains(m.End(), words[2]) {
		t.Fatalf("markers: got %v", words)
	}
	if words[1] != dict.Word(26940) {
		t.Fatalf("data word: got %q want %q", words[1], dict.Word(26940))
	}

	for i := 0; i < mapping.AliasCount; i++ {
		set := []string{m.Alias(mapping.RoleBegin, i) + " " + dict.Word(26940) + " " + m.Alias(mapping.RoleEnd, 4-i)}
		out, err := Decode(set, m)
		if err != nil {
			t.Fatalf("decode with alias %d: %v", i, err)
		}
		if !bytes.Equal(out, []byte{0x48, 0x69}) {
			t.Fatalf("decode with alias %d: got %x", i, out)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	m, _, _ := fixtures(t)
	enc := NewEncoder(m, WithAliasSource(rand.NewPCG(1, 2)))

	for _, size := range []int{0, 2, 4, 64, 1000} {
		for _, limit := range []int{0, 1, 12, 40, 200} {
			msg := randomBytes(uint64(size*1000+limit), size)
			frags, err := enc.Encode(msg, limit)
			if err != nil {
				t.Fatalf("size %d limit %d: encode: %v", size, limit, err)
			}
			out, err := Decode(frags, m)
			if err != nil {
				t.Fatalf("size %d limit %d: decode: %v", size, limit, err)
			}
			if !bytes.Equal(out, msg) {
				t.Fatalf("size %d limit %d: round trip mismatch", size, limit)
			}
		}
	}
}

func TestEncodeFragmentHeadersAndSoftLimit(t *testing.T) {
	m, _, _ := fixtures(t)
	const limit = 30

	frags, err := Encode(randomBytes(5, 200), m, limit)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frags) < 3 {
		t.Fatalf("expected several fragments, got %d", len(frags))
	}

	for i, f := range frags {
		words := strings.Fields(f)
		payloadWords := len(words)
		if i == 0 {
			if !contains(m.Begin(), words[0]) {
				t.Fatalf("fragment 0 does not start with a begin alias: %q", f)
			}
		} else {
			if !contains(m.Fragment(), words[0]) || words[1] != strconv.Itoa(i) {
				t.Fatalf("fragment %d header: %q", i, f)
			}
			payloadWords -= 2
		}
		if len(f) > limit && payloadWords != 1 {
			t.Fatalf("fragment %d is %d chars with %d words", i, len(f), payloadWords)
		}
	}
	last := strings.Fields(frags[len(frags)-1])
	if !contains(m.End(), last[len(last)-1]) {
		t.Fatalf("last fragment does not end with an end alias")
	}
}

func TestEncodeRejectsOddLength(t *testing.T) {
	m, _, _ := fixtures(t)
	if _, err := Encode([]byte{1, 2, 3}, m, 0); !errors.Is(err, ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}

func TestDecodeIsOrderInvariant(t *testing.T) {
	m, _, _ := fixtures(t)
	msg := randomBytes(9, 300)
	frags, err := Encode(msg, m, 25)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := rand.New(rand.NewPCG(3, 4))
	for round := 0; round < 10; round++ {
		shuffled := append([]string(nil), frags...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		out, err := Decode(shuffled, m)
		if err != nil {
			t.Fatalf("round %d: decode: %v", round, err)
		}
		if !bytes.Equal(out, msg) {
			t.Fatalf("round %d: mismatch", round)
		}
	}
}

func TestDecodeIgnoresNoise(t *testing.T) {
	_, m, _ := fixtures(t)
	dict := m.Dictionary()

	var unmapped []string
	for i := 0; i < dict.Len() && len(unmapped) < 20; i++ {
		if _, ok := m.LookupIndex(uint32(i)); !ok {
			unmapped = append(unmapped, dict.Word(uint32(i)))
		}
	}
	if len(unmapped) == 0 {
		t.Fatalf("fixture has no unmapped words")
	}
	noise := append([]string{"Hello,", "WEATHER", "is-nice", "today!", "x9"}, unmapped...)

	msg := randomBytes(11, 240)
	frags, err := Encode(msg, m, 40)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := rand.New(rand.NewPCG(5, 6))
	noisy := make([]string, len(frags))
	for i, f := range frags {
		words := strings.Fields(f)
		out := make([]string, 0, 2*len(words))
		for _, w := range words {
			for r.IntN(2) == 0 {
				out = append(out, noise[r.IntN(len(noise))])
			}
			out = append(out, w)
		}
		out = append(out, noise[r.IntN(len(noise))])
		noisy[i] = strings.Join(out, "  ")
	}

	decoded, err := Decode(noisy, m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, msg) {
		t.Fatalf("noise changed the message")
	}
}

func TestDecodeDuplicateFragment(t *testing.T) {
	m, _, _ := fixtures(t)
	begin := m.Alias(mapping.RoleBegin, 0) + " " + m.DataWord(1)
	first := m.Alias(mapping.RoleFragment, 0) + " 1 " + m.DataWord(2)
	second := m.Alias(mapping.RoleFragment, 3) + " 1 " + m.DataWord(3)
	end := m.Alias(mapping.RoleFragment, 1) + " 2 " + m.DataWord(4) + " " + m.Alias(mapping.RoleEnd, 0)

	_, err := Decode([]string{begin, first, second, end}, m)
	if !errors.Is(err, ErrDuplicateFragment) {
		t.Fatalf("expected ErrDuplicateFragment, got %v", err)
	}

	_, err = NewDecoder(m, WithBestEffort()).Decode([]string{begin, first, second, end})
	if !errors.Is(err, ErrDuplicateFragment) {
		t.Fatalf("best effort: expected ErrDuplicateFragment, got %v", err)
	}
}

func TestDecodeAmbiguousOrder(t *testing.T) {
	m, _, _ := fixtures(t)
	begin := m.Alias(mapping.RoleBegin, 0) + " " + m.DataWord(1)
	end := m.Alias(mapping.RoleFragment, 0) + " 1 " + m.Alias(mapping.RoleEnd, 0)

	cases := map[string]string{
		"data only":             m.DataWord(7) + " " + m.DataWord(8),
		"noise only":            "Nothing To See Here",
		"alias without number":  m.Alias(mapping.RoleFragment, 2) + " " + m.DataWord(7),
		"numbered zero":         m.Alias(mapping.RoleFragment, 2) + " 0 " + m.DataWord(7),
		"begin with a number":   m.Alias(mapping.RoleFragment, 2) + " 3 " + m.Alias(mapping.RoleBegin, 1),
		"empty":                 "",
		"number before marker":  "1 " + m.Alias(mapping.RoleFragment, 2) + " " + m.DataWord(7),
		"alias after data word": m.DataWord(7) + " " + m.Alias(mapping.RoleFragment, 2) + " 1",
	}
	for name, bad := range cases {
		_, err := Decode([]string{begin, bad, end}, m)
		if !errors.Is(err, ErrAmbiguousOrder) {
			t.Fatalf("%s: expected ErrAmbiguousOrder, got %v", name, err)
		}
	}

	tail := m.Alias(mapping.RoleFragment, 0) + " 2 " + m.DataWord(9)
	if _, err := Decode([]string{begin, end, tail}, m); !errors.Is(err, ErrAmbiguousOrder) {
		t.Fatalf("fragment after end: expected ErrAmbiguousOrder, got %v", err)
	}
}

func TestDecodeIncompleteMessage(t *testing.T) {
	m, _, _ := fixtures(t)
	msg := randomBytes(13, 120)
	frags, err := Encode(msg, m, 30)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frags) < 3 {
		t.Fatalf("need at least 3 fragments, got %d", len(frags))
	}

	cases := map[string][]string{
		"nothing":      nil,
		"no begin":     frags[1:],
		"no end":       frags[:len(frags)-1],
		"missing body": append(append([]string(nil), frags[:1]...), frags[2:]...),
	}
	for name, set := range cases {
		if _, err := Decode(set, m); !errors.Is(err, ErrIncompleteMessage) {
			t.Fatalf("%s: expected ErrIncompleteMessage, got %v", name, err)
		}
	}

	partial, err := NewDecoder(m, WithBestEffort()).Decode(frags[:len(frags)-1])
	if err != nil {
		t.Fatalf("best effort: %v", err)
	}
	if !bytes.HasPrefix(msg, partial) || len(partial) == 0 {
		t.Fatalf("best effort: got %d bytes that are not a prefix of the message", len(partial))
	}
}

func TestDecodeUnnumberedEndFragment(t *testing.T) {
	m, _, _ := fixtures(t)
	set := []string{
		m.Alias(mapping.RoleEnd, 2) + " " + m.DataWord(0xbeef),
		m.Alias(mapping.RoleBegin, 1) + " " + m.DataWord(0x0102),
		m.Alias(mapping.RoleFragment, 4) + " 1 " + m.DataWord(0x0304),
	}
	// The end fragment's data follows the end marker and is dropped.
	out, err := Decode(set, m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %x", out)
	}

	set[0] = m.DataWord(0xbeef) + " " + m.Alias(mapping.RoleEnd, 2)
	out, err = Decode(set, m)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 0xbe, 0xef}) {
		t.Fatalf("got %x", out)
	}
}

func TestParseFragmentDropsWordsOutsideMarkers(t *testing.T) {
	m, _, _ := fixtures(t)
	text := m.DataWord(1) + " " + m.Alias(mapping.RoleBegin, 0) + " " + m.DataWord(2) + " " +
		m.Alias(mapping.RoleFragment, 1) + " " + m.Alias(mapping.RoleEnd, 3) + " " + m.DataWord(3)
	f, err := ParseFragment(text, m)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Order != 0 || !f.Begin || !f.End {
		t.Fatalf("unexpected fragment %+v", f)
	}
	if len(f.Codes) != 1 || f.Codes[0] != 2 {
		t.Fatalf("codes: %v", f.Codes)
	}
}

func TestParseFragmentSkipsNoiseBeforeNumber(t *testing.T) {
	m, _, _ := fixtures(t)
	f, err := ParseFragment("Well "+m.Alias(mapping.RoleFragment, 0)+" ,so 12 "+m.DataWord(5), m)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Order != 12 || len(f.Codes) != 1 || f.Codes[0] != 5 {
		t.Fatalf("unexpected fragment %+v", f)
	}
}

func TestMismatchedSeedDoesNotReproduceMessage(t *testing.T) {
	m, _, other := fixtures(t)
	msg := []byte("meet at the usual place")
	frags, err := Encode(msg[:len(msg)-1], m, 20)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewDecoder(other, WithBestEffort()).Decode(frags)
	if err == nil && bytes.Equal(out, msg[:len(msg)-1]) {
		t.Fatalf("a different seed reproduced the message")
	}
}

func TestFramedRoundTrip(t *testing.T) {
	m, _, _ := fixtures(t)
	enc := NewEncoder(m)
	dec := NewDecoder(m)

	for _, c := range []payload.Compression{payload.CompressionNone, payload.CompressionLZ4, payload.CompressionZstd} {
		for _, msg := range [][]byte{nil, []byte("x"), []byte("odd length!"), bytes.Repeat([]byte("caw "), 50)} {
			frags, err := enc.EncodeFramed(msg, c, 60)
			if err != nil {
				t.Fatalf("%s: encode: %v", c, err)
			}
			out, err := dec.DecodeFramed(frags)
			if err != nil {
				t.Fatalf("%s: decode: %v", c, err)
			}
			if !bytes.Equal(out, msg) {
				t.Fatalf("%s: got %q want %q", c, out, msg)
			}
		}
	}
}

func TestConcurrentUseOfSharedMapping(t *testing.T) {
	m, _, _ := fixtures(t)
	enc := NewEncoder(m, WithAliasSource(rand.NewPCG(7, 8)))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			msg := randomBytes(uint64(100+g), 64)
			frags, err := enc.Encode(msg, 24)
			if err != nil {
				t.Errorf("goroutine %d: encode: %v", g, err)
				return
			}
			out, err := Decode(frags, m)
			if err != nil || !bytes.Equal(out, msg) {
				t.Errorf("goroutine %d: decode mismatch: %v", g, err)
			}
		}(g)
	}
	wg.Wait()
}

package dicttest

import (
	"testing"

	"word_armor/internal/dictionary"
)

// Words returns n distinct lowercase words: a, b, ..., z, aa, ab, ...
func Words(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = word(i)
	}
	return words
}

func word(i int) string {
	var buf [8]byte
	pos := len(buf)
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		pos--
		buf[pos] = byte('a' + (n-1)%26)
	}
	return string(buf[pos:])
}

func New(t testing.TB, n int) *dictionary.Dictionary {
	t.Helper()
	d, err := dictionary.New(Words(n))
	if err != nil {
		t.Fatalf("synthetic dictionary: %v", err)
	}
	return d
}

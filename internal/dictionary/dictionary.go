// Package dictionary holds the ordered word list shared by both peers.
// Reordering or editing the list breaks every existing seed/date pairing.
package dictionary

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

var (
	ErrEmpty         = errors.New("dictionary: no words")
	ErrInvalidWord   = errors.New("dictionary: invalid word")
	ErrDuplicateWord = errors.New("dictionary: duplicate word")
)

type Dictionary struct {
	words  []string
	index  map[string]uint32
	digest string
}

// New validates words and builds the reverse index. The slice is copied.
func New(words []string) (*Dictionary, error) {
	if len(words) == 0 {
		return nil, ErrEmpty
	}

	d := &Dictionary{
		words: make([]string, len(words)),
		index: make(map[string]uint32, len(words)),
	}
	hasher := blake3.New()
	for i, w := range words {
		if w == "" || strings.IndexFunc(w, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("%w: index %d: %q", ErrInvalidWord, i, w)
		}
		if prev, ok := d.index[w]; ok {
			return nil, fmt.Errorf("%w: %q at %d and %d", ErrDuplicateWord, w, prev, i)
		}
		d.words[i] = w
		d.index[w] = uint32(i)

		hasher.Write([]byte(w))
		hasher.Write([]byte{'\n'})
	}
	d.digest = hex.EncodeToString(hasher.Sum(nil))
	return d, nil
}

// Load reads one word per line. Surrounding whitespace and blank lines are
// ignored.
func Load(r io.Reader) (*Dictionary, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w := strings.TrimSpace(scanner.Text())
		if w == "" {
			continue
		}
		words = append(words, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dictionary read failed: %w", err)
	}
	return New(words)
}

func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary load failed (%s): %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func (d *Dictionary) Len() int { return len(d.words) }

// Word returns the word at index i; i must be below Len.
func (d *Dictionary) Word(i uint32) string { return d.words[i] }

func (d *Dictionary) Index(word string) (uint32, bool) {
	i, ok := d.index[word]
	return i, ok
}

func (d *Dictionary) Words() []string {
	out := make([]string, len(d.words))
	copy(out, d.words)
	return out
}

// Digest is the hex BLAKE3 hash of the newline-terminated word list.
func (d *Dictionary) Digest() string { return d.digest }

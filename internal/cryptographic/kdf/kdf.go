package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// PermutationInfo separates permutation keys from any other use of the seed.
var PermutationInfo = []byte("word-armor/permutation/v1")

// HKDF fills buffer from HKDF-SHA256(secret, salt, info).
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// PermutationKey derives the 32 bytes of generator state shared by two
// peers holding the same seed on the same calendar day. date must already
// be rendered as YYYY-MM-DD.
func PermutationKey(seed []byte, date string) ([32]byte, error) {
	var key [32]byte
	_, err := HKDF(seed, []byte(date), PermutationInfo, key[:])
	return key, err
}

// Package armor converts byte sequences to fragments of dictionary words and
// back, using a shared mapping.
//
// Wire contract:
//   - a message is begin-alias, one data word per big-endian 16-bit code,
//     end-alias
//   - the first fragment starts with the begin alias and has order 0
//   - every later fragment starts with a fragment alias followed by its
//     order as a base-10 token
//   - any of the five aliases of a role is accepted when decoding
//   - tokens that are not mapped words are ignored, so fragments may be
//     interleaved with cover text
//
// Armoring is a keyed substitution, not encryption. Peers with a different
// seed or date decode garbage without any error.
package armor

// Package simhash computes 64-bit SimHash fingerprints. Harvested comments are
// fingerprinted by rune n-grams so that near-identical texts (an edited
// emoji, a trailing "(dup)" marker) land within a few bits of each other even
// in scripts without word spacing.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// TextShingle is the rune n-gram size used by Text.
const TextShingle = 3

// Fingerprint accumulates FNV-64a hashes of features into a SimHash.
// It returns 0 when there are no features.
func Fingerprint(features []string) uint64 {
	if len(features) == 0 {
		return 0
	}

	var vector [64]int
	for _, f := range features {
		h := fnv.New64a()
		h.Write([]byte(f))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Text fingerprints free text by overlapping rune trigrams. Case and runs of
// whitespace are normalized first, so "Great  Post" and "great post" share a
// fingerprint. Texts shorter than one shingle are hashed whole.
func Text(text string) uint64 {
	runes := normalize(text)
	if len(runes) == 0 {
		return 0
	}
	if len(runes) < TextShingle {
		return Fingerprint([]string{string(runes)})
	}

	grams := make([]string, 0, len(runes)-TextShingle+1)
	for i := 0; i <= len(runes)-TextShingle; i++ {
		grams = append(grams, string(runes[i:i+TextShingle]))
	}
	return Fingerprint(grams)
}

func normalize(text string) []rune {
	var out []rune
	space := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			out = append(out, ' ')
			space = false
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

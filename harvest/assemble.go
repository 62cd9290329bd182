package harvest

import (
	"strings"
	"unicode/utf8"

	"github.com/use-agent/harvest/simhash"
)

// Default assembly thresholds.
const (
	DefaultDedupKeyRunes   = 30
	DefaultMinContentRunes = 3
	DefaultMinOverlapRunes = 12
)

// Assembler collapses duplicate records in a single first-seen-wins pass.
type Assembler struct {
	// KeyRunes is the dedup key length: the first KeyRunes runes of the
	// trimmed content.
	KeyRunes int
	// MinContentRunes drops records whose content is this short or shorter.
	MinContentRunes int
	// MinOverlapRunes is the shortest key that absorbs a longer key it
	// prefixes. Equal keys always collapse.
	MinOverlapRunes int
	// SimilarityThreshold enables a SimHash near-duplicate pass when > 0:
	// records within this Hamming distance of a kept record are dropped.
	SimilarityThreshold int
}

// NewAssembler returns an Assembler with the default thresholds and the
// near-duplicate pass disabled.
func NewAssembler() Assembler {
	return Assembler{
		KeyRunes:        DefaultDedupKeyRunes,
		MinContentRunes: DefaultMinContentRunes,
		MinOverlapRunes: DefaultMinOverlapRunes,
	}
}

// AssembleStats counts what Assemble dropped.
type AssembleStats struct {
	Input          int `json:"input"`
	Short          int `json:"short"`
	Duplicates     int `json:"duplicates"`
	NearDuplicates int `json:"near_duplicates"`
	Output         int `json:"output"`
}

// Assemble returns records in first-seen order with short records and
// duplicates removed. Two records are duplicates when their keys are equal,
// or when the shorter key has at least MinOverlapRunes runes and prefixes the
// other ("Great post! 👍" and "Great post! 👍 (dup)"). A short reply such as
// "哈哈哈哈" does not swallow longer comments that happen to start with it.
func (a Assembler) Assemble(records []Record) ([]Record, AssembleStats) {
	keyRunes := a.KeyRunes
	if keyRunes <= 0 {
		keyRunes = DefaultDedupKeyRunes
	}
	minRunes := a.MinContentRunes
	if minRunes < 0 {
		minRunes = DefaultMinContentRunes
	}
	overlapRunes := a.MinOverlapRunes
	if overlapRunes <= 0 {
		overlapRunes = DefaultMinOverlapRunes
	}
	if overlapRunes > keyRunes {
		overlapRunes = keyRunes
	}

	stats := AssembleStats{Input: len(records)}
	out := make([]Record, 0, len(records))
	keys := newPrefixSet()
	var prints []uint64

	for _, r := range records {
		content := strings.TrimSpace(r.Content)
		if utf8.RuneCountInString(content) <= minRunes {
			stats.Short++
			continue
		}

		key := truncateRunes(content, keyRunes)
		if keys.overlaps(key, overlapRunes) {
			stats.Duplicates++
			continue
		}

		if a.SimilarityThreshold > 0 {
			fp := simhash.Text(content)
			if nearAny(prints, fp, a.SimilarityThreshold) {
				stats.NearDuplicates++
				continue
			}
			prints = append(prints, fp)
		}

		keys.add(key)
		out = append(out, r)
	}

	stats.Output = len(out)
	return out, stats
}

func nearAny(prints []uint64, fp uint64, threshold int) bool {
	for _, p := range prints {
		if simhash.Similar(p, fp, threshold) {
			return true
		}
	}
	return false
}

// prefixSet holds kept keys plus every rune prefix of them, so both prefix
// directions are map lookups.
type prefixSet struct {
	keys     map[string]struct{}
	prefixes map[string]struct{}
}

func newPrefixSet() *prefixSet {
	return &prefixSet{keys: map[string]struct{}{}, prefixes: map[string]struct{}{}}
}

func (p *prefixSet) add(key string) {
	p.keys[key] = struct{}{}
	for i := range key {
		if i > 0 {
			p.prefixes[key[:i]] = struct{}{}
		}
	}
	p.prefixes[key] = struct{}{}
}

// overlaps reports whether key equals a kept key, or whether the shorter of
// key and a kept key has at least minRunes runes and prefixes the other.
func (p *prefixSet) overlaps(key string, minRunes int) bool {
	if _, ok := p.keys[key]; ok {
		return true
	}
	if utf8.RuneCountInString(key) >= minRunes {
		if _, ok := p.prefixes[key]; ok {
			return true
		}
	}
	n := 0
	for i := range key {
		if i == 0 {
			continue
		}
		n++
		if n < minRunes {
			continue
		}
		if _, ok := p.keys[key[:i]]; ok {
			return true
		}
	}
	return false
}

package harvest

import (
	"context"
	"strings"
)

// DefaultSelectors are the structural comment-container patterns, most
// specific naming conventions first.
var DefaultSelectors = []string{
	`[class*="comment"]`,
	`[class*="Comment"]`,
	`[data-testid*="comment"]`,
	`.comment-item`,
	`.comment-list .comment`,
	`[class*="note-comment"]`,
	`[class*="NoteComment"]`,
	`[class*="feed-comment"]`,
	`[class*="user-comment"]`,
	`[class*="interaction"]`,
}

// Content-signature defaults for the fallback tier.
var (
	DefaultSignatureTags = `div, section, article, span, p`

	DefaultSignatureClassKeywords = []string{"comment"}

	DefaultSignatureTextKeywords = []string{
		"回复", "点赞", "❤️", "👍",
		"分钟前", "小时前", "天前", "刚刚",
		"reply", "minutes ago", "hours ago", "days ago", "just now",
	}
)

// Strategy locates candidate record containers in a DOM.
type Strategy interface {
	Name() string
	// Tier is 1 for structural selectors and 2 for content-signature scans.
	Tier() int
	Candidates(ctx context.Context, dom DOM) ([]CandidateNode, error)
}

// SelectorStrategy adopts every match of one CSS selector.
type SelectorStrategy struct {
	Selector string
}

func (s SelectorStrategy) Name() string { return s.Selector }

func (s SelectorStrategy) Tier() int { return 1 }

func (s SelectorStrategy) Candidates(ctx context.Context, dom DOM) ([]CandidateNode, error) {
	return dom.QueryAll(ctx, s.Selector)
}

// SignatureStrategy scans generic container tags and keeps elements of a
// plausible comment length whose class or text carries a comment signature.
type SignatureStrategy struct {
	Tags          string
	MinText       int
	MaxText       int
	ClassKeywords []string
	TextKeywords  []string
}

// NewSignatureStrategy returns the default content-signature fallback.
func NewSignatureStrategy() SignatureStrategy {
	return SignatureStrategy{
		Tags:          DefaultSignatureTags,
		MinText:       5,
		MaxText:       2000,
		ClassKeywords: DefaultSignatureClassKeywords,
		TextKeywords:  DefaultSignatureTextKeywords,
	}
}

func (s SignatureStrategy) Name() string { return "text-signature" }

func (s SignatureStrategy) Tier() int { return 2 }

func (s SignatureStrategy) Candidates(ctx context.Context, dom DOM) ([]CandidateNode, error) {
	nodes, err := dom.QueryAll(ctx, s.Tags)
	if err != nil {
		return nil, err
	}
	var out []CandidateNode
	for _, n := range nodes {
		if n.TextLength <= s.MinText || n.TextLength >= s.MaxText {
			continue
		}
		if s.matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s SignatureStrategy) matches(n CandidateNode) bool {
	class := strings.ToLower(n.Class)
	for _, kw := range s.ClassKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	text := strings.ToLower(n.Text)
	for _, kw := range s.TextKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DefaultCascade is every DefaultSelectors entry followed by the signature
// fallback.
func DefaultCascade() []Strategy {
	out := make([]Strategy, 0, len(DefaultSelectors)+1)
	for _, sel := range DefaultSelectors {
		out = append(out, SelectorStrategy{Selector: sel})
	}
	return append(out, NewSignatureStrategy())
}

// Sample is a short preview of a candidate for diagnostics.
type Sample struct {
	Tag        string `json:"tag"`
	Class      string `json:"class"`
	TextLength int    `json:"text_length"`
	Preview    string `json:"preview"`
}

// Attempt records one strategy tried by the cascade.
type Attempt struct {
	Strategy string   `json:"strategy"`
	Tier     int      `json:"tier"`
	Found    int      `json:"found"`
	Samples  []Sample `json:"samples,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// runCascade tries strategies in order and adopts the first one that yields
// at least one candidate. Failing strategies are recorded and skipped.
func runCascade(ctx context.Context, dom DOM, strategies []Strategy) (Strategy, []CandidateNode, []Attempt) {
	var attempts []Attempt
	for _, st := range strategies {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Strategy: st.Name(), Tier: st.Tier(), Error: ctx.Err().Error()})
			return nil, nil, attempts
		}
		nodes, err := st.Candidates(ctx, dom)
		a := Attempt{Strategy: st.Name(), Tier: st.Tier(), Found: len(nodes)}
		if err != nil {
			a.Error = err.Error()
			attempts = append(attempts, a)
			continue
		}
		a.Samples = samples(nodes, sampleCount(st.Tier()))
		attempts = append(attempts, a)
		if len(nodes) > 0 {
			return st, nodes, attempts
		}
	}
	return nil, nil, attempts
}

func sampleCount(tier int) int {
	if tier > 1 {
		return 5
	}
	return 2
}

func samples(nodes []CandidateNode, n int) []Sample {
	if len(nodes) < n {
		n = len(nodes)
	}
	out := make([]Sample, 0, n)
	for _, node := range nodes[:n] {
		out = append(out, Sample{
			Tag:        node.Tag,
			Class:      node.Class,
			TextLength: node.TextLength,
			Preview:    truncateRunes(node.Text, 50),
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package harvest

import (
	"context"
	"fmt"
)

// Keywords and container patterns counted by AnalyzeStructure.
var (
	AnalyzeKeywords   = []string{"评论", "comment", "回复", "reply", "点赞", "like"}
	AnalyzeContainers = []string{
		`[class*="comment"]`, `[id*="comment"]`,
		`[class*="Comment"]`, `[id*="Comment"]`,
		`section`, `div[class*="list"]`,
		`[data-testid*="comment"]`,
		`[class*="interaction"]`, `[class*="note-detail"]`,
	}
)

// ElementSample previews one element in a structure report.
type ElementSample struct {
	Tag        string `json:"tag"`
	Class      string `json:"class"`
	Text       string `json:"text,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
}

// KeywordCount is the number of elements whose text mentions Keyword.
type KeywordCount struct {
	Keyword string          `json:"keyword"`
	Count   int             `json:"count"`
	Samples []ElementSample `json:"samples,omitempty"`
}

// ContainerCount is the number of elements matching Selector.
type ContainerCount struct {
	Selector string          `json:"selector"`
	Count    int             `json:"count"`
	Samples  []ElementSample `json:"samples,omitempty"`
}

// Structure is a debugging overview of the page used to tune selectors.
type Structure struct {
	Title         string           `json:"title"`
	ReadyState    string           `json:"ready_state"`
	TotalElements int              `json:"total_elements"`
	TextLength    int              `json:"text_length"`
	Preview       string           `json:"preview,omitempty"`
	Keywords      []KeywordCount   `json:"keywords,omitempty"`
	Containers    []ContainerCount `json:"containers,omitempty"`
}

// AnalyzeStructure counts comment-related keywords and containers on the
// current page.
func AnalyzeStructure(ctx context.Context, s Session) (*Structure, error) {
	res, err := s.Eval(ctx, scriptAnalyze, AnalyzeKeywords, AnalyzeContainers)
	if err != nil {
		return nil, fmt.Errorf("analyze structure: %w", err)
	}

	st := &Structure{
		Title:         res.Get("title").Str(),
		ReadyState:    res.Get("readyState").Str(),
		TotalElements: res.Get("totalElements").Int(),
		TextLength:    res.Get("textLength").Int(),
		Preview:       truncateRunes(res.Get("preview").Str(), 200),
	}
	for _, k := range res.Get("keywords").Arr() {
		kc := KeywordCount{Keyword: k.Get("keyword").Str(), Count: k.Get("count").Int()}
		for _, sm := range k.Get("samples").Arr() {
			kc.Samples = append(kc.Samples, ElementSample{
				Tag:   sm.Get("tag").Str(),
				Class: sm.Get("class").Str(),
				Text:  sm.Get("text").Str(),
			})
		}
		st.Keywords = append(st.Keywords, kc)
	}
	for _, c := range res.Get("containers").Arr() {
		cc := ContainerCount{Selector: c.Get("selector").Str(), Count: c.Get("count").Int()}
		for _, sm := range c.Get("samples").Arr() {
			cc.Samples = append(cc.Samples, ElementSample{
				Tag:        sm.Get("tag").Str(),
				Class:      sm.Get("class").Str(),
				TextLength: sm.Get("textLength").Int(),
			})
		}
		st.Containers = append(st.Containers, cc)
	}
	return st, nil
}

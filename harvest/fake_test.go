package harvest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/ysmood/gson"
)

var errBoom = errors.New("boom")

// fakeSession is a scripted Session. Height reads walk through heights and
// stick at the last value; DOM queries run against html with goquery,
// mimicking the page-side query script.
type fakeSession struct {
	mu sync.Mutex

	heights     []int
	heightReads int
	// heightErrAt fails the height read with this zero-based index; -1 never.
	heightErrAt int
	scrollErr   error

	url     string
	urlErr  error
	body    string
	bodyErr error

	html      string
	htmlErr   error
	doc       *goquery.Document
	refs      map[string]*goquery.Selection
	refSeq    int
	queryErr  error
	images    []string
	imagesErr error
	analysis  map[string]any

	visible map[string]*fakeElement
	findErr map[string]error

	scrolls int
	waits   []time.Duration
	finds   []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		heightErrAt: -1,
		url:         "https://www.xiaohongshu.com/explore/64f1a2b3c4d5e6f7a8b9c0d1",
		visible:     map[string]*fakeElement{},
		findErr:     map[string]error{},
	}
}

func (f *fakeSession) withHTML(html string) *fakeSession {
	f.html = html
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	f.doc = doc
	f.refs = map[string]*goquery.Selection{}
	f.body = doc.Find("body").Text()
	return f
}

func (f *fakeSession) show(loc Locator) *fakeElement {
	el := &fakeElement{name: loc.String()}
	f.visible[loc.String()] = el
	return el
}

func (f *fakeSession) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.JSON{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch js {
	case scriptHeight:
		i := f.heightReads
		f.heightReads++
		if f.heightErrAt >= 0 && i >= f.heightErrAt {
			return gson.JSON{}, errBoom
		}
		if len(f.heights) == 0 {
			return gson.New(float64(0)), nil
		}
		if i >= len(f.heights) {
			i = len(f.heights) - 1
		}
		return gson.New(float64(f.heights[i])), nil
	case scriptScrollBottom:
		f.scrolls++
		if f.scrollErr != nil {
			return gson.JSON{}, f.scrollErr
		}
		return gson.New(true), nil
	case scriptBodyText:
		if f.bodyErr != nil {
			return gson.JSON{}, f.bodyErr
		}
		return gson.New(f.body), nil
	case scriptQueryAll:
		return f.queryAll(args)
	case scriptCollectImages:
		if f.imagesErr != nil {
			return gson.JSON{}, f.imagesErr
		}
		out := make([]any, 0, len(f.images))
		for _, u := range f.images {
			out = append(out, u)
		}
		return gson.New(out), nil
	case scriptAnalyze:
		if f.analysis == nil {
			return gson.JSON{}, errBoom
		}
		return gson.New(f.analysis), nil
	}
	return gson.JSON{}, fmt.Errorf("fake: unexpected script %.40q", js)
}

func (f *fakeSession) queryAll(args []any) (gson.JSON, error) {
	if f.queryErr != nil {
		return gson.JSON{}, f.queryErr
	}
	if f.doc == nil {
		return gson.New([]any{}), nil
	}
	selector, _ := args[0].(string)
	root, _ := args[1].(string)
	limit, _ := args[2].(int)

	m, err := cascadia.Compile(selector)
	if err != nil {
		return gson.JSON{}, fmt.Errorf("SyntaxError: %w", err)
	}
	scope := f.doc.Selection
	if root != "" {
		sel, ok := f.refs[root]
		if !ok {
			return gson.New([]any{}), nil
		}
		scope = sel
	}

	out := []any{}
	scope.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("data-hv-ref")
		if !ok {
			f.refSeq++
			ref = strconv.Itoa(f.refSeq)
			s.SetAttr("data-hv-ref", ref)
			f.refs[ref] = s
		}
		text := s.Text()
		full := len([]rune(text))
		if limit > 0 && full > limit {
			text = string([]rune(text)[:limit])
		}
		out = append(out, map[string]any{
			"ref":        ref,
			"tag":        goquery.NodeName(s),
			"class":      s.AttrOr("class", ""),
			"id":         s.AttrOr("id", ""),
			"text":       text,
			"textLength": float64(full),
			"datetime":   s.AttrOr("datetime", ""),
		})
	})
	return gson.New(out), nil
}

func (f *fakeSession) FindVisible(ctx context.Context, loc Locator) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, loc.String())
	if err, ok := f.findErr[loc.String()]; ok {
		return nil, err
	}
	if el, ok := f.visible[loc.String()]; ok {
		return el, nil
	}
	return nil, nil
}

func (f *fakeSession) Wait(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeSession) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.url, f.urlErr
}

func (f *fakeSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.html, f.htmlErr
}

type fakeElement struct {
	name   string
	err    error
	clicks int
}

func (e *fakeElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.clicks++
	return e.err
}

// stubDOM returns fixed candidates for one selector and records queries.
type stubDOM struct {
	nodes   map[string][]CandidateNode
	errs    map[string]error
	queried []string
}

func (d *stubDOM) QueryAll(_ context.Context, selector string) ([]CandidateNode, error) {
	d.queried = append(d.queried, selector)
	if err, ok := d.errs[selector]; ok {
		return nil, err
	}
	return d.nodes[selector], nil
}

func (d *stubDOM) Children(context.Context, CandidateNode, string) ([]CandidateNode, error) {
	return nil, nil
}

func textNodes(texts ...string) []CandidateNode {
	out := make([]CandidateNode, 0, len(texts))
	for _, t := range texts {
		out = append(out, CandidateNode{Tag: "div", Class: "comment-item", Text: t, TextLength: len([]rune(t))})
	}
	return out
}

package harvest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// CandidateNode is an element considered as a possible record container.
// Ref is an opaque handle owned by the DOM that produced the node.
type CandidateNode struct {
	Ref        any
	Tag        string
	Class      string
	ID         string
	Text       string
	TextLength int
	Datetime   string
}

// DOM answers selector queries against a page. An invalid selector is an
// error, never a panic.
type DOM interface {
	QueryAll(ctx context.Context, selector string) ([]CandidateNode, error)
	Children(ctx context.Context, node CandidateNode, selector string) ([]CandidateNode, error)
}

// DefaultLiveTextLimit caps the text shipped back per element by LiveDOM.
const DefaultLiveTextLimit = 20000

// LiveDOM queries the live page through Session.Eval.
type LiveDOM struct {
	session   Session
	textLimit int
}

// NewLiveDOM returns a LiveDOM over s.
func NewLiveDOM(s Session) *LiveDOM {
	return &LiveDOM{session: s, textLimit: DefaultLiveTextLimit}
}

// QueryAll implements DOM.
func (d *LiveDOM) QueryAll(ctx context.Context, selector string) ([]CandidateNode, error) {
	return d.query(ctx, selector, "")
}

// Children implements DOM.
func (d *LiveDOM) Children(ctx context.Context, node CandidateNode, selector string) ([]CandidateNode, error) {
	ref, ok := node.Ref.(string)
	if !ok || ref == "" {
		return nil, fmt.Errorf("live dom: node has no page reference")
	}
	return d.query(ctx, selector, ref)
}

func (d *LiveDOM) query(ctx context.Context, selector, root string) ([]CandidateNode, error) {
	res, err := d.session.Eval(ctx, scriptQueryAll, selector, root, d.textLimit)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	items := res.Arr()
	nodes := make([]CandidateNode, 0, len(items))
	for _, it := range items {
		nodes = append(nodes, CandidateNode{
			Ref:        it.Get("ref").Str(),
			Tag:        it.Get("tag").Str(),
			Class:      it.Get("class").Str(),
			ID:         it.Get("id").Str(),
			Text:       it.Get("text").Str(),
			TextLength: it.Get("textLength").Int(),
			Datetime:   it.Get("datetime").Str(),
		})
	}
	return nodes, nil
}

// SnapshotDOM queries a static HTML snapshot of the page.
type SnapshotDOM struct {
	doc *goquery.Document
}

// NewSnapshotDOM parses html into a SnapshotDOM.
func NewSnapshotDOM(html string) (*SnapshotDOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &SnapshotDOM{doc: doc}, nil
}

// SnapshotFromSession serializes the current page and parses it.
func SnapshotFromSession(ctx context.Context, s Session) (*SnapshotDOM, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot html: %w", err)
	}
	return NewSnapshotDOM(html)
}

// Document exposes the parsed snapshot.
func (d *SnapshotDOM) Document() *goquery.Document { return d.doc }

// QueryAll implements DOM.
func (d *SnapshotDOM) QueryAll(_ context.Context, selector string) ([]CandidateNode, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return toNodes(d.doc.FindMatcher(m)), nil
}

// Children implements DOM.
func (d *SnapshotDOM) Children(_ context.Context, node CandidateNode, selector string) ([]CandidateNode, error) {
	sel, ok := node.Ref.(*goquery.Selection)
	if !ok || sel == nil {
		return nil, fmt.Errorf("snapshot dom: node has no selection")
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return toNodes(sel.FindMatcher(m)), nil
}

func toNodes(sel *goquery.Selection) []CandidateNode {
	nodes := make([]CandidateNode, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		nodes = append(nodes, CandidateNode{
			Ref:        s,
			Tag:        goquery.NodeName(s),
			Class:      s.AttrOr("class", ""),
			ID:         s.AttrOr("id", ""),
			Text:       text,
			TextLength: utf8.RuneCountInString(text),
			Datetime:   s.AttrOr("datetime", ""),
		})
	})
	return nodes
}

package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sub-element patterns queried inside each candidate.
const (
	DefaultAuthorSelector = `[class*="user"], [class*="name"], [class*="author"], [class*="nick"]`
	DefaultTimeSelector   = `[class*="time"], time, [datetime], [class*="date"]`
	DefaultLikeSelector   = `[class*="like"], [class*="heart"], [class*="thumb"]`
)

// UI-chrome labels that are never comments. Exact entries must equal the
// whole trimmed text; contains entries may appear anywhere. Both compare
// case-insensitively.
var (
	DefaultExactDenylist    = []string{"评论", "点赞", "回复", "comment", "comments", "like", "reply"}
	DefaultContainsDenylist = []string{"展开更多", "查看全部", "登录", "注册", "log in", "login", "sign up", "view all comments", "show more comments"}
)

var integerToken = regexp.MustCompile(`\d+`)

// Record is one extracted comment.
type Record struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Timestamp   string    `json:"timestamp"`
	LikeCount   int       `json:"like_count"`
	SourceTag   string    `json:"source_tag"`
	SourceClass string    `json:"source_class"`
	SourceID    string    `json:"source_id,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ExtractReport is the outcome of one extraction pass.
type ExtractReport struct {
	Records    []Record  `json:"-"`
	Strategy   string    `json:"strategy,omitempty"`
	Tier       int       `json:"tier"`
	Attempts   []Attempt `json:"attempts"`
	Candidates int       `json:"candidates"`
	Rejected   int       `json:"rejected"`
	Errors     []string  `json:"errors,omitempty"`
}

// Extractor turns the final DOM into raw, not yet deduplicated records.
type Extractor struct {
	Strategies       []Strategy
	AuthorSelector   string
	TimeSelector     string
	LikeSelector     string
	ExactDenylist    []string
	ContainsDenylist []string
	// MinRunes drops candidates whose trimmed text is shorter.
	MinRunes int
	NewID    func() string
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewExtractor returns an Extractor with the default cascade and patterns.
func NewExtractor() *Extractor {
	return &Extractor{
		Strategies:       DefaultCascade(),
		AuthorSelector:   DefaultAuthorSelector,
		TimeSelector:     DefaultTimeSelector,
		LikeSelector:     DefaultLikeSelector,
		ExactDenylist:    DefaultExactDenylist,
		ContainsDenylist: DefaultContainsDenylist,
		MinRunes:         2,
		NewID:            uuid.NewString,
		Now:              time.Now,
	}
}

// Extract runs the cascade once and parses every adopted candidate. It
// never fails: problems surface in the report and shrink the record list.
func (e *Extractor) Extract(ctx context.Context, dom DOM) ExtractReport {
	log := loggerOr(e.Logger)

	st, nodes, attempts := runCascade(ctx, dom, e.Strategies)
	rep := ExtractReport{Attempts: attempts, Candidates: len(nodes)}
	for _, a := range attempts {
		if a.Error != "" {
			rep.Errors = append(rep.Errors, fmt.Sprintf("strategy %s: %s", a.Strategy, a.Error))
		}
	}
	if st == nil {
		log.Debug("no strategy matched", "attempts", len(attempts))
		return rep
	}
	rep.Strategy = st.Name()
	rep.Tier = st.Tier()

	for i, n := range nodes {
		rec, ok, errs := e.parse(ctx, dom, n)
		for _, err := range errs {
			rep.Errors = append(rep.Errors, fmt.Sprintf("candidate %d: %v", i, err))
		}
		if !ok {
			rep.Rejected++
			continue
		}
		rep.Records = append(rep.Records, rec)
	}

	log.Debug("extraction finished",
		"strategy", rep.Strategy,
		"tier", rep.Tier,
		"candidates", rep.Candidates,
		"records", len(rep.Records),
	)
	return rep
}

// parse validates one candidate and fills in its sub-fields. Missing
// sub-elements leave empty defaults; lookup errors are returned alongside
// the record rather than rejecting it.
func (e *Extractor) parse(ctx context.Context, dom DOM, n CandidateNode) (Record, bool, []error) {
	content := strings.TrimSpace(n.Text)
	if !e.acceptable(content) {
		return Record{}, false, nil
	}

	rec := Record{
		ID:          e.newID(),
		Content:     content,
		SourceTag:   n.Tag,
		SourceClass: n.Class,
		SourceID:    n.ID,
		ExtractedAt: e.now(),
	}

	var errs []error
	if e.AuthorSelector != "" {
		subs, err := dom.Children(ctx, n, e.AuthorSelector)
		if err != nil {
			errs = append(errs, fmt.Errorf("author: %w", err))
		} else if len(subs) > 0 {
			rec.Author = strings.TrimSpace(subs[0].Text)
		}
	}
	if e.TimeSelector != "" {
		subs, err := dom.Children(ctx, n, e.TimeSelector)
		if err != nil {
			errs = append(errs, fmt.Errorf("timestamp: %w", err))
		} else if len(subs) > 0 {
			rec.Timestamp = strings.TrimSpace(subs[0].Text)
			if rec.Timestamp == "" {
				rec.Timestamp = subs[0].Datetime
			}
		}
	}
	if e.LikeSelector != "" {
		subs, err := dom.Children(ctx, n, e.LikeSelector)
		if err != nil {
			errs = append(errs, fmt.Errorf("likes: %w", err))
		} else {
			rec.LikeCount = parseLikes(subs)
		}
	}
	return rec, true, errs
}

func (e *Extractor) acceptable(content string) bool {
	if utf8.RuneCountInString(content) < e.MinRunes {
		return false
	}
	lower := strings.ToLower(content)
	for _, d := range e.ExactDenylist {
		if lower == strings.ToLower(d) {
			return false
		}
	}
	for _, d := range e.ContainsDenylist {
		if strings.Contains(lower, strings.ToLower(d)) {
			return false
		}
	}
	return true
}

// parseLikes returns the first integer token found across the like
// indicators, or 0.
func parseLikes(subs []CandidateNode) int {
	for _, s := range subs {
		tok := integerToken.FindString(strings.TrimSpace(s.Text))
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		return n
	}
	return 0
}

func (e *Extractor) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

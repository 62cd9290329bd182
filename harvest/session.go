// Package harvest drives an already-navigated page until its lazily loaded
// comment feed stops growing, then locates, parses, and deduplicates the
// comment records in the final DOM.
//
// Everything here talks to the page through the narrow Session interface, so
// the state machine and the extraction heuristics run the same way against a
// rod tab, a scripted fake, or a static HTML snapshot.
package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/ysmood/gson"
)

// Session is the browsing capability the harvester needs. Implementations
// are used strictly sequentially by one harvest run.
type Session interface {
	// Eval runs a JavaScript function expression in the page with args and
	// returns its JSON-serializable result.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// FindVisible returns the first visible element matching loc, or
	// (nil, nil) when nothing visible matches.
	FindVisible(ctx context.Context, loc Locator) (Element, error)

	// Wait blocks for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error

	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)

	// HTML returns the serialized current DOM.
	HTML(ctx context.Context) (string, error)
}

// Element is a clickable page element.
type Element interface {
	Click(ctx context.Context) error
}

// Locator selects a page element either by CSS selector or by the visible
// text it contains. Exactly one of the fields is set.
type Locator struct {
	Selector string
	Text     string
}

// ByText locates the innermost visible element whose text contains s.
func ByText(s string) Locator { return Locator{Text: s} }

// BySelector locates the first visible element matching a CSS selector.
func BySelector(s string) Locator { return Locator{Selector: s} }

func (l Locator) String() string {
	if l.Text != "" {
		return fmt.Sprintf("text=%s", l.Text)
	}
	return l.Selector
}

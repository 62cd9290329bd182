package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/harvest"
	"github.com/ysmood/gson"
)

// pageSession adapts a navigated rod page to harvest.Session. Every call
// binds ctx to the page so the harvest deadline reaches each CDP round trip.
type pageSession struct {
	page *rod.Page
}

func newPageSession(page *rod.Page) *pageSession {
	return &pageSession{page: page}
}

func (s *pageSession) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (s *pageSession) FindVisible(ctx context.Context, loc harvest.Locator) (harvest.Element, error) {
	p := s.page.Context(ctx)

	selector := loc.Selector
	if loc.Text != "" {
		res, err := p.Eval(harvest.MarkByTextScript, loc.Text)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", loc, err)
		}
		marker := res.Value.Str()
		if marker == "" {
			return nil, nil
		}
		selector = fmt.Sprintf(`[%s="%s"]`, harvest.TargetAttr, marker)
	}

	// Elements does not wait for a match, unlike Element.
	els, err := p.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil {
			continue
		}
		if visible {
			return &elementHandle{el: el}, nil
		}
	}
	return nil, nil
}

func (s *pageSession) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pageSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *pageSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// elementHandle is a visible element resolved by FindVisible.
type elementHandle struct {
	el *rod.Element
}

func (e *elementHandle) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

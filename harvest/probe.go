package harvest

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultLoginIndicators are controls that only render for anonymous visitors.
var DefaultLoginIndicators = []Locator{
	ByText("登录"),
	ByText("注册"),
	ByText("立即登录"),
	BySelector(`[data-testid*='login']`),
	BySelector(`[class*='login']`),
	ByText("Log in"),
	ByText("Sign in"),
}

// DefaultLoginURLKeywords mark the current URL as a login wall.
var DefaultLoginURLKeywords = []string{"login", "signin", "register"}

// DefaultLoginPhrases mark the page body as asking the visitor to log in.
// English phrases are matched case-insensitively.
var DefaultLoginPhrases = []string{"请登录", "登录", "注册", "please log in", "log in to", "sign in to"}

// LoginSignals are the three independent login-wall signals.
type LoginSignals struct {
	HasLoginAffordance bool `json:"has_login_affordance"`
	IsLoginURL         bool `json:"is_login_url"`
	PageMentionsLogin  bool `json:"page_mentions_login"`
}

// Any reports whether at least one signal fired.
func (s LoginSignals) Any() bool {
	return s.HasLoginAffordance || s.IsLoginURL || s.PageMentionsLogin
}

// LoginState is the advisory result of a login probe.
type LoginState struct {
	Authenticated bool         `json:"authenticated"`
	Signals       LoginSignals `json:"signals"`
	URL           string       `json:"url,omitempty"`
	Indicator     string       `json:"indicator,omitempty"`
	Errors        []string     `json:"errors,omitempty"`
}

// Prober classifies a session as logged in or not. It never blocks the
// harvest: callers log or return the state and carry on.
type Prober struct {
	Settle      time.Duration
	Indicators  []Locator
	URLKeywords []string
	Phrases     []string
	Logger      *slog.Logger
}

// NewProber returns a Prober with the default indicator lists.
func NewProber(settle time.Duration) *Prober {
	return &Prober{
		Settle:      settle,
		Indicators:  DefaultLoginIndicators,
		URLKeywords: DefaultLoginURLKeywords,
		Phrases:     DefaultLoginPhrases,
	}
}

// Probe waits for the settle interval and evaluates the three signals.
// Authenticated is true only when none fires; any failure reading the URL or
// page text, or every indicator lookup failing, also yields
// Authenticated=false with the errors recorded.
func (p *Prober) Probe(ctx context.Context, s Session) LoginState {
	log := loggerOr(p.Logger)
	var st LoginState

	fail := func(step string, err error) LoginState {
		st.Authenticated = false
		st.Errors = append(st.Errors, step+": "+err.Error())
		log.Debug("login probe failed", "step", step, "error", err)
		return st
	}

	if p.Settle > 0 {
		if err := s.Wait(ctx, p.Settle); err != nil {
			return fail("settle", err)
		}
	}

	lookupFailures := 0
	for _, loc := range p.Indicators {
		el, err := s.FindVisible(ctx, loc)
		if err != nil {
			lookupFailures++
			st.Errors = append(st.Errors, "indicator "+loc.String()+": "+err.Error())
			continue
		}
		if el != nil {
			st.Signals.HasLoginAffordance = true
			st.Indicator = loc.String()
			break
		}
	}

	u, err := s.URL(ctx)
	if err != nil {
		return fail("url", err)
	}
	st.URL = u
	lowerURL := strings.ToLower(u)
	for _, kw := range p.URLKeywords {
		if strings.Contains(lowerURL, kw) {
			st.Signals.IsLoginURL = true
			break
		}
	}

	body, err := s.Eval(ctx, scriptBodyText)
	if err != nil {
		return fail("body text", err)
	}
	text := body.Str()
	lowerText := strings.ToLower(text)
	for _, phrase := range p.Phrases {
		if strings.Contains(text, phrase) || strings.Contains(lowerText, phrase) {
			st.Signals.PageMentionsLogin = true
			break
		}
	}

	// A page where no indicator could be checked at all proves nothing.
	blind := len(p.Indicators) > 0 && lookupFailures == len(p.Indicators)
	st.Authenticated = !st.Signals.Any() && !blind
	log.Debug("login probe finished",
		"authenticated", st.Authenticated,
		"loginAffordance", st.Signals.HasLoginAffordance,
		"loginURL", st.Signals.IsLoginURL,
		"mentionsLogin", st.Signals.PageMentionsLogin,
	)
	return st
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

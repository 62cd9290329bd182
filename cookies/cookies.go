// Package cookies turns raw cookie material (a browser "Cookie:" header
// string or an exported cookie file) into uniform session cookies that can be
// injected into a browsing context before navigation.
package cookies

import (
	"os"
	"strings"
	"time"
)

// SameSite is the cookie SameSite attribute.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// SessionCookie is one authentication cookie, fully populated with defaults.
type SessionCookie struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	HTTPOnly  bool      `json:"httpOnly"`
	Secure    bool      `json:"secure"`
	SameSite  SameSite  `json:"sameSite"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DefaultHTTPOnlyNames are the cookie names marked HttpOnly when parsed from
// a header string, which carries no attributes of its own.
var DefaultHTTPOnlyNames = []string{"web_session", "a1", "websectiga"}

// Options controls the defaults applied to parsed cookies.
type Options struct {
	// DefaultDomain is used when a record carries no domain.
	DefaultDomain string

	// DefaultTTL sets ExpiresAt = Now()+DefaultTTL when a record has no expiry.
	DefaultTTL time.Duration

	// HTTPOnlyNames overrides DefaultHTTPOnlyNames for header strings.
	HTTPOnlyNames []string

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultDomain == "" {
		o.DefaultDomain = ".xiaohongshu.com"
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 24 * time.Hour
	}
	if o.HTTPOnlyNames == nil {
		o.HTTPOnlyNames = DefaultHTTPOnlyNames
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Input is the raw authentication material. Raw takes precedence over File.
type Input struct {
	Raw  string
	File string
}

// Prepare parses whichever input is present.
func Prepare(in Input, opts Options) ([]SessionCookie, error) {
	switch {
	case strings.TrimSpace(in.Raw) != "":
		return ParseString(in.Raw, opts)
	case in.File != "":
		return LoadFile(in.File, opts)
	default:
		return nil, &ParseError{Reason: ReasonEmptyInput, Index: -1}
	}
}

// ParseString splits a "name=value; name2=value2" header string. Segments
// without '=' or with an empty name are ignored; values keep everything after
// the first '='.
func ParseString(raw string, opts Options) ([]SessionCookie, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Reason: ReasonEmptyInput, Index: -1}
	}
	opts = opts.withDefaults()

	httpOnly := make(map[string]struct{}, len(opts.HTTPOnlyNames))
	for _, n := range opts.HTTPOnlyNames {
		httpOnly[n] = struct{}{}
	}
	expires := opts.Now().Add(opts.DefaultTTL)

	var out []SessionCookie
	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		_, ho := httpOnly[name]
		out = append(out, SessionCookie{
			Name:      name,
			Value:     strings.TrimSpace(value),
			Domain:    opts.DefaultDomain,
			Path:      "/",
			HTTPOnly:  ho,
			Secure:    true,
			SameSite:  SameSiteLax,
			ExpiresAt: expires,
		})
	}
	if len(out) == 0 {
		return nil, &ParseError{Reason: ReasonNoCookies, Index: -1}
	}
	return out, nil
}

// LoadFile reads and parses a cookie file.
func LoadFile(path string, opts Options) ([]SessionCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadable, Index: -1, Err: err}
	}
	return ParseJSON(data, opts)
}

// Preview shortens a cookie value for logging.
func Preview(value string) string {
	r := []rune(value)
	if len(r) <= 20 {
		return value
	}
	return string(r[:20]) + "..."
}

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/harvest/cookies"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
	"golang.org/x/net/html"
	xproxy "golang.org/x/net/proxy"
)

// preflightBodyLimit caps how much of the server HTML is read.
const preflightBodyLimit = 5 * 1024 * 1024

// preflighter fetches the target over plain HTTP with the session cookies
// and a Chrome TLS fingerprint (utls), to tell an expired cookie jar apart
// from a page that simply has no comments.
type preflighter struct {
	defaultProxy string
	userAgent    string
	locale       string

	// transport builds the round tripper for one fetch; tests swap it.
	transport func(proxy string) http.RoundTripper
}

func newPreflighter(defaultProxy, userAgent, locale string) *preflighter {
	return &preflighter{
		defaultProxy: defaultProxy,
		userAgent:    userAgent,
		locale:       locale,
		transport:    chromeTransport,
	}
}

// preflightResult carries the advisory info plus the server markup
// fingerprint, compared against the rendered DOM once the tab has loaded.
type preflightResult struct {
	Info   models.PreflightInfo
	Markup uint64
}

// check never fails: transport errors land in Info.Error.
func (f *preflighter) check(ctx context.Context, targetURL, proxyOverride string, jar []cookies.SessionCookie) (res preflightResult) {
	start := time.Now()
	res.Info.MarkupDistance = -1
	defer func() { res.Info.DurationMs = time.Since(start).Milliseconds() }()

	proxy := proxyOverride
	if proxy == "" {
		proxy = f.defaultProxy
	}

	client := &http.Client{Transport: f.transport(proxy)}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		res.Info.Error = fmt.Sprintf("preflight: build request: %v", err)
		return res
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.locale)
	req.Header.Set("Cache-Control", "no-cache")
	if h := cookieHeader(jar); h != "" {
		req.Header.Set("Cookie", h)
	}

	resp, err := client.Do(req)
	if err != nil {
		res.Info.Error = fmt.Sprintf("preflight: request failed: %v", err)
		return res
	}
	defer resp.Body.Close()

	res.Info.StatusCode = resp.StatusCode
	res.Info.FinalURL = resp.Request.URL.String()
	res.Info.LoginRedirect = looksLikeLogin(res.Info.FinalURL)

	body, err := io.ReadAll(io.LimitReader(resp.Body, preflightBodyLimit))
	if err != nil {
		res.Info.Error = fmt.Sprintf("preflight: read body: %v", err)
		return res
	}
	res.Info.Title = extractTitle(body)
	res.Markup = simhash.Markup(string(body))
	return res
}

// cookieHeader renders the jar as a Cookie request header.
func cookieHeader(jar []cookies.SessionCookie) string {
	parts := make([]string, 0, len(jar))
	for _, c := range jar {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func looksLikeLogin(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, kw := range harvest.DefaultLoginURLKeywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	return false
}

// chromeTransport routes TLS through a Chrome ClientHello. HTTP(S) proxies
// go through the transport's CONNECT handling; SOCKS5 proxies are dialed by
// proxyDialer for both plain and TLS connections.
func chromeTransport(proxy string) http.RoundTripper {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d, err := proxyDialer(proxy)
			if err != nil {
				return nil, err
			}
			return d.DialContext(ctx, network, addr)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxy)
		},
	}
	if proxyURL, err := url.Parse(proxy); proxy != "" && err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport
}

// proxyDialer returns a SOCKS5 dialer for socks5:// and socks5h:// proxies
// and a direct dialer otherwise.
func proxyDialer(proxy string) (xproxy.ContextDialer, error) {
	direct := &net.Dialer{Timeout: 30 * time.Second}
	if proxy == "" {
		return direct, nil
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil || (proxyURL.Scheme != "socks5" && proxyURL.Scheme != "socks5h") {
		return direct, nil
	}
	d, err := xproxy.FromURL(proxyURL, direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	cd, ok := d.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy: dialer %T has no DialContext", d)
	}
	return cd, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via
// utls, tunnelled through a SOCKS5 proxy when one is configured.
func dialTLSChrome(ctx context.Context, network, addr, proxy string) (net.Conn, error) {
	d, err := proxyDialer(proxy)
	if err != nil {
		return nil, err
	}
	rawConn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// extractTitle extracts the <title> content from raw HTML bytes.
func extractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/cookies"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
	"golang.org/x/net/publicsuffix"
)

// Harvest is the top-level orchestrator for one note page.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on the entire operation
//  2. Session cookies        – parse cookie input; failures become a warning
//  3. Preflight (optional)   – plain HTTP fetch with the cookies
//  4. Acquire context        – borrow an isolated browser context from the pool
//  5. DEFER: cleanup         – close tab, clear context cookies, return to pool
//  6. Emulation              – user agent, viewport, locale
//  7. Stealth + hijack       – before navigation, or they do not apply
//  8. Cookie injection       – into this context only
//  9. Navigate + settle      – bounded by the navigation timeout
//  10. Harvest               – probe, converge, extract, assemble
//  11. Page digests          – final URL, summary, preflight markup distance
//
// Only steps 4, 5 and 9 can fail the call. Everything after a successful
// navigation degrades into the response diagnostics.
func (s *Scraper) Harvest(ctx context.Context, req *models.HarvestRequest) (*models.HarvestResponse, error) {
	start := time.Now()
	req.Defaults()

	resp := &models.HarvestResponse{
		URL:            req.URL,
		NoteID:         harvest.NoteID(req.URL),
		ScraperVersion: s.version,
	}

	// ── 1. Timeout guard ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, clampTimeout(req.Timeout, s.cfg.Scraper))
	defer cancel()

	// ── 2. Session cookies ────────────────────────────────────────────
	jar, cookieErr := prepareCookies(req, s.cfg.Cookies)
	resp.Cookies = cookieInfo(jar, cookieErr)
	if cookieErr != nil && !cookies.IsEmptyInput(cookieErr) {
		slog.Warn("cookie input unusable, continuing without cookies",
			"url", req.URL, "error", cookieErr,
		)
	}

	// ── 3. Preflight ──────────────────────────────────────────────────
	var pre *preflightResult
	if req.Preflight {
		r := s.preflighter.check(ctx, req.URL, req.ProxyURL, jar)
		pre = &r
		resp.Preflight = &r.Info
	}

	// ── 4. Acquire isolated context from pool ─────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	bctx, acquireErr := s.contextPool.Get(func() (*rod.Browser, error) {
		return s.browser.Incognito()
	})
	if acquireErr != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire browser context from pool",
			acquireErr,
		)
	}

	page, pageErr := bctx.Page(proto.TargetCreateTarget{})
	if pageErr != nil {
		s.contextPool.Put(bctx)
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to open tab",
			pageErr,
		)
	}

	// ── 5. CRITICAL DEFER: no cookie leaks between harvests ───────────
	// Uses the original page reference so cleanup runs even after ctx
	// has expired.
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("cleanup: failed to close tab", "error", closeErr)
		}
		if clearErr := bctx.SetCookies(nil); clearErr != nil {
			slog.Warn("cleanup: failed to clear context cookies", "error", clearErr)
		}
		s.contextPool.Put(bctx)
	}()

	// ── 6. Emulation ──────────────────────────────────────────────────
	if err := s.emulate(page); err != nil {
		slog.Warn("emulation setup failed, proceeding with browser defaults", "error", err)
	}

	// ── 7. Stealth + hijack ───────────────────────────────────────────
	if *req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	router := setupHijack(page, s.cfg.Scraper.BlockedResourceTypes, true)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 8. Cookie injection ───────────────────────────────────────────
	if len(jar) > 0 {
		if err := bctx.SetCookies(cookieParams(jar)); err != nil {
			resp.Cookies.Warning = joinWarning(resp.Cookies.Warning, "inject: "+err.Error())
			slog.Warn("cookie injection failed, continuing without cookies", "error", err)
		}
	}

	// ── 9. Navigate + settle ──────────────────────────────────────────
	p := page.Context(ctx)
	if navErr := p.Timeout(s.cfg.Scraper.NavigationTimeout).Navigate(req.URL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}
	sess := newPageSession(page)
	_ = sess.Wait(ctx, s.cfg.Scraper.InitialSettle)
	navDone := time.Now()

	// ── 10. Harvest ───────────────────────────────────────────────────
	h := harvest.New(harvestOptions(s.cfg.Harvest, req, slog.Default().With("url", req.URL)))
	result := h.Run(ctx, sess)

	resp.Success = true
	resp.Comments = result.Records
	if resp.Comments == nil {
		resp.Comments = []harvest.Record{}
	}
	resp.CommentCount = len(resp.Comments)
	resp.Images = result.Images
	resp.Diagnostics = &result.Diagnostics

	// ── 11. Page digests (best-effort) ────────────────────────────────
	// A fresh context keeps digests available when the harvest used up
	// the request deadline.
	digestCtx, digestCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer digestCancel()

	resp.FinalURL = req.URL
	if u, err := sess.URL(digestCtx); err == nil && u != "" {
		resp.FinalURL = u
	}
	if req.Summarize || pre != nil {
		rendered, err := sess.HTML(digestCtx)
		if err != nil {
			resp.Diagnostics.Errors = append(resp.Diagnostics.Errors, "digest: "+err.Error())
		} else {
			if req.Summarize {
				resp.Summary = cleaner.Summarize(rendered, resp.FinalURL)
			}
			if pre != nil && pre.Markup != 0 {
				resp.Preflight.MarkupDistance = simhash.Distance(pre.Markup, simhash.Markup(rendered))
			}
		}
	}

	end := time.Now()
	resp.ScrapedAt = end.UTC().Format(time.RFC3339)
	resp.Timing = models.TimingInfo{
		TotalMs:      end.Sub(start).Milliseconds(),
		NavigationMs: navDone.Sub(start).Milliseconds(),
		HarvestMs:    end.Sub(navDone).Milliseconds(),
	}
	return resp, nil
}

// emulate applies the configured user agent, viewport and locale.
func (s *Scraper) emulate(page *rod.Page) error {
	b := s.cfg.Browser
	var errs []error
	if b.UserAgent != "" {
		errs = append(errs, page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.UserAgent,
			AcceptLanguage: b.Locale,
		}))
	}
	if b.ViewportWidth > 0 && b.ViewportHeight > 0 {
		errs = append(errs, page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.ViewportWidth,
			Height:            b.ViewportHeight,
			DeviceScaleFactor: 1,
		}))
	}
	if b.Locale != "" {
		errs = append(errs, proto.EmulationSetLocaleOverride{Locale: strings.ReplaceAll(b.Locale, "-", "_")}.Call(page))
	}
	return errors.Join(errs...)
}

// clampTimeout converts the request timeout in seconds, applying the
// configured default and ceiling.
func clampTimeout(seconds int, cfg config.ScraperConfig) time.Duration {
	timeout := time.Duration(seconds) * time.Second
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	if cfg.MaxTimeout > 0 && timeout > cfg.MaxTimeout {
		timeout = cfg.MaxTimeout
	}
	return timeout
}

// prepareCookies parses whichever cookie input the request carries. A
// cookie string wins over a cookie document, which wins over a file.
func prepareCookies(req *models.HarvestRequest, cfg config.CookieConfig) ([]cookies.SessionCookie, error) {
	opts := cookies.Options{
		DefaultDomain: rootDomain(req.URL, cfg.DefaultDomain),
		DefaultTTL:    cfg.DefaultTTL,
	}
	if req.CookieString == "" && len(req.Cookies) > 0 {
		return cookies.ParseJSON(req.Cookies, opts)
	}
	return cookies.Prepare(cookies.Input{Raw: req.CookieString, File: req.CookieFile}, opts)
}

// rootDomain returns the registrable domain of the URL's host with a
// leading dot (".bbc.co.uk" for www.bbc.co.uk). IP addresses and hosts
// without a registrable domain (localhost) are returned bare, since a
// domain cookie cannot cover them. fallback is used when there is no host.
func rootDomain(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fallback
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return "." + etld1
}

// cookieInfo reports names only; values never leave the process.
func cookieInfo(jar []cookies.SessionCookie, err error) models.CookieInfo {
	info := models.CookieInfo{Count: len(jar)}
	for _, c := range jar {
		info.Names = append(info.Names, c.Name)
	}
	if err != nil && !cookies.IsEmptyInput(err) {
		info.Warning = fmt.Sprintf("%s: %v", models.ErrCodeCookieParse, err)
	}
	return info
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// cookieParams converts prepared cookies to CDP cookie params.
func cookieParams(jar []cookies.SessionCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(jar))
	for _, c := range jar {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
			Expires:  proto.TimeSinceEpoch(c.ExpiresAt.Unix()),
		})
	}
	return params
}

// harvestOptions overlays per-request tunables on the server defaults.
func harvestOptions(cfg config.HarvestConfig, req *models.HarvestRequest, logger *slog.Logger) harvest.Options {
	opts := harvest.Options{
		MaxRounds:           cfg.MaxRounds,
		StableRounds:        cfg.StableRounds,
		Settle:              cfg.SettleDelay,
		ClickDelay:          cfg.ClickDelay,
		ClickTimeout:        cfg.ClickTimeout,
		ProbeSettle:         cfg.ProbeSettle,
		SkipProbe:           req.SkipProbe,
		DedupKeyRunes:       cfg.DedupKeyRunes,
		MinContentRunes:     cfg.MinContentRunes,
		MinOverlapRunes:     cfg.MinOverlapRunes,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Mode:                harvest.ExtractMode(cfg.ExtractMode),
		CollectImages:       req.CollectImages,
		ImageHosts:          cfg.ImageHosts,
		Analyze:             req.Analyze,
		Logger:              logger,
	}
	if req.MaxRounds > 0 {
		opts.MaxRounds = req.MaxRounds
	}
	if req.SettleMs > 0 {
		opts.Settle = time.Duration(req.SettleMs) * time.Millisecond
	}
	if req.SimilarityThreshold > 0 {
		opts.SimilarityThreshold = req.SimilarityThreshold
	}
	if req.ExtractMode != "" {
		opts.Mode = harvest.ExtractMode(req.ExtractMode)
	}
	return opts
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

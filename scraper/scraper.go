package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Scraper manages the global browser lifecycle and a pool of isolated
// browser contexts, one per concurrent harvest. It is safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	contextPool rod.Pool[rod.Browser]
	cfg         *config.Config
	preflighter *preflighter
	activePages atomic.Int32
	startTime   time.Time
	version     string
}

// NewScraper launches a headless browser and initialises the context pool.
func NewScraper(cfg *config.Config, version string) (*Scraper, error) {
	browserCfg := cfg.Browser
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	if browserCfg.Locale != "" {
		l.Set(flags.Flag("lang"), browserCfg.Locale)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewBrowserPool(browserCfg.MaxPages)
	slog.Info("context pool created", "maxPages", browserCfg.MaxPages)

	return &Scraper{
		browser:     browser,
		contextPool: pool,
		cfg:         cfg,
		preflighter: newPreflighter(browserCfg.DefaultProxy, browserCfg.UserAgent, browserCfg.Locale),
		startTime:   time.Now(),
		version:     version,
	}, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.cfg.Browser.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Close disposes every pooled context and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: disposing browser contexts")
	s.contextPool.Cleanup(func(b *rod.Browser) {
		_ = b.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}

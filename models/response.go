package models

import "github.com/use-agent/harvest/harvest"

// HarvestResponse is the response for POST /api/v1/harvest.
type HarvestResponse struct {
	// Success is true when the page was reached and the pipeline ran.
	// An empty comment list is still a success.
	Success bool `json:"success"`

	// NoteID is the note identifier parsed from the URL, when present.
	NoteID string `json:"note_id,omitempty"`

	// URL is the requested page.
	URL string `json:"url"`

	// FinalURL is the page URL after redirects and scrolling.
	FinalURL string `json:"final_url,omitempty"`

	// ScrapedAt is the RFC 3339 completion time.
	ScrapedAt string `json:"scraped_at,omitempty"`

	// CommentCount is len(Comments).
	CommentCount int `json:"comment_count"`

	// Comments are the assembled records in page order.
	Comments []harvest.Record `json:"comments"`

	// Images are comment image URLs, when collect_images was requested.
	Images []string `json:"images,omitempty"`

	// Summary describes the note itself, when summarize was requested.
	Summary *PageSummary `json:"summary,omitempty"`

	// Preflight is the HTTP cookie check, when preflight was requested.
	Preflight *PreflightInfo `json:"preflight,omitempty"`

	// Diagnostics explains how the records were obtained.
	Diagnostics *harvest.Diagnostics `json:"diagnostics,omitempty"`

	// Cookies reports what the session preparer did with the input.
	Cookies CookieInfo `json:"cookies"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// ScraperVersion identifies the build that produced the result.
	ScraperVersion string `json:"scraper_version,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// CookieInfo summarises the prepared session cookies. Values are never
// echoed back.
type CookieInfo struct {
	Count   int      `json:"count"`
	Names   []string `json:"names,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// PageSummary is a readability digest of the note page.
type PageSummary struct {
	Title    string     `json:"title,omitempty"`
	Byline   string     `json:"byline,omitempty"`
	Excerpt  string     `json:"excerpt,omitempty"`
	SiteName string     `json:"site_name,omitempty"`
	Length   int        `json:"length,omitempty"`
	OG       OGMetadata `json:"og"`
}

// OGMetadata contains Open Graph protocol meta tags.
type OGMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Type        string `json:"type,omitempty"`
}

// PreflightInfo is the outcome of a plain HTTP fetch made with the
// session cookies before the browser navigates. Advisory only.
type PreflightInfo struct {
	StatusCode int    `json:"status_code"`
	FinalURL   string `json:"final_url"`
	Title      string `json:"title,omitempty"`

	// LoginRedirect is true when the final URL looks like a login page.
	LoginRedirect bool `json:"login_redirect"`

	// MarkupDistance is the SimHash distance between the server HTML and
	// the rendered page structure. -1 when not computed.
	MarkupDistance int `json:"markup_distance"`

	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs is the time spent navigating and rendering the page.
	NavigationMs int64 `json:"navigation_ms"`

	// HarvestMs is the time spent probing, scrolling and extracting.
	HarvestMs int64 `json:"harvest_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
	BrowserPID  int `json:"browser_pid"`
}

package models

import "encoding/json"

// HarvestRequest is the payload for POST /api/v1/harvest and /api/v1/jobs.
type HarvestRequest struct {
	// URL is the note page to harvest. Required.
	URL string `json:"url" binding:"required,url"`

	// CookieString is a raw "name=value; name2=value2" Cookie header.
	// Takes precedence over Cookies.
	CookieString string `json:"cookie_string,omitempty"`

	// Cookies is an exported cookie document in any tolerated shape:
	// a bare array, {"cookies": [...]}, a single cookie object, or an
	// object whose first list-valued field holds the cookies.
	Cookies json.RawMessage `json:"cookies,omitempty"`

	// CookieFile is a local cookie file path. Set by the CLI only.
	CookieFile string `json:"-"`

	// MaxRounds bounds the scroll loop. Default: server config (20).
	MaxRounds int `json:"max_rounds,omitempty" binding:"omitempty,min=1,max=200"`

	// SettleMs is the wait after every scroll in milliseconds.
	// Default: server config (2000).
	SettleMs int `json:"settle_ms,omitempty" binding:"omitempty,min=1,max=30000"`

	// Timeout is the maximum duration in seconds for the whole harvest
	// (navigation + scrolling + extraction). Default: 120. Max: 600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// Stealth injects anti-bot-detection evasions before navigation.
	// Default: true.
	Stealth *bool `json:"stealth,omitempty"`

	// ExtractMode selects the DOM backend. Empty means the server default
	// (HARVEST_EXTRACT_MODE, itself "live" unless set): "live" queries the
	// page in place, "snapshot" parses one serialized copy with goquery.
	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=live snapshot"`

	// SimilarityThreshold enables the near-duplicate pass when > 0.
	SimilarityThreshold int `json:"similarity_threshold,omitempty" binding:"omitempty,min=0,max=64"`

	// CollectImages also returns comment image URLs.
	CollectImages bool `json:"collect_images,omitempty"`

	// Analyze adds a page structure report to the diagnostics.
	Analyze bool `json:"analyze,omitempty"`

	// Summarize adds a readability summary of the note itself.
	Summarize bool `json:"summarize,omitempty"`

	// Preflight checks the cookies with a plain HTTP fetch before the
	// browser navigates.
	Preflight bool `json:"preflight,omitempty"`

	// SkipProbe disables the login-state probe.
	SkipProbe bool `json:"skip_probe,omitempty"`

	// ProxyURL overrides the default proxy for the preflight fetch.
	ProxyURL string `json:"proxy_url,omitempty" binding:"omitempty,url"`

	// MaxAge allows a cached response younger than this many seconds.
	// 0 disables the cache lookup.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *HarvestRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 120
	}
	if r.Stealth == nil {
		t := true
		r.Stealth = &t
	}
}

// HasCookies reports whether any cookie material was supplied.
func (r *HarvestRequest) HasCookies() bool {
	return r.CookieString != "" || len(r.Cookies) > 0 || r.CookieFile != ""
}

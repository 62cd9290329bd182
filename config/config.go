package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Harvest   HarvestConfig
	Cookies   CookieConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance and the context every
// harvest tab is created with.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent harvests).
	MaxPages int // default: 4

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserAgent is applied to every tab before navigation.
	UserAgent string

	// ViewportWidth and ViewportHeight size the emulated window.
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 900

	// Locale is sent as Accept-Language and used for emulated locale.
	Locale string // default: "zh-CN"
}

// ScraperConfig controls page navigation behaviour.
type ScraperConfig struct {
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout time.Duration // default: 120s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 300s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 30s

	// InitialSettle is how long to wait after navigation before probing.
	InitialSettle time.Duration // default: 3s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string
}

// HarvestConfig holds the tunables of the scroll/extract pipeline.
type HarvestConfig struct {
	// MaxRounds bounds the scroll convergence loop.
	MaxRounds int // default: 20

	// SettleDelay is the wait after every scroll-to-bottom.
	SettleDelay time.Duration // default: 2s

	// ClickDelay is the wait after a successful expand click.
	ClickDelay time.Duration // default: 1s

	// ClickTimeout bounds a single expand click.
	ClickTimeout time.Duration // default: 2s

	// ProbeSettle is the wait before the login-state probe reads the page.
	ProbeSettle time.Duration // default: 2s

	// StableRounds is the number of unchanged rounds that ends convergence.
	StableRounds int // default: 3

	// DedupKeyRunes is the content prefix length used as dedup key.
	DedupKeyRunes int // default: 30

	// MinContentRunes drops assembled records at or below this length.
	MinContentRunes int // default: 3

	// MinOverlapRunes is the shortest dedup key that absorbs longer keys
	// starting with it.
	MinOverlapRunes int // default: 12

	// SimilarityThreshold enables the SimHash near-duplicate pass when > 0.
	SimilarityThreshold int // default: 0

	// ExtractMode selects the DOM backend: "live" or "snapshot".
	ExtractMode string // default: "live"

	// ImageHosts restricts collected comment image URLs.
	ImageHosts []string
}

// CookieConfig controls session cookie defaults.
type CookieConfig struct {
	// DefaultDomain is applied to cookies without a domain.
	DefaultDomain string // default: ".xiaohongshu.com"

	// DefaultTTL sets the expiry of cookies without one.
	DefaultTTL time.Duration // default: 24h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 0.5

	// Burst is the maximum burst size per API key.
	Burst int // default: 2
}

// CacheConfig controls the harvest response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File, when set, routes logs to a rotating file instead of stdout.
	File       string
	MaxSizeMB  int // default: 50
	MaxBackups int // default: 3
	MaxAgeDays int // default: 14
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("HARVEST_HEADLESS", true),
			MaxPages:       envIntOr("HARVEST_MAX_PAGES", 4),
			DefaultProxy:   os.Getenv("HARVEST_PROXY"),
			NoSandbox:      envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("HARVEST_BROWSER_BIN"),
			UserAgent:      envOr("HARVEST_USER_AGENT", DefaultUserAgent),
			ViewportWidth:  envIntOr("HARVEST_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("HARVEST_VIEWPORT_HEIGHT", 900),
			Locale:         envOr("HARVEST_LOCALE", "zh-CN"),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:    envDurationOr("HARVEST_DEFAULT_TIMEOUT", 120*time.Second),
			MaxTimeout:        envDurationOr("HARVEST_MAX_TIMEOUT", 300*time.Second),
			NavigationTimeout: envDurationOr("HARVEST_NAV_TIMEOUT", 30*time.Second),
			InitialSettle:     envDurationOr("HARVEST_INITIAL_SETTLE", 3*time.Second),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Harvest: HarvestConfig{
			MaxRounds:           envIntOr("HARVEST_MAX_ROUNDS", 20),
			SettleDelay:         envDurationOr("HARVEST_SETTLE_DELAY", 2*time.Second),
			ClickDelay:          envDurationOr("HARVEST_CLICK_DELAY", time.Second),
			ClickTimeout:        envDurationOr("HARVEST_CLICK_TIMEOUT", 2*time.Second),
			ProbeSettle:         envDurationOr("HARVEST_PROBE_SETTLE", 2*time.Second),
			StableRounds:        envIntOr("HARVEST_STABLE_ROUNDS", 3),
			DedupKeyRunes:       envIntOr("HARVEST_DEDUP_KEY_RUNES", 30),
			MinContentRunes:     envIntOr("HARVEST_MIN_CONTENT_RUNES", 3),
			MinOverlapRunes:     envIntOr("HARVEST_MIN_OVERLAP_RUNES", 12),
			SimilarityThreshold: envIntOr("HARVEST_SIMILARITY_THRESHOLD", 0),
			ExtractMode:         envOr("HARVEST_EXTRACT_MODE", "live"),
			ImageHosts: envSliceOr("HARVEST_IMAGE_HOSTS", []string{
				"xiaohongshu.com", "xhscdn.com", "sns-img", "redcdn",
			}),
		},
		Cookies: CookieConfig{
			DefaultDomain: envOr("HARVEST_COOKIE_DOMAIN", ".xiaohongshu.com"),
			DefaultTTL:    envDurationOr("HARVEST_COOKIE_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 0.5),
			Burst:             envIntOr("HARVEST_RATE_BURST", 2),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 200),
		},
		Log: LogConfig{
			Level:      envOr("HARVEST_LOG_LEVEL", "info"),
			Format:     envOr("HARVEST_LOG_FORMAT", "json"),
			File:       os.Getenv("HARVEST_LOG_FILE"),
			MaxSizeMB:  envIntOr("HARVEST_LOG_MAX_SIZE_MB", 50),
			MaxBackups: envIntOr("HARVEST_LOG_MAX_BACKUPS", 3),
			MaxAgeDays: envIntOr("HARVEST_LOG_MAX_AGE_DAYS", 14),
		},
	}
}

// DefaultUserAgent is a desktop Chrome UA string.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

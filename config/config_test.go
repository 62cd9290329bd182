package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 20, cfg.Harvest.MaxRounds)
	assert.Equal(t, 2*time.Second, cfg.Harvest.SettleDelay)
	assert.Equal(t, 3, cfg.Harvest.StableRounds)
	assert.Equal(t, 30, cfg.Harvest.DedupKeyRunes)
	assert.Equal(t, "live", cfg.Harvest.ExtractMode)
	assert.Equal(t, ".xiaohongshu.com", cfg.Cookies.DefaultDomain)
	assert.Equal(t, 24*time.Hour, cfg.Cookies.DefaultTTL)
	assert.Equal(t, []string{"Font", "Media"}, cfg.Scraper.BlockedResourceTypes)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVEST_MAX_ROUNDS", "7")
	t.Setenv("HARVEST_SETTLE_DELAY", "500ms")
	t.Setenv("HARVEST_HEADLESS", "false")
	t.Setenv("HARVEST_IMAGE_HOSTS", " cdn.example.com , ,img.example.com")
	t.Setenv("HARVEST_RATE_RPS", "2.5")

	cfg := Load()

	assert.Equal(t, 7, cfg.Harvest.MaxRounds)
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.SettleDelay)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"cdn.example.com", "img.example.com"}, cfg.Harvest.ImageHosts)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HARVEST_MAX_ROUNDS", "many")
	t.Setenv("HARVEST_CLICK_DELAY", "soon")

	cfg := Load()

	assert.Equal(t, 20, cfg.Harvest.MaxRounds)
	assert.Equal(t, time.Second, cfg.Harvest.ClickDelay)
}

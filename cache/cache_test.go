package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/harvest/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, max int) (*Cache, *clock) {
	t.Helper()
	c := New(max)
	t.Cleanup(c.Close)
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestKey(t *testing.T) {
	base := models.HarvestRequest{URL: "https://www.xiaohongshu.com/explore/abc", CookieString: "a1=x"}

	same := base
	same.SettleMs = 5000
	same.Timeout = 30
	assert.Equal(t, Key(&base), Key(&same), "pacing options do not change the key")

	tests := []struct {
		name   string
		mutate func(r *models.HarvestRequest)
	}{
		{"url", func(r *models.HarvestRequest) { r.URL += "x" }},
		{"cookie string", func(r *models.HarvestRequest) { r.CookieString = "a1=y" }},
		{"cookie document", func(r *models.HarvestRequest) { r.Cookies = json.RawMessage(`[]`) }},
		{"rounds", func(r *models.HarvestRequest) { r.MaxRounds = 3 }},
		{"mode", func(r *models.HarvestRequest) { r.ExtractMode = "snapshot" }},
		{"images", func(r *models.HarvestRequest) { r.CollectImages = true }},
		{"summary", func(r *models.HarvestRequest) { r.Summarize = true }},
		{"preflight", func(r *models.HarvestRequest) { r.Preflight = true }},
		{"skip probe", func(r *models.HarvestRequest) { r.SkipProbe = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			assert.NotEqual(t, Key(&base), Key(&r))
		})
	}
}

func TestGetSet(t *testing.T) {
	c, clk := newTestCache(t, 10)
	resp := &models.HarvestResponse{Success: true, CommentCount: 2}

	_, ok := c.Get("k", 60_000)
	assert.False(t, ok)

	c.Set("k", resp)

	got, ok := c.Get("k", 60_000)
	require.True(t, ok)
	assert.Same(t, resp, got)

	_, ok = c.Get("k", 0)
	assert.False(t, ok, "max age 0 disables lookups")

	clk.t = clk.t.Add(2 * time.Minute)
	_, ok = c.Get("k", 60_000)
	assert.False(t, ok, "older than max age")
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c, _ := newTestCache(t, 2)
	c.Set("a", &models.HarvestResponse{})
	c.Set("b", &models.HarvestResponse{})
	c.Set("b", &models.HarvestResponse{})
	assert.Equal(t, 2, c.Len(), "overwriting does not evict")

	c.Set("c", &models.HarvestResponse{})
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c", 60_000)
	assert.True(t, ok)
}

func TestEvictExpired(t *testing.T) {
	c, clk := newTestCache(t, 10)
	c.Set("old", &models.HarvestResponse{})
	clk.t = clk.t.Add(30 * time.Minute)
	c.Set("new", &models.HarvestResponse{})
	clk.t = clk.t.Add(45 * time.Minute)

	c.evictExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("new", int(time.Hour/time.Millisecond))
	assert.True(t, ok)
}

func TestClose_Idempotent(t *testing.T) {
	c := New(1)
	c.Close()
	c.Close()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/webhook"
)

const noteURL = "https://www.xiaohongshu.com/explore/64f1a2b3c4d5"

type fakeHarvester struct {
	mu    sync.Mutex
	reqs  []models.HarvestRequest
	err   error
	calls atomic.Int32
	stats models.PoolStats
}

func (f *fakeHarvester) Harvest(_ context.Context, req *models.HarvestRequest) (*models.HarvestResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, *req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.HarvestResponse{
		Success:      true,
		URL:          req.URL,
		NoteID:       harvest.NoteID(req.URL),
		CommentCount: 1,
		Comments:     []harvest.Record{{ID: "r1", Content: "这个颜色好好看！"}},
	}, nil
}

func (f *fakeHarvester) Stats() models.PoolStats { return f.stats }

type testServer struct {
	router *gin.Engine
	fake   *fakeHarvester
	wg     *sync.WaitGroup
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cc := cache.New(10)
	wg := &sync.WaitGroup{}
	t.Cleanup(func() {
		wg.Wait()
		cancel()
		cc.Close()
	})

	fake := &fakeHarvester{stats: models.PoolStats{MaxPages: 4}}
	r := NewRouter(ctx, cfg, Deps{
		Harvester: fake,
		Cache:     cc,
		Jobs:      handler.NewJobStore(),
		JobsWG:    wg,
		StartTime: time.Now(),
		Version:   "test",
	})
	return &testServer{router: r, fake: fake, wg: wg}
}

func (s *testServer) do(method, path string, body any, key string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHarvest_OK(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/harvest", map[string]any{
		"url":           noteURL,
		"cookie_string": "a1=x",
		"max_rounds":    5,
	}, "k1")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.HarvestResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "64f1a2b3c4d5", resp.NoteID)
	require.Len(t, resp.Comments, 1)

	require.Len(t, s.fake.reqs, 1)
	got := s.fake.reqs[0]
	assert.Equal(t, 5, got.MaxRounds)
	assert.Equal(t, 120, got.Timeout, "defaults applied")
	require.NotNil(t, got.Stealth)
	assert.True(t, *got.Stealth)
}

func TestHarvest_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{}},
		{"bad url", map[string]any{"url": "not a url"}},
		{"bad mode", map[string]any{"url": noteURL, "extract_mode": "xpath"}},
		{"rounds too high", map[string]any{"url": noteURL, "max_rounds": 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/harvest", tt.body, "k1")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[models.ErrorResponse](t, w)
			assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
		})
	}
	assert.Zero(t, s.fake.calls.Load())
}

func TestHarvest_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.NewScrapeError(models.ErrCodeTimeout, "slow", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{models.NewScrapeError(models.ErrCodeNavigation, "dns", nil), http.StatusBadGateway},
		{models.NewScrapeError(models.ErrCodeBrowserCrash, "gone", nil), http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestServer(t, nil)
			s.fake.err = tt.err

			w := s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "k1")

			assert.Equal(t, tt.status, w.Code)
			resp := decode[models.ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error.Code)
		})
	}
}

func TestHarvest_Cache(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"url": noteURL, "max_age": 60}

	first := decode[models.HarvestResponse](t, s.do(http.MethodPost, "/api/v1/harvest", body, "k1"))
	second := decode[models.HarvestResponse](t, s.do(http.MethodPost, "/api/v1/harvest", body, "k1"))

	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, int32(1), s.fake.calls.Load())

	s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "k1")
	assert.Equal(t, int32(2), s.fake.calls.Load(), "max_age 0 bypasses the cache")
}

func TestHarvest_ConcurrentCacheReaders(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"url": noteURL, "max_age": 60}

	var wg sync.WaitGroup
	statuses := make([]string, 8)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var resp models.HarvestResponse
			_ = json.Unmarshal(s.do(http.MethodPost, "/api/v1/harvest", body, "k1").Body.Bytes(), &resp)
			statuses[i] = resp.CacheStatus
		}(i)
	}
	wg.Wait()

	for _, st := range statuses {
		assert.Contains(t, []string{"hit", "miss"}, st)
	}
	last := decode[models.HarvestResponse](t, s.do(http.MethodPost, "/api/v1/harvest", body, "k1"))
	assert.Equal(t, "hit", last.CacheStatus)
}

func TestHarvest_CacheSeparatesPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL, "max_age": 60}, "k1")
	w := s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL, "max_age": 60, "preflight": true}, "k1")

	assert.Equal(t, "miss", decode[models.HarvestResponse](t, w).CacheStatus)
	assert.Equal(t, int32(2), s.fake.calls.Load())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "nope").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/harvest", bytes.NewBufferString(`{"url":"`+noteURL+`"}`))
	req.Header.Set("Authorization", "Bearer k1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/health", nil, "").Code, "health is public")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "k1").Code)
	w := s.do(http.MethodPost, "/api/v1/harvest", map[string]any{"url": noteURL}, "k1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	resp := decode[models.HealthResponse](t, s.do(http.MethodGet, "/api/v1/health", nil, ""))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)

	s.fake.stats = models.PoolStats{MaxPages: 4, ActivePages: 4}
	resp = decode[models.HealthResponse](t, s.do(http.MethodGet, "/api/v1/health", nil, ""))
	assert.Equal(t, "degraded", resp.Status)
}

func TestJobs_Lifecycle(t *testing.T) {
	var delivered atomic.Value
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		delivered.Store(ev.Type)
	}))
	defer hook.Close()

	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]any{
		"url":         noteURL,
		"webhook_url": hook.URL,
	}, "k1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[models.JobResponse](t, w)
	assert.Equal(t, models.JobQueued, job.Status)

	s.wg.Wait()

	st := decode[models.JobStatusResponse](t, s.do(http.MethodGet, "/api/v1/jobs/"+job.ID, nil, "k1"))
	assert.Equal(t, models.JobCompleted, st.Status)
	require.NotNil(t, st.Result)
	assert.Equal(t, 1, st.Result.CommentCount)
	assert.Equal(t, webhook.EventHarvestCompleted, delivered.Load())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/jobs/missing", nil, "k1").Code)
}

func TestJobs_Failure(t *testing.T) {
	s := newTestServer(t, nil)
	s.fake.err = models.NewScrapeError(models.ErrCodeNavigation, "unreachable", nil)

	job := decode[models.JobResponse](t, s.do(http.MethodPost, "/api/v1/jobs", map[string]any{"url": noteURL}, "k1"))
	s.wg.Wait()

	st := decode[models.JobStatusResponse](t, s.do(http.MethodGet, "/api/v1/jobs/"+job.ID, nil, "k1"))
	assert.Equal(t, models.JobFailed, st.Status)
	require.NotNil(t, st.Result)
	require.NotNil(t, st.Result.Error)
	assert.Equal(t, models.ErrCodeNavigation, st.Result.Error.Code)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/models"
)

// Harvester runs one harvest and reports pool usage. *scraper.Scraper
// implements it.
type Harvester interface {
	Harvest(ctx context.Context, req *models.HarvestRequest) (*models.HarvestResponse, error)
	Stats() models.PoolStats
}

// Harvest returns a handler for POST /api/v1/harvest.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age > 0.
//  3. Harvester.Harvest → comments + diagnostics.
//  4. Cache store, respond 200.
//
// A harvest that reached the page is always a 200, even with zero comments;
// the diagnostics say why.
func Harvest(h Harvester, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.HarvestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
			return
		}
		req.Defaults()

		// ── 2. Cache lookup ─────────────────────────────────────────
		useCache := cc != nil && req.MaxAge > 0
		cacheKey := ""
		if useCache {
			cacheKey = cache.Key(&req)
			if cached, hit := cc.Get(cacheKey, req.MaxAge*1000); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, &resp)
				return
			}
		}

		// ── 3. Harvest ──────────────────────────────────────────────
		resp, err := h.Harvest(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		// The cache keeps its own copy; concurrent hits copy from it while
		// this handler keeps writing to resp.
		if useCache {
			resp.CacheStatus = "miss"
			stored := *resp
			cc.Set(cacheKey, &stored)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	scrapeErr := asScrapeError(err)
	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{Error: scrapeErr.ToDetail()})
}

func asScrapeError(err error) *models.ScrapeError {
	var scrapeErr *models.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeCookieParse:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}

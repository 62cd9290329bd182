package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/webhook"
)

// jobTTL is how long finished jobs stay retrievable.
const jobTTL = time.Hour

// JobStore holds in-flight and finished async harvests in memory.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewJobStore returns an empty store. Call Run to expire old jobs.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.Job), now: time.Now}
}

func (s *JobStore) put(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// snapshot returns a copy so readers never race the worker.
func (s *JobStore) snapshot(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

func (s *JobStore) finish(id, status string, result *models.HarvestResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.Result = result
	}
}

func (s *JobStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
	}
}

// Sweep removes jobs created before now-ttl.
func (s *JobStore) Sweep(ttl time.Duration) {
	cutoff := s.now().Add(-ttl).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt < cutoff {
			delete(s.jobs, id)
		}
	}
}

// Run sweeps expired jobs every 5 minutes until ctx is done.
func (s *JobStore) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(jobTTL)
		case <-ctx.Done():
			return
		}
	}
}

// PostJob returns a handler for POST /api/v1/jobs. The harvest runs in the
// background; wg lets shutdown wait for running jobs.
func PostJob(h Harvester, store *JobStore, wg *sync.WaitGroup) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
			return
		}
		req.Defaults()

		job := &models.Job{
			ID:        "job-" + uuid.NewString(),
			Status:    models.JobQueued,
			URL:       req.URL,
			CreatedAt: store.now().Unix(),
		}
		store.put(job)

		wg.Add(1)
		go func() {
			defer wg.Done()
			runJob(h, store, job.ID, req)
		}()

		c.JSON(http.StatusAccepted, models.JobResponse{ID: job.ID, Status: models.JobQueued})
	}
}

// GetJob returns a handler for GET /api/v1/jobs/:id.
func GetJob(store *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.snapshot(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.NewErrorResponse(models.ErrCodeNotFound, "job not found"))
			return
		}
		c.JSON(http.StatusOK, models.JobStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			URL:       job.URL,
			CreatedAt: job.CreatedAt,
			Result:    job.Result,
		})
	}
}

// runJob harvests detached from the submitting request and notifies the
// webhook, if any.
func runJob(h Harvester, store *JobStore, id string, req models.JobRequest) {
	store.setStatus(id, models.JobProcessing)

	resp, err := h.Harvest(context.Background(), &req.HarvestRequest)
	status, event := models.JobCompleted, webhook.EventHarvestCompleted
	if err != nil {
		scrapeErr := asScrapeError(err)
		resp = &models.HarvestResponse{URL: req.URL, Error: scrapeErr.ToDetail()}
		status, event = models.JobFailed, webhook.EventHarvestFailed
	}
	store.finish(id, status, resp)

	slog.Info("harvest job finished",
		"id", id,
		"status", status,
		"comments", resp.CommentCount,
	)

	if req.WebhookURL != "" {
		<-webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      event,
			JobID:     id,
			Timestamp: store.now().Unix(),
			Data:      resp,
		})
	}
}

package models

// JobRequest is the payload for POST /api/v1/jobs.
type JobRequest struct {
	HarvestRequest

	// WebhookURL receives harvest.completed / harvest.failed events.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs webhook payloads with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Job statuses.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobResponse is the immediate response for POST /api/v1/jobs.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobStatusResponse is the response for GET /api/v1/jobs/:id.
type JobStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	URL       string           `json:"url"`
	CreatedAt int64            `json:"created_at"`
	Result    *HarvestResponse `json:"result,omitempty"`
}

// Job tracks an async harvest.
type Job struct {
	ID        string
	Status    string
	URL       string
	Result    *HarvestResponse
	CreatedAt int64 // unix timestamp
}

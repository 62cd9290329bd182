// Package webhook notifies job owners when an async harvest finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	EventHarvestCompleted = "harvest.completed"
	EventHarvestFailed    = "harvest.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>".
const SignatureHeader = "X-Harvest-Signature"

// Event is the payload posted to the job's webhook URL.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the SignatureHeader value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier posts events with retries.
type Notifier struct {
	Client *http.Client

	// Delays are the waits before each attempt; len(Delays) is the number
	// of attempts.
	Delays []time.Duration

	// AttemptTimeout bounds one POST.
	AttemptTimeout time.Duration
}

// DefaultNotifier tries four times over roughly 36 seconds.
var DefaultNotifier = &Notifier{
	Client:         &http.Client{Timeout: 10 * time.Second},
	Delays:         []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second},
	AttemptTimeout: 10 * time.Second,
}

// Deliver posts event once with DefaultNotifier's client.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	return DefaultNotifier.Deliver(ctx, url, secret, event)
}

// DeliverAsync is DefaultNotifier.DeliverAsync.
func DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	return DefaultNotifier.DeliverAsync(url, secret, event)
}

// Deliver posts event once. The body is signed when secret is non-empty.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Harvest-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync retries Deliver in the background. The returned channel is
// closed once an attempt succeeded or all of them failed.
func (n *Notifier) DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		log := slog.With("url", url, "event", event.Type, "job_id", event.JobID)

		for i, delay := range n.Delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			if err := n.attempt(url, secret, event); err != nil {
				log.Warn("webhook delivery failed", "attempt", i+1, "error", err)
				continue
			}
			log.Info("webhook delivered", "attempt", i+1)
			return
		}
		log.Error("webhook delivery exhausted all retries", "attempts", len(n.Delays))
	}()
	return done
}

func (n *Notifier) attempt(url, secret string, event *Event) error {
	timeout := n.AttemptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return n.Deliver(ctx, url, secret, event)
}

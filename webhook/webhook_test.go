package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signs(t *testing.T) {
	var gotSig string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.Equal(t, Sign("s3cret", body), gotSig)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := &Event{Type: EventHarvestCompleted, JobID: "j1", Timestamp: 1, Data: map[string]int{"comment_count": 3}}
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, gotSig)
	assert.Equal(t, EventHarvestCompleted, got.Type)
	assert.Equal(t, "j1", got.JobID)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", &Event{Type: EventHarvestFailed}))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", &Event{})
	assert.ErrorContains(t, err, "status 502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	n := &Notifier{Delays: []time.Duration{0, time.Millisecond, time.Millisecond}}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	select {
	case <-n.DeliverAsync(srv.URL, "", &Event{Type: EventHarvestCompleted}):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverAsync_GivesUp(t *testing.T) {
	n := &Notifier{Delays: []time.Duration{0, time.Millisecond}}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	select {
	case <-n.DeliverAsync(srv.URL, "k", &Event{Type: EventHarvestFailed}):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(2), calls.Load(), "one request per delay entry")
}

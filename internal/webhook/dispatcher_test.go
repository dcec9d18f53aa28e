package webhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/config"
	"github.com/coolbox13/omfietser-processor/internal/webhook"
)

func TestDispatcherPostsEnvelopeToConfiguredPath(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/webhook/processor/job-started", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := webhook.NewDispatcher(config.WebhookConfig{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		RetryAttempts: 1,
	}, nil)

	d.Post(t.Context(), "job.started", map[string]interface{}{"job_id": "abc"})

	select {
	case body := <-received:
		require.Equal(t, "job.started", body["event"])
		require.Equal(t, "supermarket-processor", body["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered in time")
	}
}

func TestDispatcherWithEmptyBaseURLIsNoop(t *testing.T) {
	d := webhook.NewDispatcher(config.WebhookConfig{}, nil)
	require.NotPanics(t, func() {
		d.Post(t.Context(), "job.started", map[string]interface{}{"job_id": "abc"})
	})
}

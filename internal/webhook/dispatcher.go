// Package webhook implements fire-and-forget HTTP delivery of job lifecycle
// and monitoring events (spec §4.6): JSON POST, bounded timeout, exponential
// backoff retry, bounded concurrency, circuit breaker per target path.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/coolbox13/omfietser-processor/internal/config"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/resilience"
)

const source = "supermarket-processor"

// eventRoutes maps each event name to its webhook path (spec §4.6 table).
var eventRoutes = map[string]string{
	"job.started":                 "/webhook/processor/job-started",
	"job.progress":                "/webhook/processor/job-progress",
	"job.completed":                "/webhook/processor/job-completed",
	"job.failed":                   "/webhook/processor/job-failed",
	"processing.high_error_rate":   "/webhook/processor/alert",
	"system.health_check":          "/webhook/processor/health-check",
}

// envelope is the fixed payload shape every event is wrapped in.
type envelope struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// Dispatcher posts events to a configured base URL. Post never returns an
// error to the caller; delivery failures are logged and dropped (spec §4.6
// "A dispatch failure MUST NOT affect job status").
type Dispatcher struct {
	baseURL       string
	client        *http.Client
	retryAttempts int
	breakers      *resilience.CircuitBreakerManager
	queue         chan job
	logger        logging.Logger
}

type job struct {
	ctx   context.Context
	event string
	data  map[string]interface{}
}

const maxInFlight = 8
const queueDepth = 256

// NewDispatcher constructs a Dispatcher and starts its bounded worker pool.
// If cfg.BaseURL is empty, Post is a no-op (webhooks disabled).
func NewDispatcher(cfg config.WebhookConfig, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	d := &Dispatcher{
		baseURL:       cfg.BaseURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		retryAttempts: cfg.RetryAttempts,
		breakers:      resilience.NewCircuitBreakerManager(zap.NewNop()),
		queue:         make(chan job, queueDepth),
		logger:        logger,
	}
	for i := 0; i < maxInFlight; i++ {
		go d.worker()
	}
	return d
}

// Post enqueues an event for best-effort delivery. Events wait in a queue of
// queueDepth entries for one of maxInFlight workers; once the queue is full,
// further events are dropped (spec §5 "Webhook Dispatcher limits in-flight
// requests; overflow is queued or dropped").
func (d *Dispatcher) Post(ctx context.Context, event string, data map[string]interface{}) {
	if d == nil || d.baseURL == "" {
		return
	}
	select {
	case d.queue <- job{ctx: ctx, event: event, data: data}:
	default:
		d.logger.Warn("webhook queue full, dropping event", logging.Fields.String("event", event))
	}
}

func (d *Dispatcher) worker() {
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	path, ok := eventRoutes[j.event]
	if !ok {
		d.logger.Warn("unknown webhook event, dropping", logging.Fields.String("event", j.event))
		return
	}

	body := envelope{
		Event:     j.event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      j.data,
		Source:    source,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		d.logger.Error("failed to marshal webhook payload", err, logging.Fields.String("event", j.event))
		return
	}

	url := d.baseURL + path
	breaker := d.breakers.GetOrCreate(path, resilience.CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      d.client.Timeout,
		ResetTimeout: 60 * time.Second,
	})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.Multiplier = 2
	policy.MaxInterval = 30 * time.Second
	bounded := backoff.WithMaxRetries(policy, uint64(maxAttempts(d.retryAttempts)-1))

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		return breaker.Execute(func() error {
			return d.send(j.ctx, url, payload, j.event, attempt)
		})
	}, bounded)

	if err != nil {
		d.logger.Error("webhook delivery failed after retries, dropping event", err,
			logging.Fields.Webhook(j.event, url, attempt)...)
	}
}

func (d *Dispatcher) send(ctx context.Context, url string, payload []byte, event string, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery attempt failed", logging.Fields.Webhook(event, url, attempt)...)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook target returned %d", resp.StatusCode)
	}
	return nil
}

func maxAttempts(configured int) int {
	if configured <= 0 {
		return 3
	}
	return configured
}

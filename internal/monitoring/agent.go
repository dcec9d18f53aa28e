// Package monitoring implements the Monitoring Agent: periodic sampling of
// database, job, and process health, with cooldown-gated alerting forwarded
// to the webhook layer (spec §4.7).
package monitoring

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/storage"
)

const sampleInterval = 30 * time.Second
const defaultCooldown = 5 * time.Minute

// Thresholds configures when the agent raises alerts.
type Thresholds struct {
	MinSuccessRate    float64 // below this per-job success rate, raise high_error_rate
	MaxConsecutiveDBFails int64
	Cooldown          time.Duration
}

// Sample is one point-in-time observation, exposed for the Control
// Surface's health/ready endpoints and for tests.
type Sample struct {
	Timestamp      time.Time
	ActiveJobs     int
	ErrorCount24h  int
	TopErrorTypes  []string
	MemoryAllocMB  float64
	UptimeSeconds  float64
	DBHealthy      bool
	DBConsecutiveFailures int64
	Throughput     Summary
}

// Agent periodically samples system state and raises alerts via the
// dispatcher (spec §4.7).
type Agent struct {
	repos      storage.Contract
	pool       *storage.Pool
	manager    *job.Manager
	dispatcher job.Dispatcher
	logger     logging.Logger
	thresholds Thresholds

	startedAt time.Time
	throughput *Throughput
	lastProcessedTotal int

	mu        sync.Mutex
	lastFired map[string]time.Time

	stop chan struct{}
	once sync.Once
}

// NewAgent constructs a Monitoring Agent.
func NewAgent(repos storage.Contract, pool *storage.Pool, manager *job.Manager, dispatcher job.Dispatcher, thresholds Thresholds, logger logging.Logger) *Agent {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if thresholds.Cooldown <= 0 {
		thresholds.Cooldown = defaultCooldown
	}
	if thresholds.MinSuccessRate <= 0 {
		thresholds.MinSuccessRate = 0.8
	}
	return &Agent{
		repos:      repos,
		pool:       pool,
		manager:    manager,
		dispatcher: dispatcher,
		logger:     logger,
		thresholds: thresholds,
		startedAt:  time.Now(),
		throughput: NewThroughput(),
		lastFired:  make(map[string]time.Time),
		stop:       make(chan struct{}),
	}
}

// Start begins the background sampling loop.
func (a *Agent) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.sample(ctx)
			case <-a.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (a *Agent) Stop() {
	a.once.Do(func() { close(a.stop) })
}

// Sample takes and returns one observation, usable directly by /health.
func (a *Agent) Sample(ctx context.Context) Sample {
	return a.sample(ctx)
}

func (a *Agent) sample(ctx context.Context) Sample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	activeJobs, _ := a.manager.GetActive(ctx)

	var processedTotal int
	for _, activeJob := range activeJobs {
		processedTotal += activeJob.ProcessedCount
	}
	a.throughput.Record(int64(processedTotal - a.lastProcessedTotal))
	a.lastProcessedTotal = processedTotal

	dbHealthy := true
	var dbFails int64
	if a.pool != nil {
		dbHealthy = a.pool.Health().IsHealthy()
		dbFails = a.pool.Health().ConsecutiveFailures()
	}

	errCount24h, topTypes := a.recentErrorSummary(ctx)

	snapshot := Sample{
		Timestamp:             time.Now(),
		ActiveJobs:            len(activeJobs),
		ErrorCount24h:          errCount24h,
		TopErrorTypes:         topTypes,
		MemoryAllocMB:         float64(memStats.Alloc) / (1024 * 1024),
		UptimeSeconds:         time.Since(a.startedAt).Seconds(),
		DBHealthy:             dbHealthy,
		DBConsecutiveFailures: dbFails,
		Throughput:            a.throughput.Summarize(),
	}

	if dbFails >= a.thresholds.MaxConsecutiveDBFails && a.thresholds.MaxConsecutiveDBFails > 0 {
		a.raise(ctx, "database_unhealthy", "global", map[string]interface{}{
			"alert_type":             "database_unhealthy",
			"consecutive_failures":   dbFails,
		})
	}

	for _, activeJob := range activeJobs {
		a.checkJobErrorRate(ctx, activeJob)
	}

	return snapshot
}

// OnProgress implements the job:progress subscription: raise high_error_rate
// when a job's running success rate drops below the configured floor
// (spec §4.7 "raises high_error_rate when per-job success rate falls below
// minSuccessRate after any progress beat").
func (a *Agent) OnProgress(ctx context.Context, currentJob domain.Job) {
	a.checkJobErrorRate(ctx, currentJob)
}

func (a *Agent) checkJobErrorRate(ctx context.Context, currentJob domain.Job) {
	if currentJob.ProcessedCount == 0 {
		return
	}
	successRate := float64(currentJob.SuccessCount) / float64(currentJob.ProcessedCount)
	if successRate >= a.thresholds.MinSuccessRate {
		return
	}

	errCount, _ := a.repos.Errors.CountByJob(ctx, currentJob.ID)
	a.raise(ctx, "high_error_rate", currentJob.ID, map[string]interface{}{
		"job_id":          currentJob.ID,
		"alert_type":      "high_error_rate",
		"shop_type":       currentJob.ShopType,
		"error_rate":      1 - successRate,
		"total_errors":    errCount,
		"processed_count": currentJob.ProcessedCount,
	})
}

// recentErrorSummary scans jobs created within the last 24 hours and tallies
// their processing errors by type (spec §4.7 "last 24 h error count and top
// error types"). The types come back most frequent first.
func (a *Agent) recentErrorSummary(ctx context.Context) (int, []string) {
	jobs, err := a.repos.Jobs.List(ctx, storage.JobFilters{Limit: 500})
	if err != nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	total := 0
	byType := make(map[string]int)
	for _, candidate := range jobs {
		if candidate.CreatedAt.Before(cutoff) {
			continue
		}
		errs, err := a.repos.Errors.ListByJob(ctx, candidate.ID, 1000, 0)
		if err != nil {
			continue
		}
		total += len(errs)
		for _, e := range errs {
			byType[string(e.ErrorType)]++
		}
	}

	top := make([]string, 0, len(byType))
	for t := range byType {
		top = append(top, t)
	}
	sort.Slice(top, func(i, j int) bool {
		if byType[top[i]] != byType[top[j]] {
			return byType[top[i]] > byType[top[j]]
		}
		return top[i] < top[j]
	})
	return total, top
}

// raise forwards an alert through the dispatcher unless its (type, key)
// pair is still in cooldown (spec §4.7).
func (a *Agent) raise(ctx context.Context, alertType, key string, data map[string]interface{}) {
	cooldownKey := alertType + "|" + key

	a.mu.Lock()
	last, fired := a.lastFired[cooldownKey]
	if fired && time.Since(last) < a.thresholds.Cooldown {
		a.mu.Unlock()
		return
	}
	a.lastFired[cooldownKey] = time.Now()
	a.mu.Unlock()

	a.logger.Warn("monitoring alert raised", logging.Fields.String("alert_type", alertType), logging.Fields.String("key", key))
	if a.dispatcher != nil {
		a.dispatcher.Post(ctx, job.EventProcessingHighError, data)
	}
}

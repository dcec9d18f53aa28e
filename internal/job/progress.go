// Package job implements the job lifecycle state machine: pending, running,
// completed, failed, cancelled (spec §4.5), cooperative cancellation at
// batch boundaries, and progress reporting for the Control Surface.
package job

import (
	"sync"
	"time"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// ProgressTracker accumulates per-batch counts for one job and produces
// read-only snapshots. The batch-count math (ceiling division, current vs.
// total batches) is adapted from the teacher's progress.BatchTracker, which
// drove a terminal progress bar; here it drives a JSON snapshot instead,
// since the Job Manager reports progress over HTTP (spec §6.1
// GET /jobs/{id}/progress).
type ProgressTracker struct {
	mu sync.Mutex

	jobID     string
	total     int
	batchSize int
	startTime time.Time

	processedBatches int
	processed        int
	success          int
	failed           int
	skipped          int
	deduped          int
}

// NewProgressTracker creates a tracker for a job with a known product count.
func NewProgressTracker(jobID string, total, batchSize int) *ProgressTracker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &ProgressTracker{
		jobID:     jobID,
		total:     total,
		batchSize: batchSize,
		startTime: time.Now(),
	}
}

// RecordBatch folds one batch's outcome counts into the running totals.
func (t *ProgressTracker) RecordBatch(success, failed, skipped, deduped int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processedBatches++
	t.success += success
	t.failed += failed
	t.skipped += skipped
	t.deduped += deduped
	t.processed = t.success + t.failed + t.skipped
}

// Snapshot renders the current progress for a given job status.
func (t *ProgressTracker) Snapshot(status domain.JobStatus) domain.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	totalBatches := (t.total + t.batchSize - 1) / t.batchSize
	if totalBatches < 1 {
		totalBatches = 1
	}

	var percentage float64
	if t.total > 0 {
		percentage = float64(t.processed) / float64(t.total) * 100
	}

	snapshot := domain.Progress{
		JobID:              t.jobID,
		Status:             status,
		ProcessedCount:     t.processed,
		TotalProducts:      t.total,
		SuccessCount:       t.success,
		FailedCount:        t.failed,
		SkippedCount:       t.skipped,
		DedupedCount:       t.deduped,
		ProgressPercentage: percentage,
		CurrentBatch:       t.processedBatches,
		TotalBatches:       totalBatches,
	}

	if t.processed > 0 && t.processed < t.total {
		elapsed := time.Since(t.startTime)
		totalTime := elapsed * time.Duration(t.total) / time.Duration(t.processed)
		eta := t.startTime.Add(totalTime)
		snapshot.EstimatedCompletion = &eta
	}

	return snapshot
}

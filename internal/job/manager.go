package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/storage"
)

// Dispatcher is the subset of the webhook layer the Job Manager needs,
// kept as an interface so tests can substitute a recording fake.
type Dispatcher interface {
	Post(ctx context.Context, event string, data map[string]interface{})
}

// Config is the caller-supplied intent behind create() (spec §4.5).
type Config struct {
	ShopType         string
	BatchSize        int
	EnforceStructure bool
	SchemaVersion    string
	MaxRawRows       int
	Metadata         map[string]interface{}
}

const defaultMaxRawRows = 10000
const defaultBatchSize = 100

// activeJob tracks the background pipeline state for one running job.
type activeJob struct {
	cancel     chan struct{}
	cancelOnce sync.Once
	tracker    *ProgressTracker
	reason     string
}

// Manager owns the job entity from creation to terminal state (spec §4.5).
// It is the only mutator of a job's status fields; the Batch Adapter owns
// staging/processed writes and error creation for rows it handles.
type Manager struct {
	repos       storage.Contract
	adapter     *batch.Adapter
	dispatcher  Dispatcher
	logger      logging.Logger
	checkpoints *CheckpointStore
	pool        *storage.Pool

	mu     sync.RWMutex
	active map[string]*activeJob
}

// NewManager constructs a Job Manager. Checkpointing is disabled until
// WithCheckpointStore is called.
func NewManager(repos storage.Contract, adapter *batch.Adapter, dispatcher Dispatcher, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Manager{
		repos:      repos,
		adapter:    adapter,
		dispatcher: dispatcher,
		logger:     logger,
		active:     make(map[string]*activeJob),
	}
}

// WithCheckpointStore attaches a local checkpoint cache and returns the same
// Manager for chaining at construction time.
func (m *Manager) WithCheckpointStore(store *CheckpointStore) *Manager {
	m.checkpoints = store
	return m
}

// WithTransactionalPool attaches a live Postgres pool so each batch's
// staging+processed+error writes commit atomically (spec §4.3, §4.4). Without
// it, ProcessBatch writes straight through the Manager's own repos, which is
// the behavior tests using the in-memory contract rely on.
func (m *Manager) WithTransactionalPool(pool *storage.Pool) *Manager {
	m.pool = pool
	return m
}

// Create inserts a pending job and allocates its id.
func (m *Manager) Create(ctx context.Context, cfg Config) (*domain.Job, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRawRows <= 0 || cfg.MaxRawRows > defaultMaxRawRows {
		cfg.MaxRawRows = defaultMaxRawRows
	}

	metadata := make(map[string]interface{}, len(cfg.Metadata)+1)
	for k, v := range cfg.Metadata {
		metadata[k] = v
	}
	metadata["max_raw_rows"] = cfg.MaxRawRows

	now := time.Now()
	newJob := domain.Job{
		ShopType:         cfg.ShopType,
		Status:           domain.JobPending,
		BatchSize:        cfg.BatchSize,
		EnforceStructure: cfg.EnforceStructure,
		SchemaVersion:    cfg.SchemaVersion,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	id, err := m.repos.Jobs.Create(ctx, newJob)
	if err != nil {
		return nil, fmt.Errorf("job: create: %w", err)
	}
	newJob.ID = id
	return &newJob, nil
}

// Start rejects a non-pending job, reads the bounded raw-row set for its
// shop type, flips it to running, and spawns the background pipeline.
func (m *Manager) Start(ctx context.Context, jobID string) error {
	existing, err := m.repos.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job: start: %w", err)
	}
	if existing.Status != domain.JobPending {
		return fmt.Errorf("job: start: job %s is %s, not pending", jobID, existing.Status)
	}

	maxRows := defaultMaxRawRows
	if v, ok := existing.Metadata["max_raw_rows"].(int); ok && v > 0 {
		maxRows = v
	} else if v, ok := existing.Metadata["max_raw_rows"].(float64); ok && v > 0 {
		maxRows = int(v)
	}

	rawRows, err := m.repos.Raw.ListByShop(ctx, existing.ShopType, maxRows)
	if err != nil {
		return fmt.Errorf("job: start: list raw rows: %w", err)
	}

	startedAt := time.Now()
	existing.Status = domain.JobRunning
	existing.TotalProducts = len(rawRows)
	existing.StartedAt = &startedAt
	existing.UpdatedAt = startedAt
	if err := m.repos.Jobs.Update(ctx, *existing); err != nil {
		return fmt.Errorf("job: start: persist running state: %w", err)
	}

	aj := &activeJob{
		cancel:  make(chan struct{}),
		tracker: NewProgressTracker(jobID, len(rawRows), existing.BatchSize),
	}
	m.mu.Lock()
	m.active[jobID] = aj
	m.mu.Unlock()

	m.dispatch(ctx, EventJobStarted, map[string]interface{}{
		"job_id":         jobID,
		"shop_type":      existing.ShopType,
		"total_products": existing.TotalProducts,
		"status":         string(existing.Status),
	})

	go m.run(*existing, rawRows, aj)
	return nil
}

// Cancel requests cooperative cancellation; the pipeline honors it at the
// next batch boundary (spec §4.5, §5).
func (m *Manager) Cancel(ctx context.Context, jobID, reason string) error {
	current, err := m.repos.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job: cancel: %w", err)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("job: cancel: job %s is already %s", jobID, current.Status)
	}

	m.mu.Lock()
	aj, running := m.active[jobID]
	m.mu.Unlock()
	if running {
		aj.cancelOnce.Do(func() {
			aj.reason = reason
			close(aj.cancel)
		})
		return nil
	}

	// Job never entered the running pipeline (still pending): cancel directly.
	current.Status = domain.JobCancelled
	current.ErrorMessage = reason
	current.UpdatedAt = time.Now()
	return m.repos.Jobs.Update(ctx, *current)
}

// Progress returns the live counters for a running job, or the terminal
// snapshot reconstructed from storage once it has finished.
func (m *Manager) Progress(ctx context.Context, jobID string) (domain.Progress, error) {
	m.mu.RLock()
	aj, running := m.active[jobID]
	m.mu.RUnlock()

	current, err := m.repos.Jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("job: progress: %w", err)
	}
	if running {
		return aj.tracker.Snapshot(current.Status), nil
	}

	var percentage float64
	if current.TotalProducts > 0 {
		percentage = float64(current.ProcessedCount) / float64(current.TotalProducts) * 100
	}
	return domain.Progress{
		JobID:              current.ID,
		Status:             current.Status,
		ProcessedCount:     current.ProcessedCount,
		TotalProducts:      current.TotalProducts,
		SuccessCount:       current.SuccessCount,
		FailedCount:        current.FailedCount,
		SkippedCount:       current.SkippedCount,
		DedupedCount:       current.DedupedCount,
		ProgressPercentage: percentage,
	}, nil
}

// LastCheckpoint returns the most recently written local checkpoint for a
// job, if checkpointing is enabled and one exists. Used to report
// last-known progress for a job whose running goroutine died with the
// process before its final batch was persisted.
func (m *Manager) LastCheckpoint(jobID string) (*Checkpoint, error) {
	return m.checkpoints.Load(jobID)
}

// List implements JobRepository.List passthrough for the Control Surface.
func (m *Manager) List(ctx context.Context, filters storage.JobFilters) ([]domain.Job, error) {
	return m.repos.Jobs.List(ctx, filters)
}

// GetByID implements getById.
func (m *Manager) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.repos.Jobs.Get(ctx, jobID)
}

// GetErrors implements getErrors.
func (m *Manager) GetErrors(ctx context.Context, jobID string, limit, offset int) ([]domain.ProcessingError, error) {
	return m.repos.Errors.ListByJob(ctx, jobID, limit, offset)
}

// GetActive implements getActive: jobs with a live background pipeline.
func (m *Manager) GetActive(ctx context.Context) ([]domain.Job, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		current, err := m.repos.Jobs.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *current)
	}
	return out, nil
}

// run is the background pipeline: partition raw rows into batches, drive
// the Batch Adapter sequentially, and persist/emit progress (spec §4.5).
func (m *Manager) run(currentJob domain.Job, rawRows []domain.RawRow, aj *activeJob) {
	ctx := context.Background()
	defer func() {
		m.mu.Lock()
		delete(m.active, currentJob.ID)
		m.mu.Unlock()
	}()

	batchSize := currentJob.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	totalBatches := (len(rawRows) + batchSize - 1) / batchSize
	if totalBatches < 1 {
		totalBatches = 1
	}

	for batchIndex := 0; batchIndex*batchSize < len(rawRows); batchIndex++ {
		select {
		case <-aj.cancel:
			reason := aj.reason
			if reason == "" {
				reason = "cancelled by request"
			}
			m.finish(ctx, &currentJob, domain.JobCancelled, reason)
			return
		default:
		}

		start := batchIndex * batchSize
		end := start + batchSize
		if end > len(rawRows) {
			end = len(rawRows)
		}
		slice := rawRows[start:end]

		m.logger.Info("batch started", logging.Fields.Batch(currentJob.ID, batchIndex+1, len(slice))...)

		desc := batch.Descriptor{
			JobID:            currentJob.ID,
			ShopType:         currentJob.ShopType,
			BatchSize:        batchSize,
			EnforceStructure: currentJob.EnforceStructure,
			SchemaVersion:    currentJob.SchemaVersion,
		}
		var result batch.Result
		var err error
		if m.pool != nil {
			err = m.pool.WithBatchTransaction(ctx, m.repos, func(txRepos storage.Contract) error {
				var txErr error
				result, txErr = m.adapter.ProcessBatch(ctx, desc, slice, txRepos)
				return txErr
			})
		} else {
			result, err = m.adapter.ProcessBatch(ctx, desc, slice, m.repos)
		}
		if err != nil {
			m.logger.Error("batch processing failed", err, logging.Fields.Batch(currentJob.ID, batchIndex+1, len(slice))...)
			m.finish(ctx, &currentJob, domain.JobFailed, err.Error())
			return
		}

		aj.tracker.RecordBatch(result.Success, result.Failed, result.Skipped, result.Deduped)
		currentJob.ProcessedCount += result.Processed
		currentJob.SuccessCount += result.Success
		currentJob.FailedCount += result.Failed
		currentJob.SkippedCount += result.Skipped
		currentJob.DedupedCount += result.Deduped
		currentJob.UpdatedAt = time.Now()

		if err := m.repos.Jobs.Update(ctx, currentJob); err != nil {
			m.logger.Error("failed to persist job progress", err, zap.String("job_id", currentJob.ID))
		}
		if err := m.checkpoints.Save(checkpointFromJob(currentJob)); err != nil {
			m.logger.Warn("failed to write job checkpoint", zap.Error(err))
		}

		m.logger.Info("batch completed", logging.Fields.Counts(result.Success, result.Failed, result.Skipped, result.Deduped)...)

		snapshot := aj.tracker.Snapshot(domain.JobRunning)
		if (batchIndex+1)%10 == 0 || batchIndex+1 == totalBatches {
			m.dispatch(ctx, EventJobProgress, map[string]interface{}{
				"job_id":              currentJob.ID,
				"progress_percentage": snapshot.ProgressPercentage,
				"processed_count":     snapshot.ProcessedCount,
				"total_products":      snapshot.TotalProducts,
				"success_count":       snapshot.SuccessCount,
				"failed_count":        snapshot.FailedCount,
				"current_batch":       snapshot.CurrentBatch,
				"total_batches":       snapshot.TotalBatches,
			})
		}
	}

	m.finish(ctx, &currentJob, domain.JobCompleted, "")
}

// finish persists the terminal state and emits the matching webhook.
func (m *Manager) finish(ctx context.Context, currentJob *domain.Job, status domain.JobStatus, reason string) {
	completedAt := time.Now()
	var duration int64
	if currentJob.StartedAt != nil {
		duration = completedAt.Sub(*currentJob.StartedAt).Milliseconds()
	}

	currentJob.Status = status
	currentJob.CompletedAt = &completedAt
	currentJob.DurationMS = duration
	currentJob.ErrorMessage = reason
	currentJob.UpdatedAt = completedAt

	if err := m.repos.Jobs.Update(ctx, *currentJob); err != nil {
		m.logger.Error("failed to persist terminal job state", err, zap.String("job_id", currentJob.ID))
	}
	if err := m.checkpoints.Delete(currentJob.ID); err != nil {
		m.logger.Warn("failed to remove job checkpoint", zap.Error(err))
	}

	switch status {
	case domain.JobCompleted:
		errCount, _ := m.repos.Errors.CountByJob(ctx, currentJob.ID)
		m.dispatch(ctx, EventJobCompleted, map[string]interface{}{
			"job_id":          currentJob.ID,
			"status":          string(status),
			"total_processed": currentJob.ProcessedCount,
			"success_count":   currentJob.SuccessCount,
			"failed_count":    currentJob.FailedCount,
			"skipped_count":   currentJob.SkippedCount,
			"deduped_count":   currentJob.DedupedCount,
			"duration_ms":     currentJob.DurationMS,
			"error_count":     errCount,
		})
	case domain.JobFailed:
		m.dispatch(ctx, EventJobFailed, map[string]interface{}{
			"job_id":          currentJob.ID,
			"status":          string(status),
			"shop_type":       currentJob.ShopType,
			"error_message":   reason,
			"processed_count": currentJob.ProcessedCount,
			"failed_count":    currentJob.FailedCount,
		})
	case domain.JobCancelled:
		m.dispatch(ctx, EventJobFailed, map[string]interface{}{
			"job_id":          currentJob.ID,
			"status":          string(status),
			"shop_type":       currentJob.ShopType,
			"error_message":   reason,
			"processed_count": currentJob.ProcessedCount,
			"failed_count":    currentJob.FailedCount,
		})
	}
}

func (m *Manager) dispatch(ctx context.Context, event string, data map[string]interface{}) {
	if m.dispatcher == nil {
		return
	}
	m.dispatcher.Post(ctx, event, data)
}

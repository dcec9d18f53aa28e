package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// Checkpoint is a point-in-time snapshot of one job's counters, written to
// disk after every batch so a process restart mid-job can report the last
// known state without waiting on a database round trip (spec §4.5, §5).
type Checkpoint struct {
	JobID          string           `json:"job_id"`
	ShopType       string           `json:"shop_type"`
	Status         domain.JobStatus `json:"status"`
	ProcessedCount int              `json:"processed_count"`
	SuccessCount   int              `json:"success_count"`
	FailedCount    int              `json:"failed_count"`
	SkippedCount   int              `json:"skipped_count"`
	DedupedCount   int              `json:"deduped_count"`
	TotalProducts  int              `json:"total_products"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CheckpointStore persists checkpoints as one JSON file per job. It is a
// best-effort local cache alongside the database record, not a substitute
// for it: Manager.Progress still falls back to storage.JobRepository once a
// job no longer has a live goroutine tracking it.
type CheckpointStore struct {
	basePath string
}

// NewCheckpointStore creates a store rooted at basePath, creating the
// directory on first use. A zero-value basePath disables checkpointing.
func NewCheckpointStore(basePath string) *CheckpointStore {
	return &CheckpointStore{basePath: basePath}
}

// Save writes the checkpoint, overwriting any previous one for the same job.
func (s *CheckpointStore) Save(ckpt Checkpoint) error {
	if s == nil || s.basePath == "" {
		return nil
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	tmp := s.path(ckpt.JobID) + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("checkpoint: create file: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ckpt); err != nil {
		file.Close()
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	return os.Rename(tmp, s.path(ckpt.JobID))
}

// Load returns the last checkpoint recorded for jobID, or nil if none exists.
func (s *CheckpointStore) Load(jobID string) (*Checkpoint, error) {
	if s == nil || s.basePath == "" {
		return nil, nil
	}
	file, err := os.Open(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer file.Close()

	var ckpt Checkpoint
	if err := json.NewDecoder(file).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	return &ckpt, nil
}

// Delete removes a job's checkpoint once it reaches a terminal state; the
// database row is the durable record from that point on.
func (s *CheckpointStore) Delete(jobID string) error {
	if s == nil || s.basePath == "" {
		return nil
	}
	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}

func (s *CheckpointStore) path(jobID string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("job_%s.json", jobID))
}

func checkpointFromJob(j domain.Job) Checkpoint {
	return Checkpoint{
		JobID:          j.ID,
		ShopType:       j.ShopType,
		Status:         j.Status,
		ProcessedCount: j.ProcessedCount,
		SuccessCount:   j.SuccessCount,
		FailedCount:    j.FailedCount,
		SkippedCount:   j.SkippedCount,
		DedupedCount:   j.DedupedCount,
		TotalProducts:  j.TotalProducts,
		UpdatedAt:      j.UpdatedAt,
	}
}

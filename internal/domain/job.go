// Package domain holds the plain data types shared across the processing
// engine: jobs, raw/staging/processed rows, and processing errors. Its only
// behavior is small helpers (JobStatus.Terminal, SeverityFor) — the state
// machine lives in internal/job, the persistence lives in internal/storage.
package domain

import "time"

// JobStatus is the lifecycle state of a processing job (spec §4.5).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether status allows no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is the persistent job entity (spec §3.2).
type Job struct {
	ID               string    `json:"id"`
	ShopType         string    `json:"shop_type"`
	Status           JobStatus `json:"status"`
	BatchSize        int       `json:"batch_size"`
	EnforceStructure bool      `json:"enforce_structure"`
	SchemaVersion    string    `json:"schema_version"`

	TotalProducts  int `json:"total_products"`
	ProcessedCount int `json:"processed_count"`
	SuccessCount   int `json:"success_count"`
	FailedCount    int `json:"failed_count"`
	SkippedCount   int `json:"skipped_count"`
	DedupedCount   int `json:"deduped_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`

	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress is the read-only snapshot returned by Job Manager.progress().
type Progress struct {
	JobID                string    `json:"job_id"`
	Status               JobStatus `json:"status"`
	ProcessedCount       int       `json:"processed_count"`
	TotalProducts        int       `json:"total_products"`
	SuccessCount         int       `json:"success_count"`
	FailedCount          int       `json:"failed_count"`
	SkippedCount         int       `json:"skipped_count"`
	DedupedCount         int       `json:"deduped_count"`
	ProgressPercentage   float64   `json:"progress_percentage"`
	CurrentBatch         int       `json:"current_batch"`
	TotalBatches         int       `json:"total_batches"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
}

// ErrorSeverity classifies a ProcessingError (spec §3.2, §4.4).
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorType is the tagged error kind (spec §7).
type ErrorType string

const (
	ErrValidation       ErrorType = "VALIDATION_ERROR"
	ErrTransformation   ErrorType = "TRANSFORMATION_ERROR"
	ErrStructure        ErrorType = "STRUCTURE_VIOLATION"
	ErrBatchProcessing  ErrorType = "BATCH_PROCESSING_FAILURE"
	ErrDatabase         ErrorType = "DATABASE_ERROR"
	ErrJobLifecycle     ErrorType = "JOB_LIFECYCLE_ERROR"
	ErrWebhookDelivery  ErrorType = "WEBHOOK_DELIVERY_FAILURE"
)

// SeverityFor implements the classification table of spec §4.4.
func SeverityFor(errType ErrorType, requiredFieldMissing bool) ErrorSeverity {
	switch errType {
	case ErrValidation:
		if requiredFieldMissing {
			return SeverityHigh
		}
		return SeverityMedium
	case ErrStructure:
		return SeverityCritical
	case ErrTransformation, ErrBatchProcessing:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ProcessingError is the persistent error entity (spec §3.2).
type ProcessingError struct {
	ID           string                 `json:"id"`
	JobID        string                 `json:"job_id"`
	RawProductID *string                `json:"raw_product_id,omitempty"`
	ProductID    *string                `json:"product_id,omitempty"`
	ShopType     string                 `json:"shop_type"`
	ErrorType    ErrorType              `json:"error_type"`
	ErrorMessage string                 `json:"error_message"`
	ErrorDetails map[string]interface{} `json:"error_details,omitempty"`
	StackTrace   *string                `json:"stack_trace,omitempty"`
	Severity     ErrorSeverity          `json:"severity"`
	IsResolved   bool                   `json:"is_resolved"`
	CreatedAt    time.Time              `json:"created_at"`
}

// RawRow is the immutable upstream scraped record (spec §3.2).
type RawRow struct {
	ID        string                 `json:"id"`
	ShopType  string                 `json:"shop_type"`
	JobID     string                 `json:"job_id,omitempty"`
	RawData   map[string]interface{} `json:"raw_data"`
	ScrapedAt time.Time              `json:"scraped_at"`
}

// StagingRow mirrors the transformed intermediate, keyed by (shop_type, external_id).
type StagingRow struct {
	ShopType     string                 `json:"shop_type"`
	ExternalID   string                 `json:"external_id"`
	RawProductID string                 `json:"raw_product_id"`
	Name         string                 `json:"name"`
	Price        float64                `json:"price"`
	ContentHash  string                 `json:"content_hash"`
	Data         map[string]interface{} `json:"data"`
	ProcessedAt  time.Time              `json:"processed_at"`
}

// ProcessedRow is the canonical record plus its storage envelope (spec §3.2).
type ProcessedRow struct {
	Record        map[string]interface{} `json:"record"` // the 32-field canonical template
	JobID         string                 `json:"job_id"`
	RawProductID  string                 `json:"raw_product_id"`
	SchemaVersion string                 `json:"schema_version"`
	UnifiedID     string                 `json:"unified_id"`
	ShopType      string                 `json:"shop_type"`
	ExternalID    string                 `json:"external_id"`
	ContentHash   string                 `json:"content_hash"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

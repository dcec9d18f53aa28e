package storage

import (
	"context"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// RawRepository persists upstream scraped rows (raw.products, spec §3.2).
type RawRepository interface {
	Insert(ctx context.Context, row domain.RawRow) (string, error)
	ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.RawRow, error)
	// ListByShop returns up to limit raw rows for shopType, the bounded read
	// start() performs (spec §4.5, ≤10,000 rows per job). Rows are returned
	// whether or not an earlier job already read them; none are claimed.
	ListByShop(ctx context.Context, shopType string, limit int) ([]domain.RawRow, error)
	CountByShop(ctx context.Context, shopType string) (int, error)
}

// StagingRepository persists the intermediate transformed rows keyed by
// (shop_type, external_id) (staging.products, spec §3.2, §6.2).
type StagingRepository interface {
	// Upsert writes or replaces the staging row for (ShopType, ExternalID).
	// wasUpdate reports whether an existing row was overwritten. Dedup
	// counting (spec §8 property 2) comes from ProcessedRepository.Upsert's
	// unchanged flag, not from this value.
	Upsert(ctx context.Context, row domain.StagingRow) (wasUpdate bool, err error)
	Get(ctx context.Context, shopType, externalID string) (*domain.StagingRow, error)
}

// ProcessedRepository persists canonical records keyed by
// (shop_type, external_id, schema_version) (processed.products, spec §3.2, §6.2).
type ProcessedRepository interface {
	// Upsert writes or replaces the processed row. If row.UnifiedID is
	// empty, the implementation generates it as
	// "<shop_type>_<external_id>_<schema_version>" before writing (spec §4.3).
	// unchanged reports whether the write was a no-op dedup (existing row,
	// identical content_hash), the signal deduped_count counts (spec §8 property 2).
	Upsert(ctx context.Context, row domain.ProcessedRow) (unified string, unchanged bool, err error)
	Get(ctx context.Context, unifiedID string) (*domain.ProcessedRow, error)
	List(ctx context.Context, filters ProductFilters) ([]domain.ProcessedRow, error)
}

// ProductFilters narrows a processed-row listing (spec §6.1 GET /products).
type ProductFilters struct {
	ShopType string
	Limit    int
	Offset   int
}

// JobRepository persists job lifecycle state (processing_jobs, spec §3.2, §4.5).
type JobRepository interface {
	Create(ctx context.Context, job domain.Job) (string, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job domain.Job) error
	List(ctx context.Context, filters JobFilters) ([]domain.Job, error)
}

// JobFilters narrows a job listing (spec §6.1 GET /jobs).
type JobFilters struct {
	ShopType string
	Status   domain.JobStatus
	Limit    int
	Offset   int
}

// ErrorRepository is an append-only log of per-row processing failures
// (processing_errors, spec §3.2, §7).
type ErrorRepository interface {
	Insert(ctx context.Context, procErr domain.ProcessingError) (string, error)
	ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.ProcessingError, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
}

// ComplianceAuditor re-validates processed rows against the canonical
// template and reports the structural drift rate (spec §4.1, §4.4 step 3b).
type ComplianceAuditor interface {
	AuditJob(ctx context.Context, jobID string) (ComplianceReport, error)
}

// ComplianceReport summarizes a compliance audit run.
type ComplianceReport struct {
	JobID           string
	RecordsAudited  int
	Violations      int
	ComplianceRate  float64
	ViolationFields []string
}

// HealthProbe reports whether the storage layer is reachable (spec §6.1
// GET /health, GET /ready).
type HealthProbe interface {
	HealthCheck() error
	IsHealthy() bool
}

// Contract bundles every repository the Batch Adapter, Job Manager, and
// Control Surface depend on, so callers take one dependency instead of seven.
type Contract struct {
	Raw        RawRepository
	Staging    StagingRepository
	Processed  ProcessedRepository
	Jobs       JobRepository
	Errors     ErrorRepository
	Compliance ComplianceAuditor
	Health     HealthProbe
}

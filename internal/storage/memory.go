package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Memory is an in-process fake implementing every Storage Contract
// interface, used by unit tests that exercise the Job Manager and Batch
// Adapter without a live Postgres instance.
type Memory struct {
	mu sync.Mutex

	raw       []domain.RawRow
	staging   map[string]domain.StagingRow // key: shop_type/external_id
	processed map[string]domain.ProcessedRow
	jobs      map[string]domain.Job
	errs      []domain.ProcessingError
	healthy   bool
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		staging:   make(map[string]domain.StagingRow),
		processed: make(map[string]domain.ProcessedRow),
		jobs:      make(map[string]domain.Job),
		healthy:   true,
	}
}

func stagingKey(shopType, externalID string) string { return shopType + "/" + externalID }

// Insert implements RawRepository.
func (m *Memory) Insert(_ context.Context, row domain.RawRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.raw = append(m.raw, row)
	return row.ID, nil
}

// ListByJob implements RawRepository.
func (m *Memory) ListByJob(_ context.Context, jobID string, limit, offset int) ([]domain.RawRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RawRow
	for _, r := range m.raw {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return paginate(out, limit, offset), nil
}

// ListByShop implements RawRepository: a bounded read of raw rows for
// shopType, in insertion order (spec §4.5 start()). Raw rows are
// read-only to the engine, so this does not mark rows as claimed.
func (m *Memory) ListByShop(_ context.Context, shopType string, limit int) ([]domain.RawRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RawRow
	for _, r := range m.raw {
		if r.ShopType == shopType {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// CountByShop implements RawRepository.
func (m *Memory) CountByShop(_ context.Context, shopType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.raw {
		if r.ShopType == shopType {
			count++
		}
	}
	return count, nil
}

// UpsertStaging implements StagingRepository.
func (m *Memory) UpsertStaging(_ context.Context, row domain.StagingRow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stagingKey(row.ShopType, row.ExternalID)
	_, existed := m.staging[key]
	m.staging[key] = row
	return existed, nil
}

// GetStaging implements StagingRepository.
func (m *Memory) GetStaging(_ context.Context, shopType, externalID string) (*domain.StagingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.staging[stagingKey(shopType, externalID)]
	if !ok {
		return nil, fmt.Errorf("storage: staging row not found for %s/%s", shopType, externalID)
	}
	return &row, nil
}

// UpsertProcessed implements ProcessedRepository.
func (m *Memory) UpsertProcessed(_ context.Context, row domain.ProcessedRow) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.UnifiedID == "" {
		row.UnifiedID = fmt.Sprintf("%s_%s_%s", row.ShopType, row.ExternalID, row.SchemaVersion)
	}
	existing, existed := m.processed[row.UnifiedID]
	if existed && existing.ContentHash == row.ContentHash {
		return row.UnifiedID, true, nil
	}
	m.processed[row.UnifiedID] = row
	return row.UnifiedID, false, nil
}

// GetProcessed implements ProcessedRepository.
func (m *Memory) GetProcessed(_ context.Context, unifiedID string) (*domain.ProcessedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.processed[unifiedID]
	if !ok {
		return nil, fmt.Errorf("storage: processed row not found for %s", unifiedID)
	}
	return &row, nil
}

// ListProcessed implements ProcessedRepository.
func (m *Memory) ListProcessed(_ context.Context, filters ProductFilters) ([]domain.ProcessedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ProcessedRow
	for _, row := range m.processed {
		if filters.ShopType != "" && row.ShopType != filters.ShopType {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnifiedID < out[j].UnifiedID })
	return paginate(out, filters.Limit, filters.Offset), nil
}

// CreateJob implements JobRepository.
func (m *Memory) CreateJob(_ context.Context, job domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	m.jobs[job.ID] = job
	return job.ID, nil
}

// GetJob implements JobRepository.
func (m *Memory) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("storage: job not found: %s", id)
	}
	return &job, nil
}

// UpdateJob implements JobRepository.
func (m *Memory) UpdateJob(_ context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("storage: job not found: %s", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

// ListJobs implements JobRepository.
func (m *Memory) ListJobs(_ context.Context, filters JobFilters) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, job := range m.jobs {
		if filters.ShopType != "" && job.ShopType != filters.ShopType {
			continue
		}
		if filters.Status != "" && job.Status != filters.Status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, filters.Limit, filters.Offset), nil
}

// InsertError implements ErrorRepository.
func (m *Memory) InsertError(_ context.Context, procErr domain.ProcessingError) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if procErr.ID == "" {
		procErr.ID = uuid.NewString()
	}
	m.errs = append(m.errs, procErr)
	return procErr.ID, nil
}

// ListErrorsByJob implements ErrorRepository.
func (m *Memory) ListErrorsByJob(_ context.Context, jobID string, limit, offset int) ([]domain.ProcessingError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ProcessingError
	for _, e := range m.errs {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return paginate(out, limit, offset), nil
}

// CountErrorsByJob implements ErrorRepository.
func (m *Memory) CountErrorsByJob(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.errs {
		if e.JobID == jobID {
			count++
		}
	}
	return count, nil
}

// HealthCheck implements HealthProbe.
func (m *Memory) HealthCheck() error {
	if m.healthy {
		return nil
	}
	return fmt.Errorf("storage: memory backend marked unhealthy")
}

// IsHealthy implements HealthProbe.
func (m *Memory) IsHealthy() bool { return m.healthy }

// SetHealthy lets tests simulate an outage.
func (m *Memory) SetHealthy(healthy bool) { m.healthy = healthy }

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// memoryRaw, memoryStaging, memoryProcessed, memoryJobs, memoryErrors and
// memoryAudit narrow Memory's method set onto the individual Storage
// Contract interfaces, since Memory itself implements the five repositories
// under distinct method names to avoid ambiguous embedding.

type memoryRaw struct{ m *Memory }

func (a memoryRaw) Insert(ctx context.Context, row domain.RawRow) (string, error) {
	return a.m.Insert(ctx, row)
}
func (a memoryRaw) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.RawRow, error) {
	return a.m.ListByJob(ctx, jobID, limit, offset)
}
func (a memoryRaw) ListByShop(ctx context.Context, shopType string, limit int) ([]domain.RawRow, error) {
	return a.m.ListByShop(ctx, shopType, limit)
}
func (a memoryRaw) CountByShop(ctx context.Context, shopType string) (int, error) {
	return a.m.CountByShop(ctx, shopType)
}

type memoryStaging struct{ m *Memory }

func (a memoryStaging) Upsert(ctx context.Context, row domain.StagingRow) (bool, error) {
	return a.m.UpsertStaging(ctx, row)
}
func (a memoryStaging) Get(ctx context.Context, shopType, externalID string) (*domain.StagingRow, error) {
	return a.m.GetStaging(ctx, shopType, externalID)
}

type memoryProcessed struct{ m *Memory }

func (a memoryProcessed) Upsert(ctx context.Context, row domain.ProcessedRow) (string, bool, error) {
	return a.m.UpsertProcessed(ctx, row)
}
func (a memoryProcessed) Get(ctx context.Context, unifiedID string) (*domain.ProcessedRow, error) {
	return a.m.GetProcessed(ctx, unifiedID)
}
func (a memoryProcessed) List(ctx context.Context, filters ProductFilters) ([]domain.ProcessedRow, error) {
	return a.m.ListProcessed(ctx, filters)
}

type memoryJobs struct{ m *Memory }

func (a memoryJobs) Create(ctx context.Context, job domain.Job) (string, error) {
	return a.m.CreateJob(ctx, job)
}
func (a memoryJobs) Get(ctx context.Context, id string) (*domain.Job, error) {
	return a.m.GetJob(ctx, id)
}
func (a memoryJobs) Update(ctx context.Context, job domain.Job) error {
	return a.m.UpdateJob(ctx, job)
}
func (a memoryJobs) List(ctx context.Context, filters JobFilters) ([]domain.Job, error) {
	return a.m.ListJobs(ctx, filters)
}

type memoryErrors struct{ m *Memory }

func (a memoryErrors) Insert(ctx context.Context, procErr domain.ProcessingError) (string, error) {
	return a.m.InsertError(ctx, procErr)
}
func (a memoryErrors) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.ProcessingError, error) {
	return a.m.ListErrorsByJob(ctx, jobID, limit, offset)
}
func (a memoryErrors) CountByJob(ctx context.Context, jobID string) (int, error) {
	return a.m.CountErrorsByJob(ctx, jobID)
}

type memoryAudit struct{ m *Memory }

func (a memoryAudit) AuditJob(ctx context.Context, jobID string) (ComplianceReport, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	report := ComplianceReport{JobID: jobID, ComplianceRate: 1.0}
	for _, row := range a.m.processed {
		if row.JobID != jobID {
			continue
		}
		report.RecordsAudited++
		if !template.Validate(row.Record, template.ValidateOptions{AllowExtras: false, CheckTypes: true}).OK {
			report.Violations++
		}
	}
	if report.RecordsAudited > 0 {
		report.ComplianceRate = float64(report.RecordsAudited-report.Violations) / float64(report.RecordsAudited)
	}
	return report, nil
}

// NewMemoryContract wraps a Memory store as a full Contract, for tests that
// depend on the bundled interface rather than individual repositories.
func NewMemoryContract(m *Memory) Contract {
	return Contract{
		Raw:        memoryRaw{m},
		Staging:    memoryStaging{m},
		Processed:  memoryProcessed{m},
		Jobs:       memoryJobs{m},
		Errors:     memoryErrors{m},
		Compliance: memoryAudit{m},
		Health:     m,
	}
}

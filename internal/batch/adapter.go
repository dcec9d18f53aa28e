package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/logging"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Descriptor carries the per-job context processBatch needs (spec §4.4).
type Descriptor struct {
	JobID            string
	ShopType         string
	BatchSize        int
	EnforceStructure bool
	SchemaVersion    string
}

// Result is the aggregate outcome of processing one batch (spec §4.4).
type Result struct {
	Processed int
	Success   int
	Failed    int
	Skipped   int
	Deduped   int

	ProcessedProducts []domain.ProcessedRow
	StagingProducts   []domain.StagingRow
	Errors            []domain.ProcessingError
	Compliance        storage.ComplianceReport
}

// Adapter implements processBatch: resolve transformer, transform,
// validate, aggregate, audit, upsert (spec §4.4).
type Adapter struct {
	registry *transform.Registry
	logger   logging.Logger
}

// NewAdapter constructs a Batch Adapter.
func NewAdapter(registry *transform.Registry, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Adapter{registry: registry, logger: logger}
}

// ProcessBatch runs the full per-batch algorithm and writes through repos.
// Callers that need atomic staging+processed+error writes (spec §4.3) invoke
// this through Pool.WithBatchTransaction, which passes a repos whose
// Staging/Processed/Errors are bound to one transaction (storage.ContractWithTx);
// callers using the in-memory fake pass the plain storage.Contract directly.
func (a *Adapter) ProcessBatch(ctx context.Context, desc Descriptor, rows []domain.RawRow, repos storage.Contract) (Result, error) {
	transformer, err := a.registry.Get(desc.ShopType)
	if err != nil {
		return Result{}, fmt.Errorf("batch: %w", err)
	}

	var result Result
	type candidate struct {
		raw    domain.RawRow
		record template.Record
		extID  string
	}
	var candidates []candidate

	persistErrors := func() {
		for _, procErr := range result.Errors {
			if _, err := repos.Errors.Insert(ctx, procErr); err != nil {
				a.logger.Error("failed to persist processing error", err, zap.String("job_id", desc.JobID))
			}
		}
	}

	for _, row := range rows {
		outcome := transformer.Transform(row)
		if outcome.Err != nil {
			outcome.Err.JobID = desc.JobID
			outcome.Err.RawProductID = strPtr(row.ID)
			result.Errors = append(result.Errors, *outcome.Err)
			result.Failed++
			continue
		}

		outcome.Record["unified_id"] = fmt.Sprintf("%s_%s_%s", desc.ShopType, outcome.ExternalID, desc.SchemaVersion)
		report := template.Validate(outcome.Record, template.ValidateOptions{AllowExtras: true, CheckTypes: true})
		if len(report.Missing) > 0 || len(report.TypeErrors) > 0 {
			severity := domain.SeverityFor(domain.ErrValidation, len(report.Missing) > 0)
			result.Errors = append(result.Errors, domain.ProcessingError{
				JobID:        desc.JobID,
				RawProductID: strPtr(row.ID),
				ShopType:     desc.ShopType,
				ErrorType:    domain.ErrValidation,
				ErrorMessage: fmt.Sprintf("validation failed: missing=%v typeErrors=%v", report.Missing, report.TypeErrors),
				Severity:     severity,
				CreatedAt:    time.Now(),
			})
			result.Failed++
			continue
		}

		candidates = append(candidates, candidate{raw: row, record: outcome.Record, extID: outcome.ExternalID})
	}

	if len(candidates) == 0 {
		persistErrors()
		result.Processed = result.Success + result.Failed + result.Skipped
		return result, nil
	}

	// Step 4: strict compliance check decides enforce_structure failure
	// (spec §4.4 step 4; extras-only violations are STRUCTURE_VIOLATION,
	// distinct from the VALIDATION_ERROR raised above for missing/typed fields).
	violatingIdx := make(map[int]template.Report)
	for i, c := range candidates {
		strict := template.Validate(c.record, template.ValidateOptions{AllowExtras: false, CheckTypes: true})
		if len(strict.Extras) > 0 {
			violatingIdx[i] = strict
		}
	}

	if desc.EnforceStructure && len(violatingIdx) > 0 {
		for i, c := range candidates {
			if report, violated := violatingIdx[i]; violated {
				result.Errors = append(result.Errors, domain.ProcessingError{
					JobID:        desc.JobID,
					RawProductID: strPtr(c.raw.ID),
					ShopType:     desc.ShopType,
					ErrorType:    domain.ErrStructure,
					ErrorMessage: fmt.Sprintf("structure violation: extras=%v", report.Extras),
					Severity:     domain.SeverityFor(domain.ErrStructure, false),
					CreatedAt:    time.Now(),
				})
			} else {
				result.Errors = append(result.Errors, domain.ProcessingError{
					JobID:        desc.JobID,
					RawProductID: strPtr(c.raw.ID),
					ShopType:     desc.ShopType,
					ErrorType:    domain.ErrBatchProcessing,
					ErrorMessage: "batch failed: structure enforcement violated by sibling row",
					Severity:     domain.SeverityFor(domain.ErrBatchProcessing, false),
					CreatedAt:    time.Now(),
				})
			}
		}
		result.Failed += len(candidates)
		persistErrors()
		result.Processed = result.Success + result.Failed + result.Skipped
		return result, nil
	}

	now := time.Now()
	for i, c := range candidates {
		hash, err := ContentHash(c.record)
		if err != nil {
			return Result{}, fmt.Errorf("batch: content hash: %w", err)
		}

		staging := domain.StagingRow{
			ShopType:     desc.ShopType,
			ExternalID:   c.extID,
			RawProductID: c.raw.ID,
			Name:         stringOr(c.record["title"], ""),
			Price:        floatOr(c.record["current_price"], 0),
			ContentHash:  hash,
			Data:         c.record,
			ProcessedAt:  now,
		}
		wasUpdate, err := repos.Staging.Upsert(ctx, staging)
		if err != nil {
			return Result{}, fmt.Errorf("batch: staging upsert: %w", err)
		}
		_ = wasUpdate

		processedRow := domain.ProcessedRow{
			Record:        c.record,
			JobID:         desc.JobID,
			RawProductID:  c.raw.ID,
			SchemaVersion: desc.SchemaVersion,
			ShopType:      desc.ShopType,
			ExternalID:    c.extID,
			ContentHash:   hash,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		unifiedID, unchanged, err := repos.Processed.Upsert(ctx, processedRow)
		if err != nil {
			return Result{}, fmt.Errorf("batch: processed upsert: %w", err)
		}
		processedRow.UnifiedID = unifiedID

		result.StagingProducts = append(result.StagingProducts, staging)
		result.ProcessedProducts = append(result.ProcessedProducts, processedRow)
		result.Success++
		if unchanged {
			result.Deduped++
		}
		_ = i
	}

	persistErrors()

	if !desc.EnforceStructure && len(violatingIdx) > 0 {
		var fields []string
		for _, report := range violatingIdx {
			fields = append(fields, report.Extras...)
		}
		result.Compliance = storage.ComplianceReport{
			JobID:           desc.JobID,
			RecordsAudited:  len(candidates),
			Violations:      len(violatingIdx),
			ComplianceRate:  float64(len(candidates)-len(violatingIdx)) / float64(len(candidates)),
			ViolationFields: fields,
		}
	} else {
		result.Compliance = storage.ComplianceReport{
			JobID:          desc.JobID,
			RecordsAudited: len(candidates),
			ComplianceRate: 1.0,
		}
	}

	result.Processed = result.Success + result.Failed + result.Skipped
	return result, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func floatOr(v interface{}, fallback float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return fallback
}

package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// PostgresJobs implements JobRepository against processing_jobs (spec §3.2, §4.5).
type PostgresJobs struct {
	db Querier
}

// NewPostgresJobs constructs the job repository.
func NewPostgresJobs(db Querier) *PostgresJobs { return &PostgresJobs{db: db} }

// Create implements JobRepository.
func (j *PostgresJobs) Create(ctx context.Context, job domain.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return "", errors.Wrap(err, "marshal job metadata")
	}

	const query = `
		INSERT INTO processing_jobs
			(id, shop_type, status, batch_size, enforce_structure, schema_version,
			 total_products, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = j.db.Exec(ctx, query,
		job.ID, job.ShopType, job.Status, job.BatchSize, job.EnforceStructure, job.SchemaVersion,
		job.TotalProducts, metadata, job.CreatedAt,
	)
	if err != nil {
		return "", errors.Wrap(err, "create job")
	}
	return job.ID, nil
}

// Get implements JobRepository.
func (j *PostgresJobs) Get(ctx context.Context, id string) (*domain.Job, error) {
	const query = `
		SELECT id, shop_type, status, batch_size, enforce_structure, schema_version,
			total_products, processed_count, success_count, failed_count, skipped_count, deduped_count,
			started_at, completed_at, duration_ms, error_message, metadata, created_at, updated_at
		FROM processing_jobs WHERE id = $1
	`
	var job domain.Job
	var metadata []byte
	err := j.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.ShopType, &job.Status, &job.BatchSize, &job.EnforceStructure, &job.SchemaVersion,
		&job.TotalProducts, &job.ProcessedCount, &job.SuccessCount, &job.FailedCount, &job.SkippedCount, &job.DedupedCount,
		&job.StartedAt, &job.CompletedAt, &job.DurationMS, &job.ErrorMessage, &metadata, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, errors.Wrap(err, "unmarshal job metadata")
		}
	}
	return &job, nil
}

// Update implements JobRepository.
func (j *PostgresJobs) Update(ctx context.Context, job domain.Job) error {
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return errors.Wrap(err, "marshal job metadata")
	}

	const query = `
		UPDATE processing_jobs SET
			status = $2, processed_count = $3, success_count = $4, failed_count = $5,
			skipped_count = $6, deduped_count = $7, started_at = $8, completed_at = $9,
			duration_ms = $10, error_message = $11, metadata = $12, updated_at = $13
		WHERE id = $1
	`
	_, err = j.db.Exec(ctx, query,
		job.ID, job.Status, job.ProcessedCount, job.SuccessCount, job.FailedCount,
		job.SkippedCount, job.DedupedCount, job.StartedAt, job.CompletedAt,
		job.DurationMS, job.ErrorMessage, metadata, job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "update job")
	}
	return nil
}

// List implements JobRepository.
func (j *PostgresJobs) List(ctx context.Context, filters JobFilters) ([]domain.Job, error) {
	const query = `
		SELECT id, shop_type, status, batch_size, enforce_structure, schema_version,
			total_products, processed_count, success_count, failed_count, skipped_count, deduped_count,
			started_at, completed_at, duration_ms, error_message, metadata, created_at, updated_at
		FROM processing_jobs
		WHERE ($1 = '' OR shop_type = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := j.db.Query(ctx, query, filters.ShopType, string(filters.Status),
		limitOrDefault(filters.Limit), filters.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var job domain.Job
		var metadata []byte
		if err := rows.Scan(
			&job.ID, &job.ShopType, &job.Status, &job.BatchSize, &job.EnforceStructure, &job.SchemaVersion,
			&job.TotalProducts, &job.ProcessedCount, &job.SuccessCount, &job.FailedCount, &job.SkippedCount, &job.DedupedCount,
			&job.StartedAt, &job.CompletedAt, &job.DurationMS, &job.ErrorMessage, &metadata, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
				return nil, errors.Wrap(err, "unmarshal job metadata")
			}
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

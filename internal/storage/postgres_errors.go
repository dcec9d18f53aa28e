package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// PostgresErrors implements ErrorRepository against processing_errors, an
// append-only log (spec §5 "Idempotency"/"Error rows are append-only").
type PostgresErrors struct {
	db Querier
}

// NewPostgresErrors constructs the error repository.
func NewPostgresErrors(db Querier) *PostgresErrors { return &PostgresErrors{db: db} }

// Insert implements ErrorRepository.
func (e *PostgresErrors) Insert(ctx context.Context, procErr domain.ProcessingError) (string, error) {
	if procErr.ID == "" {
		procErr.ID = uuid.NewString()
	}
	details, err := json.Marshal(procErr.ErrorDetails)
	if err != nil {
		return "", errors.Wrap(err, "marshal error details")
	}

	const query = `
		INSERT INTO processing_errors
			(id, job_id, raw_product_id, product_id, shop_type, error_type, error_message,
			 error_details, stack_trace, severity, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = e.db.Exec(ctx, query,
		procErr.ID, procErr.JobID, procErr.RawProductID, procErr.ProductID, procErr.ShopType,
		procErr.ErrorType, procErr.ErrorMessage, details, procErr.StackTrace, procErr.Severity,
		procErr.IsResolved, procErr.CreatedAt,
	)
	if err != nil {
		return "", errors.Wrap(err, "insert processing error")
	}
	return procErr.ID, nil
}

// ListByJob implements ErrorRepository.
func (e *PostgresErrors) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.ProcessingError, error) {
	const query = `
		SELECT id, job_id, raw_product_id, product_id, shop_type, error_type, error_message,
			error_details, stack_trace, severity, is_resolved, created_at
		FROM processing_errors
		WHERE job_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`
	rows, err := e.db.Query(ctx, query, jobID, limitOrDefault(limit), offset)
	if err != nil {
		return nil, errors.Wrap(err, "list processing errors")
	}
	defer rows.Close()

	var out []domain.ProcessingError
	for rows.Next() {
		var procErr domain.ProcessingError
		var details []byte
		if err := rows.Scan(&procErr.ID, &procErr.JobID, &procErr.RawProductID, &procErr.ProductID,
			&procErr.ShopType, &procErr.ErrorType, &procErr.ErrorMessage, &details, &procErr.StackTrace,
			&procErr.Severity, &procErr.IsResolved, &procErr.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan processing error")
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &procErr.ErrorDetails); err != nil {
				return nil, errors.Wrap(err, "unmarshal error details")
			}
		}
		out = append(out, procErr)
	}
	return out, rows.Err()
}

// CountByJob implements ErrorRepository.
func (e *PostgresErrors) CountByJob(ctx context.Context, jobID string) (int, error) {
	const query = `SELECT count(*) FROM processing_errors WHERE job_id = $1`
	var count int
	if err := e.db.QueryRow(ctx, query, jobID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count processing errors")
	}
	return count, nil
}

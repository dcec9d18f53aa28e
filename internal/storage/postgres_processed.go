package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// PostgresProcessed implements ProcessedRepository against
// processed.products, unique on (shop_type, external_id, schema_version)
// (spec §6.2).
type PostgresProcessed struct {
	db Querier
}

// NewPostgresProcessed constructs the processed-row repository.
func NewPostgresProcessed(db Querier) *PostgresProcessed { return &PostgresProcessed{db: db} }

// Upsert implements ProcessedRepository. A missing UnifiedID is generated
// here as "<shop_type>_<external_id>_<schema_version>" (spec §4.3), and
// ON CONFLICT compares content_hash so an unchanged re-run is reported as
// unchanged (spec §8 property 2: deduped_count).
func (p *PostgresProcessed) Upsert(ctx context.Context, row domain.ProcessedRow) (string, bool, error) {
	if row.UnifiedID == "" {
		row.UnifiedID = fmt.Sprintf("%s_%s_%s", row.ShopType, row.ExternalID, row.SchemaVersion)
	}
	payload, err := json.Marshal(row.Record)
	if err != nil {
		return "", false, errors.Wrap(err, "marshal processed record")
	}

	const query = `
		INSERT INTO processed.products
			(unified_id, job_id, raw_product_id, schema_version, shop_type, external_id, content_hash, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (shop_type, external_id, schema_version) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			raw_product_id = EXCLUDED.raw_product_id,
			record = EXCLUDED.record,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
		WHERE processed.products.content_hash IS DISTINCT FROM EXCLUDED.content_hash
		RETURNING unified_id
	`
	var returnedID string
	err = p.db.QueryRow(ctx, query,
		row.UnifiedID, row.JobID, row.RawProductID, row.SchemaVersion,
		row.ShopType, row.ExternalID, row.ContentHash, payload, row.UpdatedAt,
	).Scan(&returnedID)
	if err != nil {
		// No row returned means the WHERE guard suppressed the update:
		// content unchanged from the prior run (dedup hit).
		existing, getErr := p.Get(ctx, row.UnifiedID)
		if getErr == nil && existing != nil {
			return row.UnifiedID, true, nil
		}
		return "", false, errors.Wrap(err, "upsert processed row")
	}
	return returnedID, false, nil
}

// Get implements ProcessedRepository.
func (p *PostgresProcessed) Get(ctx context.Context, unifiedID string) (*domain.ProcessedRow, error) {
	const query = `
		SELECT unified_id, job_id, raw_product_id, schema_version, shop_type, external_id, content_hash, record, created_at, updated_at
		FROM processed.products
		WHERE unified_id = $1
	`
	var row domain.ProcessedRow
	var payload []byte
	err := p.db.QueryRow(ctx, query, unifiedID).Scan(
		&row.UnifiedID, &row.JobID, &row.RawProductID, &row.SchemaVersion,
		&row.ShopType, &row.ExternalID, &row.ContentHash, &payload, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get processed row")
	}
	if err := json.Unmarshal(payload, &row.Record); err != nil {
		return nil, errors.Wrap(err, "unmarshal processed record")
	}
	return &row, nil
}

// List implements ProcessedRepository.
func (p *PostgresProcessed) List(ctx context.Context, filters ProductFilters) ([]domain.ProcessedRow, error) {
	query := `
		SELECT unified_id, job_id, raw_product_id, schema_version, shop_type, external_id, content_hash, record, created_at, updated_at
		FROM processed.products
		WHERE ($1 = '' OR shop_type = $1)
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`
	rows, err := p.db.Query(ctx, query, filters.ShopType, limitOrDefault(filters.Limit), filters.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list processed rows")
	}
	defer rows.Close()

	var out []domain.ProcessedRow
	for rows.Next() {
		var row domain.ProcessedRow
		var payload []byte
		if err := rows.Scan(&row.UnifiedID, &row.JobID, &row.RawProductID, &row.SchemaVersion,
			&row.ShopType, &row.ExternalID, &row.ContentHash, &payload, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan processed row")
		}
		if err := json.Unmarshal(payload, &row.Record); err != nil {
			return nil, errors.Wrap(err, "unmarshal processed record")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

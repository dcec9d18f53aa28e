package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// PostgresStaging implements StagingRepository against staging.products,
// unique on (shop_type, external_id) (spec §6.2).
type PostgresStaging struct {
	db Querier
}

// NewPostgresStaging constructs the staging repository.
func NewPostgresStaging(db Querier) *PostgresStaging { return &PostgresStaging{db: db} }

// Upsert implements StagingRepository.
func (s *PostgresStaging) Upsert(ctx context.Context, row domain.StagingRow) (bool, error) {
	payload, err := json.Marshal(row.Data)
	if err != nil {
		return false, errors.Wrap(err, "marshal staging data")
	}

	const query = `
		INSERT INTO staging.products
			(shop_type, external_id, raw_product_id, name, price, content_hash, data, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (shop_type, external_id) DO UPDATE SET
			raw_product_id = EXCLUDED.raw_product_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			content_hash = EXCLUDED.content_hash,
			data = EXCLUDED.data,
			processed_at = EXCLUDED.processed_at
		RETURNING (xmax <> 0) AS was_update
	`
	var wasUpdate bool
	err = s.db.QueryRow(ctx, query,
		row.ShopType, row.ExternalID, row.RawProductID, row.Name, row.Price,
		row.ContentHash, payload, row.ProcessedAt,
	).Scan(&wasUpdate)
	if err != nil {
		return false, errors.Wrap(err, "upsert staging row")
	}
	return wasUpdate, nil
}

// Get implements StagingRepository.
func (s *PostgresStaging) Get(ctx context.Context, shopType, externalID string) (*domain.StagingRow, error) {
	const query = `
		SELECT shop_type, external_id, raw_product_id, name, price, content_hash, data, processed_at
		FROM staging.products
		WHERE shop_type = $1 AND external_id = $2
	`
	var row domain.StagingRow
	var payload []byte
	err := s.db.QueryRow(ctx, query, shopType, externalID).Scan(
		&row.ShopType, &row.ExternalID, &row.RawProductID, &row.Name, &row.Price,
		&row.ContentHash, &payload, &row.ProcessedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get staging row")
	}
	if err := json.Unmarshal(payload, &row.Data); err != nil {
		return nil, errors.Wrap(err, "unmarshal staging data")
	}
	return &row, nil
}

package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

// PostgresRaw implements RawRepository against raw.products (spec §6.2).
type PostgresRaw struct {
	db Querier
}

// NewPostgresRaw constructs the raw-row repository.
func NewPostgresRaw(db Querier) *PostgresRaw { return &PostgresRaw{db: db} }

// Insert implements RawRepository.
func (r *PostgresRaw) Insert(ctx context.Context, row domain.RawRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	payload, err := json.Marshal(row.RawData)
	if err != nil {
		return "", errors.Wrap(err, "marshal raw_data")
	}

	const query = `
		INSERT INTO raw.products (id, shop_type, job_id, raw_data, scraped_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, row.ID, row.ShopType, row.JobID, payload, row.ScrapedAt)
	if err != nil {
		return "", errors.Wrap(err, "insert raw row")
	}
	return row.ID, nil
}

// ListByJob implements RawRepository.
func (r *PostgresRaw) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.RawRow, error) {
	const query = `
		SELECT id, shop_type, job_id, raw_data, scraped_at
		FROM raw.products
		WHERE job_id = $1
		ORDER BY scraped_at
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list raw rows")
	}
	defer rows.Close()

	var out []domain.RawRow
	for rows.Next() {
		var row domain.RawRow
		var payload []byte
		if err := rows.Scan(&row.ID, &row.ShopType, &row.JobID, &payload, &row.ScrapedAt); err != nil {
			return nil, errors.Wrap(err, "scan raw row")
		}
		if err := json.Unmarshal(payload, &row.RawData); err != nil {
			return nil, errors.Wrap(err, "unmarshal raw_data")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListByShop implements RawRepository: a bounded read of raw rows for
// shopType, ordered by scraped_at (spec §4.5 start()). Raw rows are
// read-only to the engine, so this does not mark rows as claimed.
func (r *PostgresRaw) ListByShop(ctx context.Context, shopType string, limit int) ([]domain.RawRow, error) {
	const query = `
		SELECT id, shop_type, job_id, raw_data, scraped_at
		FROM raw.products
		WHERE shop_type = $1
		ORDER BY scraped_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, shopType, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list raw rows by shop")
	}
	defer rows.Close()

	var out []domain.RawRow
	for rows.Next() {
		var row domain.RawRow
		var payload []byte
		if err := rows.Scan(&row.ID, &row.ShopType, &row.JobID, &payload, &row.ScrapedAt); err != nil {
			return nil, errors.Wrap(err, "scan raw row")
		}
		if err := json.Unmarshal(payload, &row.RawData); err != nil {
			return nil, errors.Wrap(err, "unmarshal raw_data")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountByShop implements RawRepository.
func (r *PostgresRaw) CountByShop(ctx context.Context, shopType string) (int, error) {
	const query = `SELECT count(*) FROM raw.products WHERE shop_type = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, shopType).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count raw rows")
	}
	return count, nil
}

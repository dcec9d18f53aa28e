package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// PostgresAudit implements ComplianceAuditor by re-running every processed
// row for a job through the template validator (spec §4.1, §4.4 step 3b).
type PostgresAudit struct {
	db Querier
}

// NewPostgresAudit constructs the compliance auditor.
func NewPostgresAudit(db Querier) *PostgresAudit { return &PostgresAudit{db: db} }

// AuditJob implements ComplianceAuditor.
func (a *PostgresAudit) AuditJob(ctx context.Context, jobID string) (ComplianceReport, error) {
	processed := NewPostgresProcessed(a.db)
	rows, err := a.rowsForJob(ctx, jobID)
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{JobID: jobID, RecordsAudited: len(rows)}
	fieldHits := make(map[string]int)

	for _, unifiedID := range rows {
		row, err := processed.Get(ctx, unifiedID)
		if err != nil {
			return ComplianceReport{}, errors.Wrap(err, "audit: load processed row")
		}
		result := template.Validate(row.Record, template.ValidateOptions{AllowExtras: false, CheckTypes: true})
		if !result.OK {
			report.Violations++
			for _, f := range result.Missing {
				fieldHits[f]++
			}
			for _, f := range result.Extras {
				fieldHits[f]++
			}
			for _, f := range result.TypeErrors {
				fieldHits[f]++
			}
		}
	}

	if report.RecordsAudited > 0 {
		report.ComplianceRate = float64(report.RecordsAudited-report.Violations) / float64(report.RecordsAudited)
	} else {
		report.ComplianceRate = 1.0
	}
	for f := range fieldHits {
		report.ViolationFields = append(report.ViolationFields, f)
	}
	return report, nil
}

func (a *PostgresAudit) rowsForJob(ctx context.Context, jobID string) ([]string, error) {
	const query = `SELECT unified_id FROM processed.products WHERE job_id = $1`
	rows, err := a.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "audit: list job's processed rows")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "audit: scan unified_id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

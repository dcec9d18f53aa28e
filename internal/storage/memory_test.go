package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

func TestMemoryProcessedUpsertDetectsUnchangedRow(t *testing.T) {
	m := NewMemory()
	contract := NewMemoryContract(m)
	ctx := context.Background()

	row := domain.ProcessedRow{
		ShopType:      "ah",
		ExternalID:    "1010",
		SchemaVersion: "1.0.0",
		ContentHash:   "abc123",
		Record:        map[string]interface{}{"title": "Milk"},
		UpdatedAt:     time.Now(),
	}

	id1, unchanged1, err := contract.Processed.Upsert(ctx, row)
	require.NoError(t, err)
	require.False(t, unchanged1)
	require.Equal(t, "ah_1010_1.0.0", id1)

	_, unchanged2, err := contract.Processed.Upsert(ctx, row)
	require.NoError(t, err)
	require.True(t, unchanged2, "identical content_hash on re-run must be reported as unchanged")
}

func TestMemoryJobLifecycle(t *testing.T) {
	m := NewMemory()
	contract := NewMemoryContract(m)
	ctx := context.Background()

	id, err := contract.Jobs.Create(ctx, domain.Job{ShopType: "ah", Status: domain.JobPending})
	require.NoError(t, err)

	job, err := contract.Jobs.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.JobPending, job.Status)

	job.Status = domain.JobRunning
	require.NoError(t, contract.Jobs.Update(ctx, *job))

	updated, err := contract.Jobs.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.JobRunning, updated.Status)
}

func TestMemoryHealthCheckReflectsSetHealthy(t *testing.T) {
	m := NewMemory()
	require.True(t, m.IsHealthy())
	require.NoError(t, m.HealthCheck())

	m.SetHealthy(false)
	require.False(t, m.IsHealthy())
	require.Error(t, m.HealthCheck())
}

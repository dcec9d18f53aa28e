package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
)

func newTestManager(t *testing.T) (*job.Manager, storage.Contract) {
	t.Helper()
	contract := storage.NewMemoryContract(storage.NewMemory())
	adapter := batch.NewAdapter(transform.NewRegistry(), nil)
	manager := job.NewManager(contract, adapter, nil, nil).
		WithCheckpointStore(job.NewCheckpointStore(t.TempDir()))
	return manager, contract
}

func waitForTerminal(t *testing.T, manager *job.Manager, jobID string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current, err := manager.GetByID(context.Background(), jobID)
		require.NoError(t, err)
		if current.Status.Terminal() {
			return *current
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return domain.Job{}
}

func TestCreateStartRunsToCompletion(t *testing.T) {
	manager, contract := newTestManager(t)
	ctx := context.Background()

	_, err := contract.Raw.Insert(ctx, domain.RawRow{
		ShopType:  "ah",
		RawData:   map[string]interface{}{"title": "Melk", "price": 1.29, "ean": "1234567890123"},
		ScrapedAt: time.Now(),
	})
	require.NoError(t, err)

	created, err := manager.Create(ctx, job.Config{ShopType: "ah", SchemaVersion: "1.0.0"})
	require.NoError(t, err)
	require.Equal(t, domain.JobPending, created.Status)

	require.NoError(t, manager.Start(ctx, created.ID))

	finished := waitForTerminal(t, manager, created.ID)
	require.Equal(t, domain.JobCompleted, finished.Status)
	require.Equal(t, 1, finished.TotalProducts)
}

func TestStartRejectsNonPendingJob(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	created, err := manager.Create(ctx, job.Config{ShopType: "ah"})
	require.NoError(t, err)
	require.NoError(t, manager.Start(ctx, created.ID))

	err = manager.Start(ctx, created.ID)
	require.Error(t, err)
}

func TestCancelPendingJobTerminatesWithoutRunning(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	created, err := manager.Create(ctx, job.Config{ShopType: "ah"})
	require.NoError(t, err)

	require.NoError(t, manager.Cancel(ctx, created.ID, "operator request"))

	current, err := manager.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCancelled, current.Status)
	require.Equal(t, "operator request", current.ErrorMessage)
}

func TestCancelAlreadyTerminalJobFails(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	created, err := manager.Create(ctx, job.Config{ShopType: "ah"})
	require.NoError(t, err)
	require.NoError(t, manager.Cancel(ctx, created.ID, "first cancel"))

	err = manager.Cancel(ctx, created.ID, "second cancel")
	require.Error(t, err)
}

func TestProgressFallsBackToPersistedCountersOnceFinished(t *testing.T) {
	manager, contract := newTestManager(t)
	ctx := context.Background()

	_, err := contract.Raw.Insert(ctx, domain.RawRow{
		ShopType:  "jumbo",
		RawData:   map[string]interface{}{"title": "Kaas", "price": 2.49, "ean": "9999999999999"},
		ScrapedAt: time.Now(),
	})
	require.NoError(t, err)

	created, err := manager.Create(ctx, job.Config{ShopType: "jumbo"})
	require.NoError(t, err)
	require.NoError(t, manager.Start(ctx, created.ID))
	waitForTerminal(t, manager, created.ID)

	progress, err := manager.Progress(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, progress.Status)
	require.Equal(t, float64(100), progress.ProgressPercentage)
}

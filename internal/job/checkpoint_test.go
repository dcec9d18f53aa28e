package job

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/domain"
)

func TestCheckpointStoreSaveLoadDelete(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())

	ckpt := Checkpoint{
		JobID:          "job-1",
		ShopType:       "ah",
		Status:         domain.JobRunning,
		ProcessedCount: 40,
		TotalProducts:  100,
	}
	require.NoError(t, store.Save(ckpt))

	loaded, err := store.Load("job-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, ckpt.ProcessedCount, loaded.ProcessedCount)
	require.Equal(t, ckpt.ShopType, loaded.ShopType)

	require.NoError(t, store.Delete("job-1"))
	loaded, err = store.Load("job-1")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCheckpointStoreLoadMissingReturnsNil(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	loaded, err := store.Load("never-written")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCheckpointStoreDisabledWithEmptyBasePath(t *testing.T) {
	store := NewCheckpointStore("")
	require.NoError(t, store.Save(Checkpoint{JobID: "job-1"}))
	loaded, err := store.Load("job-1")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCheckpointFromJobCopiesCounters(t *testing.T) {
	j := domain.Job{
		ID:             "job-2",
		ShopType:       "jumbo",
		Status:         domain.JobCompleted,
		ProcessedCount: 10,
		SuccessCount:   9,
		FailedCount:    1,
	}
	ckpt := checkpointFromJob(j)
	require.Equal(t, j.ID, ckpt.JobID)
	require.Equal(t, j.SuccessCount, ckpt.SuccessCount)
	require.Equal(t, j.FailedCount, ckpt.FailedCount)
}

func TestCheckpointStorePathIsStableForSameJob(t *testing.T) {
	store := NewCheckpointStore(t.TempDir())
	require.Equal(t, store.path("job-1"), store.path("job-1"))
	require.NotEqual(t, store.path("job-1"), store.path("job-2"))
	require.Equal(t, filepath.Base(store.path("job-1")), "job_job-1.json")
}

package monitoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/monitoring"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
)

type recordingDispatcher struct {
	events []string
}

func (r *recordingDispatcher) Post(_ context.Context, event string, _ map[string]interface{}) {
	r.events = append(r.events, event)
}

func TestAgentSampleWithNoActiveJobsRaisesNothing(t *testing.T) {
	contract := storage.NewMemoryContract(storage.NewMemory())
	manager := job.NewManager(contract, batch.NewAdapter(transform.NewRegistry(), nil), nil, nil)
	dispatcher := &recordingDispatcher{}

	agent := monitoring.NewAgent(contract, nil, manager, dispatcher, monitoring.Thresholds{
		MinSuccessRate: 0.9,
		Cooldown:       time.Minute,
	}, nil)

	snapshot := agent.Sample(t.Context())
	require.Equal(t, 0, snapshot.ActiveJobs)
	require.Empty(t, dispatcher.events)
}

func TestThroughputSummarizeReflectsRecordedSamples(t *testing.T) {
	tp := monitoring.NewThroughput()
	tp.Record(10)
	tp.Record(20)
	tp.Record(30)

	summary := tp.Summarize()
	require.Equal(t, int64(20), summary.Avg)
	require.Equal(t, int64(10), summary.Min)
	require.Equal(t, int64(30), summary.Max)
}

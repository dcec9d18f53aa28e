package monitoring

import (
	"sync"

	"github.com/coolbox13/omfietser-processor/internal/util"
)

const windowSize = 120 // 120 samples at 30s cadence = 1 hour of history

// Throughput tracks recent per-sample processed-row counts so the agent can
// report recent throughput and its distribution shape (spec §4.7 "recent
// throughput").
type Throughput struct {
	mu      sync.Mutex
	samples []int64
}

// NewThroughput constructs an empty rolling-window tracker.
func NewThroughput() *Throughput {
	return &Throughput{samples: make([]int64, 0, windowSize)}
}

// Record appends one sample's processed-row delta, evicting the oldest
// sample once the window is full.
func (t *Throughput) Record(processedDelta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) >= windowSize {
		t.samples = t.samples[1:]
	}
	t.samples = append(t.samples, processedDelta)
}

// Summary reports the mean/percentile shape of the recent window.
type Summary struct {
	Avg    int64
	Min    int64
	Max    int64
	P50    int64
	P95    int64
	StdDev int64
	IQR    int64
	CoV    float64
}

// Summarize computes the current window's distribution.
func (t *Throughput) Summarize() Summary {
	t.mu.Lock()
	data := make([]int64, len(t.samples))
	copy(data, t.samples)
	t.mu.Unlock()

	if len(data) == 0 {
		return Summary{}
	}

	avg, min, max, stddev := util.Stats(data)
	percentiles := util.CalculatePercentiles(append([]int64(nil), data...), []int{50, 95})
	shape := util.CalculateDistributionStats(data)

	return Summary{
		Avg:    avg,
		Min:    min,
		Max:    max,
		P50:    percentiles[0],
		P95:    percentiles[1],
		StdDev: stddev,
		IQR:    shape.IQR,
		CoV:    shape.CoV,
	}
}

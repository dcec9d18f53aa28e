// Package util holds small numeric helpers shared by the Monitoring Agent's
// stats sampling (spec §4.7).
package util

import (
	"math"
	"sort"
)

// CalculatePercentiles returns data[idx] for each requested percentile,
// sorting data in place.
func CalculatePercentiles(data []int64, percentiles []int) []int64 {
	if len(data) == 0 {
		return []int64{0}
	}
	sort.Slice(data, func(i, j int) bool { return data[i] < data[j] })

	var result []int64
	n := len(data)
	for _, p := range percentiles {
		idx := (p * n) / 100
		if idx >= n {
			idx = n - 1
		}
		result = append(result, data[idx])
	}
	return result
}

// Stats returns the average, min, max, and standard deviation of data.
func Stats(data []int64) (avg, minVal, maxVal, stddev int64) {
	if len(data) == 0 {
		return 0, 0, 0, 0
	}

	minVal, maxVal = data[0], data[0]
	var sum int64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += v
	}
	avg = sum / int64(len(data))

	var sumSq float64
	for _, v := range data {
		diff := float64(v - avg)
		sumSq += diff * diff
	}
	stddev = int64(math.Sqrt(sumSq / float64(len(data))))
	return avg, minVal, maxVal, stddev
}

// DistributionStats captures distribution shape for an error-rate or
// throughput sample window.
type DistributionStats struct {
	P25      int64
	P75      int64
	IQR      int64
	MAD      float64
	CoV      float64
}

// CalculateDistributionStats computes distribution shape metrics over data.
func CalculateDistributionStats(data []int64) DistributionStats {
	if len(data) == 0 {
		return DistributionStats{}
	}

	sorted := make([]int64, len(data))
	copy(sorted, data)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	p25Idx := (25 * n) / 100
	if p25Idx >= n {
		p25Idx = n - 1
	}
	p75Idx := (75 * n) / 100
	if p75Idx >= n {
		p75Idx = n - 1
	}

	p25 := sorted[p25Idx]
	p75 := sorted[p75Idx]
	iqr := p75 - p25

	avg, _, _, stddev := Stats(data)
	avgFloat := float64(avg)
	stddevFloat := float64(stddev)

	var madSum float64
	for _, v := range data {
		madSum += math.Abs(float64(v) - avgFloat)
	}
	mad := madSum / float64(n)

	var cov float64
	if avgFloat != 0 {
		cov = stddevFloat / avgFloat
	}

	return DistributionStats{
		P25: p25,
		P75: p75,
		IQR: iqr,
		MAD: mad,
		CoV: cov,
	}
}

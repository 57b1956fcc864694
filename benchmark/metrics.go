// Package benchmark - Functionality for running benchmarks.
package benchmark

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	Decode          StageStats    `json:"decode"`
	Suppress        StageStats    `json:"suppress"`
	FramesPerSecond float64       `json:"frames_per_second"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	CPUStats        CPUMetrics    `json:"cpu_stats"`
	// CandidateCount and DetectionCount are totals over all measured iterations.
	CandidateCount int     `json:"candidate_count"`
	DetectionCount int     `json:"detection_count"`
	ErrorRate      float64 `json:"error_rate"`
}

// StageStats summarises the per-frame latency of one stage, in milliseconds.
type StageStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean_ms"`
	StdDev  float64 `json:"std_dev_ms"`
	Min     float64 `json:"min_ms"`
	P50     float64 `json:"p50_ms"`
	P95     float64 `json:"p95_ms"`
	Max     float64 `json:"max_ms"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
}

// Summarize computes StageStats from latency samples.
//
// Arguments:
//   - samples: Latencies in milliseconds. Not modified.
//
// Returns:
//   - The summary; the zero value when samples is empty.
func Summarize(samples []float64) StageStats {
	if len(samples) == 0 {
		return StageStats{}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return StageStats{
		Samples: len(sorted),
		Mean:    mean,
		StdDev:  std,
		Min:     floats.Min(sorted),
		P50:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:     floats.Max(sorted),
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

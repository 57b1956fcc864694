package benchmark

import (
	"context"
	"runtime"
	"time"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Run times decoding and suppression of captured output tensors.
//
// Each iteration processes one tensor, cycling through tensors. Decode and Suppress are
// timed separately so the cost of a low threshold (more candidates) shows up in the
// suppression stage. Frames that fail count toward ErrorRate.
//
// Arguments:
//   - ctx: Checked between iterations.
//   - m: The model to measure.
//   - tensors: Captured network outputs.
//   - iterations: The number of measured frames.
//
// Returns:
//   - *PerformanceMetrics: Timing, count and memory results.
//   - error: A ConfigurationError for empty input, or the context error.
func Run(ctx context.Context, m model.Model, tensors []tensor.Tensor, iterations int) (*PerformanceMetrics, error) {
	return run(ctx, m, tensors, iterations, 0)
}

func run(ctx context.Context, m model.Model, tensors []tensor.Tensor, iterations, warmups int) (*PerformanceMetrics, error) {
	if m == nil {
		return nil, common.NewConfigurationError("benchmark", "model is nil")
	}
	if len(tensors) == 0 {
		return nil, common.NewConfigurationError("benchmark", "no tensors to benchmark")
	}
	if iterations < 1 {
		return nil, common.NewConfigurationError("benchmark", "iterations must be at least 1, got %d", iterations)
	}

	opts := m.Options()
	filter := postprocess.NewLabelFilter(opts.RelevantClasses)

	// Warmup runs
	for i := 0; i < warmups; i++ {
		if candidates, err := m.Decode(tensors[i%len(tensors)]); err == nil {
			_, _ = postprocess.Suppress(filter(candidates), opts.NMS)
		}
	}

	metrics := &PerformanceMetrics{
		Timestamp: time.Now(),
	}

	// Capture initial memory stats
	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	decodeSamples := make([]float64, 0, iterations)
	suppressSamples := make([]float64, 0, iterations)
	failures := 0
	startTime := time.Now()

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "benchmark stopped after %d iterations", i)
		}

		decodeStart := time.Now()
		candidates, err := m.Decode(tensors[i%len(tensors)])
		decodeSamples = append(decodeSamples, milliseconds(time.Since(decodeStart)))
		if err != nil {
			failures++
			continue
		}

		suppressStart := time.Now()
		detections, err := postprocess.Suppress(filter(candidates), opts.NMS)
		suppressSamples = append(suppressSamples, milliseconds(time.Since(suppressStart)))
		if err != nil {
			failures++
			continue
		}

		metrics.CandidateCount += len(candidates)
		metrics.DetectionCount += len(detections)
	}

	metrics.TotalDuration = time.Since(startTime)

	// Capture final memory stats
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.Decode = Summarize(decodeSamples)
	metrics.Suppress = Summarize(suppressSamples)
	if seconds := metrics.TotalDuration.Seconds(); seconds > 0 {
		metrics.FramesPerSecond = float64(iterations) / seconds
	}
	metrics.ErrorRate = float64(failures) / float64(iterations)

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	return metrics, nil
}

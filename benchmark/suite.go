package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Suite manages and executes benchmark scenarios against one set of captured tensors.
type Suite struct {
	base      model.Config
	tensors   []tensor.Tensor
	outputDir string
	logger    *zap.Logger
	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	// Config is the model configuration each scenario overrides.
	Config  model.Config
	Tensors []tensor.Tensor
	// OutputDir receives SaveResults files.
	OutputDir string
	// Logger may be nil.
	Logger *zap.Logger
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(args NewSuiteArgs) *Suite {
	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{
		base:      args.Config,
		tensors:   args.Tensors,
		outputDir: args.OutputDir,
		logger:    logger,
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenarios ...Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenarios...)
}

// RunScenario executes a single benchmark scenario
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	m, err := models.NewModel(scenario.Apply(bs.base))
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}

	metrics, err := run(ctx, m, bs.tensors, scenario.Iterations, scenario.WarmupRuns)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	metrics.Scenario = scenario
	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios. A failing scenario is
// logged and skipped; only a cancelled context stops the run.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := append([]Scenario(nil), bs.scenarios...)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			bs.logger.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Float64("decode_p95_ms", metrics.Decode.P95),
			zap.Float64("suppress_p95_ms", metrics.Suppress.P95),
		)
	}
	return nil
}

// Results returns all benchmark results
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults persists benchmark results as a JSON file and a CSV summary.
//
// Returns:
//   - The paths written.
//   - error: An error if the output directory or files cannot be written.
func (bs *Suite) SaveResults() (resultsFile, summaryFile string, err error) {
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile = filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	summaryFile = filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "failed to write results file")
	}
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "failed to save summary CSV")
	}

	bs.logger.Info("results saved", zap.String("results", resultsFile), zap.String("summary", summaryFile))
	return resultsFile, summaryFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{
		"scenario", "threshold", "max_results", "iou", "class_aware", "fps",
		"decode_mean_ms", "decode_p95_ms", "suppress_mean_ms", "suppress_p95_ms",
		"candidates", "detections", "error_rate",
	}); err != nil {
		return err
	}

	for _, r := range results {
		if err := w.Write([]string{
			r.Scenario.Name,
			fmt.Sprintf("%.2f", r.Scenario.ConfidenceThreshold),
			fmt.Sprintf("%d", r.Scenario.NMS.MaxResults),
			fmt.Sprintf("%.2f", r.Scenario.NMS.IoUThreshold),
			fmt.Sprintf("%t", r.Scenario.NMS.ClassAware),
			fmt.Sprintf("%.2f", r.FramesPerSecond),
			fmt.Sprintf("%.4f", r.Decode.Mean),
			fmt.Sprintf("%.4f", r.Decode.P95),
			fmt.Sprintf("%.4f", r.Suppress.Mean),
			fmt.Sprintf("%.4f", r.Suppress.P95),
			fmt.Sprintf("%d", r.CandidateCount),
			fmt.Sprintf("%d", r.DetectionCount),
			fmt.Sprintf("%.4f", r.ErrorRate),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

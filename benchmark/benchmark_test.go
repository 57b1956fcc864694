package benchmark

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"testing"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorgonia.org/tensor"
)

// randomTensors returns Tiny YOLO v2 shaped outputs with normally distributed logits.
func randomTensors(n int) []tensor.Tensor {
	rng := rand.New(rand.NewSource(7))
	g := model.TinyYOLOv2Grid()
	out := make([]tensor.Tensor, n)
	for i := range out {
		data := make([]float32, g.Size())
		for j := range data {
			data[j] = float32(rng.NormFloat64() * 2)
		}
		out[i] = tensor.New(tensor.WithShape(g.Shape()...), tensor.WithBacking(data))
	}
	return out
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]float64{5, 1, 4, 2, 3})
	assert.Equal(t, 5, stats.Samples)
	assert.InDelta(t, 3, stats.Mean, 1e-9)
	assert.InDelta(t, 1.5811388, stats.StdDev, 1e-6)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 3.0, stats.P50)
	assert.Equal(t, 5.0, stats.P95)
	assert.Equal(t, 5.0, stats.Max)

	one := Summarize([]float64{2.5})
	assert.Equal(t, 0.0, one.StdDev, "a single sample has no spread")
	assert.Equal(t, 2.5, one.P95)

	assert.Equal(t, StageStats{}, Summarize(nil))
}

func TestRun(t *testing.T) {
	m, err := models.NewModel(model.DefaultConfig())
	require.NoError(t, err)

	metrics, err := Run(context.Background(), m, randomTensors(3), 9)
	require.NoError(t, err)

	assert.Equal(t, 9, metrics.Decode.Samples)
	assert.Equal(t, 9, metrics.Suppress.Samples)
	assert.Zero(t, metrics.ErrorRate)
	assert.Greater(t, metrics.CandidateCount, 0, "random logits should pass a 0.1 threshold somewhere")
	assert.LessOrEqual(t, metrics.DetectionCount, 9*5, "at most MaxResults per frame")
	assert.LessOrEqual(t, metrics.DetectionCount, metrics.CandidateCount)
	assert.Greater(t, metrics.FramesPerSecond, 0.0)
	assert.LessOrEqual(t, metrics.Decode.P50, metrics.Decode.P95)
}

func TestRunCountsFailures(t *testing.T) {
	m, err := models.NewModel(model.DefaultConfig())
	require.NoError(t, err)

	tensors := append(randomTensors(1), tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float32{0, 0, 0, 0})))
	metrics, err := Run(context.Background(), m, tensors, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 2, metrics.Suppress.Samples)
}

func TestRunRejectsBadInput(t *testing.T) {
	m, err := models.NewModel(model.DefaultConfig())
	require.NoError(t, err)

	_, err = Run(context.Background(), m, nil, 1)
	assert.True(t, common.IsConfigurationError(err))
	_, err = Run(context.Background(), m, randomTensors(1), 0)
	assert.True(t, common.IsConfigurationError(err))
	_, err = Run(context.Background(), nil, randomTensors(1), 1)
	assert.True(t, common.IsConfigurationError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, m, randomTensors(1), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithThreshold(0.25).
		WithNMS(10, 0.45).
		WithClassAware(true).
		WithRelevantClasses("person", "car").
		WithIterations(50).
		WithWarmupRuns(5).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, float32(0.25), scenario.ConfidenceThreshold)
	assert.Equal(t, 10, scenario.NMS.MaxResults)
	assert.Equal(t, float32(0.45), scenario.NMS.IoUThreshold)
	assert.True(t, scenario.NMS.ClassAware)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)

	config := scenario.Apply(model.DefaultConfig())
	assert.Equal(t, float32(0.25), config.ConfidenceThreshold)
	assert.Equal(t, []string{"person", "car"}, config.RelevantClasses)
	assert.NoError(t, config.Validate())
}

func TestPredefinedScenarios(t *testing.T) {
	sweep := ThresholdSweep(20, 0.05, 0.1, 0.3)
	require.Len(t, sweep.Scenarios, 3)
	assert.Equal(t, "threshold_0.05", sweep.Scenarios[0].Name)
	assert.Equal(t, float32(0.3), sweep.Scenarios[2].ConfidenceThreshold)

	nms := NMSComparison(20, 10, 0.5)
	require.Len(t, nms.Scenarios, 2)
	assert.False(t, nms.Scenarios[0].NMS.ClassAware)
	assert.True(t, nms.Scenarios[1].NMS.ClassAware)
	assert.Contains(t, nms.Description, "max 10")
}

func TestSuite(t *testing.T) {
	suite := NewSuite(NewSuiteArgs{
		Config:    model.DefaultConfig(),
		Tensors:   randomTensors(2),
		OutputDir: t.TempDir(),
		Logger:    zaptest.NewLogger(t),
	})

	suite.AddScenario(ThresholdSweep(5, 0.1, 0.5).Scenarios...)
	suite.AddScenario(NewScenarioBuilder("invalid").WithNMS(0, 0.5).WithIterations(5).Build())
	require.NoError(t, suite.RunAllScenarios(context.Background()))

	results := suite.Results()
	require.Len(t, results, 2, "the invalid scenario is skipped")
	assert.Equal(t, "threshold_0.10", results[0].Scenario.Name)
	assert.GreaterOrEqual(t, results[0].CandidateCount, results[1].CandidateCount,
		"a lower threshold never yields fewer candidates")

	resultsFile, summaryFile, err := suite.SaveResults()
	require.NoError(t, err)

	data, err := os.ReadFile(resultsFile)
	require.NoError(t, err)
	var saved []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	summary, err := os.ReadFile(summaryFile)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "scenario,threshold,max_results")
	assert.Contains(t, string(summary), "threshold_0.50")
}

func BenchmarkDecode(b *testing.B) {
	m, err := models.NewModel(model.DefaultConfig())
	require.NoError(b, err)
	tensors := randomTensors(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Decode(tensors[0])
	}
}

func BenchmarkPostProcess(b *testing.B) {
	m, err := models.NewModel(model.DefaultConfig())
	require.NoError(b, err)
	tensors := randomTensors(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.PostProcess(tensors[0])
	}
}

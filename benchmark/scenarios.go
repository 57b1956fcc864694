package benchmark

import (
	"fmt"

	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
)

// Scenario defines one decode and suppression configuration to measure.
type Scenario struct {
	Name                string                `json:"name"`
	ConfidenceThreshold float32               `json:"confidence_threshold"`
	NMS                 postprocess.NMSConfig `json:"nms"`
	RelevantClasses     []string              `json:"relevant_classes,omitempty"`
	Iterations          int                   `json:"iterations"`
	WarmupRuns          int                   `json:"warmup_runs"`
}

// Apply overlays the scenario's thresholds onto a model configuration.
func (s Scenario) Apply(config model.Config) model.Config {
	config.ConfidenceThreshold = s.ConfidenceThreshold
	nms := s.NMS
	config.NMS = &nms
	config.RelevantClasses = append([]string(nil), s.RelevantClasses...)
	return config
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder with the default thresholds.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	defaults := model.DefaultConfig()
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:                name,
			ConfidenceThreshold: defaults.ConfidenceThreshold,
			NMS:                 *defaults.NMS,
			Iterations:          100,
			WarmupRuns:          10,
		},
	}
}

// WithThreshold sets the confidence threshold
func (sb *ScenarioBuilder) WithThreshold(threshold float32) *ScenarioBuilder {
	sb.scenario.ConfidenceThreshold = threshold
	return sb
}

// WithNMS sets the suppression limits
func (sb *ScenarioBuilder) WithNMS(maxResults int, iouThreshold float32) *ScenarioBuilder {
	sb.scenario.NMS.MaxResults = maxResults
	sb.scenario.NMS.IoUThreshold = iouThreshold
	return sb
}

// WithClassAware toggles per-class suppression
func (sb *ScenarioBuilder) WithClassAware(classAware bool) *ScenarioBuilder {
	sb.scenario.NMS.ClassAware = classAware
	return sb
}

// WithRelevantClasses restricts the labels kept
func (sb *ScenarioBuilder) WithRelevantClasses(labels ...string) *ScenarioBuilder {
	sb.scenario.RelevantClasses = labels
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scenarios   []Scenario `json:"scenarios"`
}

// ThresholdSweep measures the cost of lowering the confidence threshold, which grows
// the candidate list NMS has to work through.
func ThresholdSweep(iterations int, thresholds ...float32) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(thresholds))
	for _, threshold := range thresholds {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("threshold_%.2f", threshold)).
			WithThreshold(threshold).
			WithIterations(iterations).
			Build())
	}

	return &ScenarioSet{
		Name:        "Threshold Sweep",
		Description: "Decode and suppression cost across confidence thresholds",
		Scenarios:   scenarios,
	}
}

// NMSComparison compares class-agnostic and class-aware suppression at the same limits.
func NMSComparison(iterations, maxResults int, iouThreshold float32) *ScenarioSet {
	var scenarios []Scenario
	for _, classAware := range []bool{false, true} {
		name := "nms_agnostic"
		if classAware {
			name = "nms_class_aware"
		}
		scenarios = append(scenarios, NewScenarioBuilder(name).
			WithNMS(maxResults, iouThreshold).
			WithClassAware(classAware).
			WithIterations(iterations).
			Build())
	}

	return &ScenarioSet{
		Name:        "NMS Comparison",
		Description: fmt.Sprintf("Class-agnostic vs. class-aware suppression (max %d, IoU %.2f)", maxResults, iouThreshold),
		Scenarios:   scenarios,
	}
}

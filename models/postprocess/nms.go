// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	MaxResults   int     `json:"max_results" yaml:"max_results"`     // Upper bound on returned detections.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap above which a box is a duplicate.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// DefaultNMSConfig returns the suppression settings used with Tiny YOLO v2.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		MaxResults:   5,
		IoUThreshold: 0.3,
	}
}

// Validate checks the configuration.
//
// Returns:
//   - A ConfigurationError if MaxResults < 1 or IoUThreshold is outside [0, 1].
func (c *NMSConfig) Validate() error {
	if c == nil {
		return common.NewConfigurationError("suppress", "nms config is nil")
	}
	if c.MaxResults < 1 {
		return common.NewConfigurationError("suppress", "max results must be at least 1, got %d", c.MaxResults)
	}
	if !(c.IoUThreshold >= 0 && c.IoUThreshold <= 1) {
		return common.NewConfigurationError("suppress", "iou threshold must be in [0, 1], got %v", c.IoUThreshold)
	}
	return nil
}

// SortByConfidence returns a copy of detections ordered by descending confidence.
//
// Ties keep their input order, so the ranking is reproducible for a given input.
//
// Arguments:
//   - detections: The detections to rank. The slice is not modified.
//
// Returns:
//   - A new, sorted slice.
func SortByConfidence(detections []Detection) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}

// Suppress removes lower-confidence duplicates using greedy Non-Maximum Suppression.
//
// Detections are ranked by descending confidence (stable). Walking the ranking, each
// still-active detection is accepted, and every later active detection whose IoU with it
// exceeds config.IoUThreshold is deactivated. The walk stops once config.MaxResults
// detections are accepted or nothing is left active.
//
// Arguments:
//   - detections: Candidate detections in any order. The slice is not modified.
//   - config: NMS configuration. With ClassAware set, only same-class pairs suppress each other.
//
// Returns:
//   - At most MaxResults detections sorted by descending confidence. Empty input yields nil.
//   - A ConfigurationError if the configuration is invalid.
//
// @example
// kept, err := Suppress(candidates, &NMSConfig{MaxResults: 5, IoUThreshold: 0.3})
func Suppress(detections []Detection, config *NMSConfig) ([]Detection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := len(detections)
	if n == 0 {
		return nil, nil
	}

	sorted := SortByConfidence(detections)
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}
	remaining := n

	filtered := make([]Detection, 0, min(n, config.MaxResults))
	for i := 0; i < n && remaining > 0; i++ {
		if !active[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		active[i] = false
		remaining--
		if len(filtered) >= config.MaxResults {
			break
		}

		anchorRect := anchor.Rect()
		for j := i + 1; j < n; j++ {
			if !active[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}
			if images.CalculateIoU(anchorRect, sorted[j].Rect()) > config.IoUThreshold {
				active[j] = false
				remaining--
			}
		}
	}

	return filtered, nil
}

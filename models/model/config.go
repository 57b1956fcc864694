package model

import (
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config describes a grid detection model: its output layout, anchors, labels and the
// thresholds used when decoding its output.
type Config struct {
	Name   Name   `json:"name" yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	// Path is the ONNX model file, used only by the inference session.
	Path    string   `json:"path,omitempty" yaml:"path,omitempty"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Grid    Grid     `json:"grid" yaml:"grid"`
	// Anchors is a flat width,height list with one pair per box slot.
	Anchors []float32  `json:"anchors" yaml:"anchors"`
	Labels  LabelTable `json:"labels,omitempty" yaml:"labels,omitempty"`
	// LabelsPath is read when Labels is empty. Relative paths resolve against the
	// directory of the config file.
	LabelsPath          string                 `json:"labels_path,omitempty" yaml:"labels_path,omitempty"`
	ConfidenceThreshold float32                `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// RelevantClasses lists labels to keep; others are dropped before suppression (empty = all classes).
	RelevantClasses []string `json:"relevant_classes,omitempty" yaml:"relevant_classes,omitempty"`
}

// DefaultConfig returns the Tiny YOLO v2 Pascal VOC configuration.
//
// Returns:
//   - Config: A complete, valid configuration.
//
// @example
// config := DefaultConfig()
// config.ConfidenceThreshold = 0.3
func DefaultConfig() Config {
	return Config{
		Name:                ModelNameTinyYOLOv2,
		Family:              ModelFamilyVOC,
		Inputs:              []string{"image"},
		Outputs:             []string{"grid"},
		Grid:                TinyYOLOv2Grid(),
		Anchors:             append([]float32(nil), TinyYOLOv2Anchors...),
		Labels:              append(LabelTable(nil), VOCLabels...),
		ConfidenceThreshold: 0.1,
		NMS:                 postprocess.DefaultNMSConfig(),
	}
}

// LoadConfig reads a YAML model configuration.
//
// Fields missing from the file keep their DefaultConfig values. If the file names a
// labels_path, the labels are loaded from it.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - The validated configuration.
//   - An error if the file cannot be read or parsed, or the configuration is invalid.
//
// @example
// config, err := LoadConfig("configs/tiny-yolov2-voc.yaml")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	config := DefaultConfig()
	// Labels from the file replace the defaults rather than merging into them.
	config.Labels = nil
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
	}

	if len(config.Labels) == 0 {
		if config.LabelsPath == "" {
			config.Labels = append(LabelTable(nil), VOCLabels...)
		} else {
			labelsPath := config.LabelsPath
			if !filepath.IsAbs(labelsPath) {
				labelsPath = filepath.Join(filepath.Dir(path), labelsPath)
			}
			labels, err := LoadLabels(labelsPath)
			if err != nil {
				return Config{}, err
			}
			config.Labels = labels
		}
	}

	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return config, nil
}

// AnchorTable converts the flat anchor list into per-slot anchors.
func (c Config) AnchorTable() (AnchorTable, error) {
	return AnchorsFromPairs(c.Anchors)
}

// Validate reports every problem with the configuration at once.
//
// Returns:
//   - nil, or the combined ConfigurationErrors.
func (c Config) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, common.NewConfigurationError("config", "model name is required"))
	}

	gridErr := c.Grid.Validate()
	err = multierr.Append(err, gridErr)

	anchors, anchorErr := c.AnchorTable()
	err = multierr.Append(err, anchorErr)
	if gridErr == nil && anchorErr == nil {
		err = multierr.Append(err, anchors.Validate(c.Grid.BoxesPerCell))
	}
	if gridErr == nil {
		err = multierr.Append(err, c.Labels.Validate(c.Grid.ClassCount))
	}

	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1) {
		err = multierr.Append(err, common.NewConfigurationError("config",
			"confidence threshold must be in [0, 1], got %v", c.ConfidenceThreshold))
	}
	err = multierr.Append(err, c.NMS.Validate())

	return err
}

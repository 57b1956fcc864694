package yolov2

import (
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// YOLOv2 is the instance of a YOLO v2 family model (Tiny YOLO v2 included).
//
// A YOLOv2 holds only immutable configuration, so one instance can decode frames from
// any number of goroutines.
type YOLOv2 struct {
	options model.Config
	args    DecodeArgs
	filter  postprocess.Postprocessor
}

var _ model.Model = (*YOLOv2)(nil)

// NewModel creates a new model.
//
// The configuration is validated once here; per-frame calls only check the tensor.
//
// Arguments:
//   - config: The model configuration, e.g. model.DefaultConfig().
//
// Returns:
//   - The model.
//   - An error wrapping the ConfigurationErrors found in config.
func NewModel(config model.Config) (*YOLOv2, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "NewModel %s", config.Name)
	}

	anchors, err := config.AnchorTable()
	if err != nil {
		return nil, err
	}

	// Own copies, so later edits to the caller's slices cannot leak in.
	labels := append(model.LabelTable(nil), config.Labels...)
	config.Labels = labels
	config.Anchors = append([]float32(nil), config.Anchors...)
	nms := *config.NMS
	config.NMS = &nms
	config.RelevantClasses = append([]string(nil), config.RelevantClasses...)

	return &YOLOv2{
		options: config,
		args: DecodeArgs{
			Grid:                config.Grid,
			Anchors:             anchors,
			Labels:              labels,
			ConfidenceThreshold: config.ConfidenceThreshold,
		},
		filter: postprocess.NewLabelFilter(config.RelevantClasses),
	}, nil
}

// Options returns a copy of the options for the YOLOv2 model.
func (m *YOLOv2) Options() model.Config {
	opts := m.options
	opts.Labels = append(model.LabelTable(nil), m.options.Labels...)
	opts.Anchors = append([]float32(nil), m.options.Anchors...)
	nms := *m.options.NMS
	opts.NMS = &nms
	return opts
}

// Decode converts the output tensor into candidate detections. See Decode.
func (m *YOLOv2) Decode(t tensor.Tensor) ([]postprocess.Detection, error) {
	return decode(t, m.args)
}

// PostProcess decodes the output tensor, drops classes outside RelevantClasses and
// applies Non-Maximum Suppression.
//
// Arguments:
//   - t: The raw output tensor of the network.
//
// Returns:
//   - At most NMS.MaxResults detections, by descending confidence.
//   - A ConfigurationError if the tensor does not match the grid.
func (m *YOLOv2) PostProcess(t tensor.Tensor) ([]postprocess.Detection, error) {
	candidates, err := m.Decode(t)
	if err != nil {
		return nil, err
	}
	return postprocess.Suppress(m.filter(candidates), m.options.NMS)
}

// Package inference - Producing grid tensors and running detection pipelines.
package inference

import (
	"strings"

	"github.com/nvr-ai/go-tinyyolo/common"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Layout is the memory order of a 4-D output tensor.
type Layout string

const (
	// LayoutNHWC is batch, rows, cols, channels; the order the decoder reads.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is batch, channels, rows, cols; the order ONNX exports of Tiny YOLO v2 emit.
	LayoutNCHW Layout = "nchw"
)

// ParseLayout parses a layout name, case-insensitively.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", common.NewConfigurationError("layout", "unknown tensor layout %q, want nhwc or nchw", s)
	}
}

// GridTensor copies raw output values into an NHWC tensor.
//
// NCHW data is permuted so the result is always [1, rows, cols, channels] with contiguous
// backing, regardless of how the network laid it out.
//
// Arguments:
//   - shape: The 4-D shape of data, in the order given by layout.
//   - data: The raw values. They are copied, so the caller may reuse the buffer.
//   - layout: The memory order of data.
//
// Returns:
//   - The NHWC tensor.
//   - A ConfigurationError if shape is not 4-D or does not match len(data).
func GridTensor(shape ort.Shape, data []float32, layout Layout) (*tensor.Dense, error) {
	if len(shape) != 4 {
		return nil, common.NewConfigurationError("layout", "expected a 4-D output shape, got %v", shape)
	}
	dims := make([]int, len(shape))
	size := 1
	for i, d := range shape {
		if d < 1 {
			return nil, common.NewConfigurationError("layout", "invalid dimension %d in shape %v", d, shape)
		}
		dims[i] = int(d)
		size *= int(d)
	}
	if size != len(data) {
		return nil, common.NewConfigurationError("layout", "shape %v needs %d values, got %d", shape, size, len(data))
	}

	backing := append([]float32(nil), data...)
	t := tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))

	switch layout {
	case LayoutNHWC:
		return t, nil
	case LayoutNCHW:
		if err := t.T(0, 2, 3, 1); err != nil {
			return nil, err
		}
		if err := t.Transpose(); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, common.NewConfigurationError("layout", "unknown tensor layout %q", layout)
	}
}

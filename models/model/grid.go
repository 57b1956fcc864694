package model

import "github.com/nvr-ai/go-tinyyolo/common"

// BoxInfoFeatureCount is the number of channels describing one box before its class
// logits: tx, ty, tw, th and the confidence logit tc.
const BoxInfoFeatureCount = 5

// Grid describes the fixed output layout of a grid detector.
//
// The output tensor is [1, Rows, Cols, BoxesPerCell × (5 + ClassCount)].
type Grid struct {
	Rows         int     `json:"rows" yaml:"rows"`
	Cols         int     `json:"cols" yaml:"cols"`
	BoxesPerCell int     `json:"boxes_per_cell" yaml:"boxes_per_cell"`
	ClassCount   int     `json:"class_count" yaml:"class_count"`
	CellWidth    float32 `json:"cell_width" yaml:"cell_width"`
	CellHeight   float32 `json:"cell_height" yaml:"cell_height"`
}

// TinyYOLOv2Grid returns the 13x13 layout of Tiny YOLO v2 trained on Pascal VOC
// (416x416 input, 5 anchors, 20 classes).
func TinyYOLOv2Grid() Grid {
	return Grid{
		Rows:         13,
		Cols:         13,
		BoxesPerCell: 5,
		ClassCount:   20,
		CellWidth:    32,
		CellHeight:   32,
	}
}

// BoxStride returns the number of channels used by one box slot.
func (g Grid) BoxStride() int {
	return BoxInfoFeatureCount + g.ClassCount
}

// Channels returns the channel count of one grid cell.
func (g Grid) Channels() int {
	return g.BoxesPerCell * g.BoxStride()
}

// Shape returns the expected NHWC tensor shape.
func (g Grid) Shape() []int {
	return []int{1, g.Rows, g.Cols, g.Channels()}
}

// Size returns the expected number of tensor elements.
func (g Grid) Size() int {
	return g.Rows * g.Cols * g.Channels()
}

// InputSize returns the network input size in pixels.
func (g Grid) InputSize() (width, height float32) {
	return float32(g.Cols) * g.CellWidth, float32(g.Rows) * g.CellHeight
}

// Validate checks every dimension is positive.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return common.NewConfigurationError("grid", "grid must be at least 1x1, got %dx%d", g.Rows, g.Cols)
	}
	if g.BoxesPerCell <= 0 {
		return common.NewConfigurationError("grid", "boxes per cell must be positive, got %d", g.BoxesPerCell)
	}
	if g.ClassCount <= 0 {
		return common.NewConfigurationError("grid", "class count must be positive, got %d", g.ClassCount)
	}
	if g.CellWidth <= 0 || g.CellHeight <= 0 {
		return common.NewConfigurationError("grid", "cell size must be positive, got %vx%v", g.CellWidth, g.CellHeight)
	}
	return nil
}

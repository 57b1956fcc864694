package model

import "github.com/nvr-ai/go-tinyyolo/common"

// Anchor is a predefined box shape, in units of grid cells.
type Anchor struct {
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// AnchorTable holds one anchor per box slot, in slot order.
type AnchorTable []Anchor

// TinyYOLOv2Anchors are the VOC anchors of Tiny YOLO v2.
var TinyYOLOv2Anchors = []float32{1.08, 1.19, 3.42, 4.41, 6.63, 11.38, 9.42, 5.11, 16.62, 10.52}

// AnchorsFromPairs builds an AnchorTable from a flat width,height,width,height... list,
// the format used by darknet cfg files.
//
// Arguments:
//   - flat: Alternating width and height ratios.
//
// Returns:
//   - The anchor table.
//   - A ConfigurationError if the list is empty, odd-length or holds non-positive ratios.
//
// @example
// anchors, err := AnchorsFromPairs([]float32{1.08, 1.19, 3.42, 4.41})
func AnchorsFromPairs(flat []float32) (AnchorTable, error) {
	if len(flat) == 0 || len(flat)%2 != 0 {
		return nil, common.NewConfigurationError("anchors", "need an even, non-zero number of values, got %d", len(flat))
	}

	table := make(AnchorTable, len(flat)/2)
	for i := range table {
		table[i] = Anchor{Width: flat[2*i], Height: flat[2*i+1]}
	}
	if err := table.Validate(len(table)); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks the table has exactly boxesPerCell positive anchors.
func (t AnchorTable) Validate(boxesPerCell int) error {
	if len(t) != boxesPerCell {
		return common.NewConfigurationError("anchors", "have %d anchors for %d boxes per cell", len(t), boxesPerCell)
	}
	for i, a := range t {
		if a.Width <= 0 || a.Height <= 0 {
			return common.NewConfigurationError("anchors", "anchor %d has non-positive ratio %vx%v", i, a.Width, a.Height)
		}
	}
	return nil
}

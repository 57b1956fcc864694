package images

import "github.com/pkg/errors"

// ScreenTransform maps boxes from network-input space to screen space.
//
// The network sees a square crop of the frame. On screen that square is scaled to the
// smaller screen side and centred along the longer one, so the mapping is a uniform
// scale followed by a shift on one axis.
type ScreenTransform struct {
	Scale  float32 `json:"scale" yaml:"scale"`
	ShiftX float32 `json:"shift_x" yaml:"shift_x"`
	ShiftY float32 `json:"shift_y" yaml:"shift_y"`
}

// NewScreenTransform computes the transform that fits a square network input of side
// inputSize onto a screenWidth x screenHeight display.
//
// Arguments:
//   - screenWidth, screenHeight: The display size in pixels.
//   - inputSize: The side of the square network input (416 for Tiny YOLO v2).
//
// Returns:
//   - The transform, or an error if any dimension is not positive.
//
// @example
// st, _ := NewScreenTransform(1920, 1080, 416)
// // st.Scale = 1080/416, st.ShiftX = (1920-1080)/2, st.ShiftY = 0
func NewScreenTransform(screenWidth, screenHeight, inputSize int) (ScreenTransform, error) {
	if screenWidth <= 0 || screenHeight <= 0 || inputSize <= 0 {
		return ScreenTransform{}, errors.Errorf(
			"invalid screen transform dimensions: screen %dx%d, input %d", screenWidth, screenHeight, inputSize)
	}

	var st ScreenTransform
	smallest := screenHeight
	if screenWidth < screenHeight {
		smallest = screenWidth
		st.ShiftY = float32(screenHeight-smallest) / 2
	} else {
		st.ShiftX = float32(screenWidth-smallest) / 2
	}
	st.Scale = float32(smallest) / float32(inputSize)

	return st, nil
}

// Apply maps a network-space box to screen space.
func (st ScreenTransform) Apply(r Rect) Rect {
	return Rect{
		X1: r.X1*st.Scale + st.ShiftX,
		Y1: r.Y1*st.Scale + st.ShiftY,
		X2: r.X2*st.Scale + st.ShiftX,
		Y2: r.Y2*st.Scale + st.ShiftY,
	}
}

// Package images - Geometry helpers for image-space boxes.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned box in image-space pixels, in corner form.
//
// Coordinates are float32 because decoded boxes keep sub-pixel precision and may
// extend past the image borders; nothing here clamps them.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// RectFromXYWH builds a Rect from a top-left corner and an extent.
//
// Arguments:
//   - x, y: The top-left corner.
//   - w, h: The width and height. Negative extents produce a degenerate Rect.
//
// Returns:
//   - The corresponding Rect.
//
// @example
// r := RectFromXYWH(10, 20, 30, 40) // Rect{X1: 10, Y1: 20, X2: 40, Y2: 60}
func RectFromXYWH(x, y, w, h float32) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns X2 - X1.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns Y2 - Y1.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns the box area. A Rect with a non-positive or non-finite side has area 0.
func (r Rect) Area() float32 {
	if r.Degenerate() {
		return 0
	}
	return r.Width() * r.Height()
}

// Degenerate reports whether the box has a non-positive or non-finite width or height.
func (r Rect) Degenerate() bool {
	w, h := r.Width(), r.Height()
	return !(w > 0 && h > 0) || math32.IsInf(w, 0) || math32.IsInf(h, 0)
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float32, float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU = area(r ∩ o) / (area(r) + area(o) - area(r ∩ o))
//
//   - 1.0 means the boxes are identical.
//   - 0.0 means they do not overlap (touching edges count as no overlap).
//
// A box with non-positive or non-finite area never overlaps anything: if either box is degenerate
// the result is 0, so such a box can neither suppress nor be suppressed during NMS.
// The result is symmetric and always lies in [0, 1].
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - The IoU score in [0, 1].
//
// @example
// a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// iou := CalculateIoU(a, b) // 25 / 175 ≈ 0.142857
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	if areaR <= 0 {
		return 0
	}
	areaO := o.Area()
	if areaO <= 0 {
		return 0
	}

	interW := min(r.X2, o.X2) - max(r.X1, o.X1)
	interH := min(r.Y2, o.Y2) - max(r.Y1, o.Y1)
	if !(interW > 0 && interH > 0) {
		return 0
	}
	interArea := interW * interH

	iou := interArea / (areaR + areaO - interArea)
	// Areas that overflow float32 leave no meaningful ratio.
	if !(iou >= 0) || math32.IsInf(iou, 0) {
		return 0
	}
	// Rounding on near-identical boxes can push the ratio a hair past 1.
	if iou > 1 {
		return 1
	}
	return iou
}

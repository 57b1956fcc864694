// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-tinyyolo/images"
)

// Detection is a single decoded object in image space.
//
// Geometry is in top-left corner form, in pixels of the network input.
type Detection struct {
	// X, Y is the top-left corner of the box.
	X float32 `json:"x" yaml:"x"`
	Y float32 `json:"y" yaml:"y"`
	// Width and Height are the box extents.
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
	// Confidence is the ranking score, objectness × top class probability.
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// RawScore is the decoder's objectness × top class probability. Filters that rescale
	// Confidence leave it untouched.
	RawScore float32 `json:"raw_score" yaml:"raw_score"`
	// Objectness is sigmoid of the box confidence logit.
	Objectness float32 `json:"objectness" yaml:"objectness"`
	// Class is the index of the top class in the label table.
	Class int `json:"class" yaml:"class"`
	// Label is the name of the top class.
	Label string `json:"label" yaml:"label"`
}

// Rect returns the box in corner form.
func (d Detection) Rect() images.Rect {
	return images.RectFromXYWH(d.X, d.Y, d.Width, d.Height)
}

// Center returns the midpoint of the box.
func (d Detection) Center() (float32, float32) {
	return d.X + d.Width/2, d.Y + d.Height/2
}

// Area returns the box area, 0 for degenerate boxes.
func (d Detection) Area() float32 {
	return d.Rect().Area()
}

// IoU returns the Intersection over Union with another detection.
func (d Detection) IoU(other Detection) float32 {
	return images.CalculateIoU(d.Rect(), other.Rect())
}

func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%.2f, %.2f) - %.2fx%.2f",
		d.Label, d.Confidence, d.X, d.Y, d.Width, d.Height)
}

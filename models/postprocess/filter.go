package postprocess

// Postprocessor defines a function that filters or modifies a slice of detections.
type Postprocessor func([]Detection) []Detection

// NewLabelFilter returns a Postprocessor keeping only detections whose label is listed.
// An empty list keeps everything.
func NewLabelFilter(labels []string) Postprocessor {
	if len(labels) == 0 {
		return func(in []Detection) []Detection { return in }
	}
	keep := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		keep[l] = struct{}{}
	}
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if _, ok := keep[d.Label]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter returns a Postprocessor dropping detections smaller than area square pixels.
func NewAreaFilter(area float32) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// Renderer consumes final detections, e.g. an on-screen overlay.
//
// Implementations map image-space geometry to screen space with
// x*scale + shiftX and y*scale + shiftY (see images.ScreenTransform).
type Renderer interface {
	Render(detections []Detection, scale, shiftX, shiftY float32)
}

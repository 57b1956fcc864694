// Package yolov2 - decode YOLO v2 grid outputs.
package yolov2

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"gorgonia.org/tensor"
)

// DecodeArgs is everything Decode needs besides the tensor.
type DecodeArgs struct {
	Grid                model.Grid
	Anchors             model.AnchorTable
	Labels              model.LabelTable
	ConfidenceThreshold float32
}

// Validate checks the grid, the anchor and label table sizes and the threshold.
func (a DecodeArgs) Validate() error {
	if err := a.Grid.Validate(); err != nil {
		return err
	}
	if err := a.Anchors.Validate(a.Grid.BoxesPerCell); err != nil {
		return err
	}
	if err := a.Labels.Validate(a.Grid.ClassCount); err != nil {
		return err
	}
	if !(a.ConfidenceThreshold >= 0 && a.ConfidenceThreshold <= 1) {
		return common.NewConfigurationError("decode", "confidence threshold must be in [0, 1], got %v", a.ConfidenceThreshold)
	}
	return nil
}

// cellPrediction is the raw channel slice of one box slot: tx, ty, tw, th, tc, then
// the class logits.
type cellPrediction []float32

func (p cellPrediction) tx() float32       { return p[0] }
func (p cellPrediction) ty() float32       { return p[1] }
func (p cellPrediction) tw() float32       { return p[2] }
func (p cellPrediction) th() float32       { return p[3] }
func (p cellPrediction) tc() float32       { return p[4] }
func (p cellPrediction) logits() []float32 { return p[model.BoxInfoFeatureCount:] }

// Decode converts a YOLO v2 output tensor into candidate detections.
//
// For every grid cell and box slot, the objectness sigmoid(tc) and the combined score
// objectness × top class probability must both reach args.ConfidenceThreshold for the
// slot to be emitted. Geometry is mapped to image space as
//
//	centerX = (col + sigmoid(tx)) × CellWidth
//	centerY = (row + sigmoid(ty)) × CellHeight
//	width   = exp(tw) × CellWidth × anchor.Width
//	height  = exp(th) × CellHeight × anchor.Height
//
// where row indexes tensor axis 1 and col indexes axis 2, and returned in top-left form.
//
// Arguments:
//   - t: A float32 tensor shaped [1, Rows, Cols, Channels] (or [Rows, Cols, Channels]).
//     Strided views are materialised first.
//   - args: The grid layout, anchors, labels and threshold.
//
// Returns:
//   - The candidates in cell-major, slot-minor order, not ranked. May be empty.
//   - A ConfigurationError if the tensor or args do not match.
//
// @example
// args := yolov2.DecodeArgs{Grid: model.TinyYOLOv2Grid(), Anchors: anchors, Labels: model.VOCLabels, ConfidenceThreshold: 0.1}
// dets, err := yolov2.Decode(output, args)
func Decode(t tensor.Tensor, args DecodeArgs) ([]postprocess.Detection, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return decode(t, args)
}

// decode assumes args are valid.
func decode(t tensor.Tensor, args DecodeArgs) ([]postprocess.Detection, error) {
	data, err := gridData(t, args.Grid)
	if err != nil {
		return nil, err
	}

	g := args.Grid
	stride := g.BoxStride()
	channels := g.Channels()
	threshold := args.ConfidenceThreshold
	probs := make([]float32, g.ClassCount)

	var detections []postprocess.Detection
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			offset := (row*g.Cols + col) * channels
			cell := data[offset : offset+channels]

			for b := 0; b < g.BoxesPerCell; b++ {
				p := cellPrediction(cell[b*stride : (b+1)*stride])

				// Written as !(x >= t) so NaN outputs are dropped too.
				objectness := Sigmoid(p.tc())
				if !(objectness >= threshold) {
					continue
				}

				probs = Softmax(probs, p.logits())
				class, classProb := argmax(probs)
				score := objectness * classProb
				if !(score >= threshold) {
					continue
				}

				anchor := args.Anchors[b]
				centerX := (float32(col) + Sigmoid(p.tx())) * g.CellWidth
				centerY := (float32(row) + Sigmoid(p.ty())) * g.CellHeight
				width := math32.Exp(p.tw()) * g.CellWidth * anchor.Width
				height := math32.Exp(p.th()) * g.CellHeight * anchor.Height

				detections = append(detections, postprocess.Detection{
					X:          centerX - width/2,
					Y:          centerY - height/2,
					Width:      width,
					Height:     height,
					Confidence: score,
					RawScore:   score,
					Objectness: objectness,
					Class:      class,
					Label:      args.Labels[class],
				})
			}
		}
	}

	return detections, nil
}

// gridData checks the tensor against the grid and returns its backing data in
// row, col, channel order.
func gridData(t tensor.Tensor, g model.Grid) ([]float32, error) {
	if t == nil {
		return nil, common.NewConfigurationError("decode", "tensor is nil")
	}
	if t.Dtype() != tensor.Float32 {
		return nil, common.NewConfigurationError("decode", "tensor dtype is %v, want float32", t.Dtype())
	}

	shape := t.Shape()
	want := g.Shape()
	switch {
	case len(shape) == 4 && shape[0] == 1 && shape[1] == want[1] && shape[2] == want[2] && shape[3] == want[3]:
	case len(shape) == 3 && shape[0] == want[1] && shape[1] == want[2] && shape[2] == want[3]:
	default:
		return nil, common.NewConfigurationError("decode", "tensor shape %v does not match grid shape %v", shape, want)
	}

	if d, ok := t.(*tensor.Dense); ok && d.IsMaterializable() {
		t = d.Materialize()
	}
	data, ok := t.Data().([]float32)
	if !ok || len(data) != g.Size() {
		return nil, common.NewConfigurationError("decode", "tensor holds %d values, want %d", len(data), g.Size())
	}
	return data, nil
}

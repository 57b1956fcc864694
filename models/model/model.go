// Package model - Definitions shared by grid detection models.
package model

import (
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"gorgonia.org/tensor"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
	// ModelFamilyVOC is the Pascal VOC model family.
	ModelFamilyVOC Family = "voc"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameTinyYOLOv2 is the name of the Tiny YOLO v2 model.
	ModelNameTinyYOLOv2 Name = "tiny-yolov2"
	// ModelNameYOLOv2 is the name of the full YOLO v2 model. It shares the output layout.
	ModelNameYOLOv2 Name = "yolov2"
)

// Model turns the raw output tensor of a detection network into detections.
type Model interface {
	// Options returns the validated configuration the model was built from.
	Options() Config
	// Decode converts the output tensor into unranked candidate detections.
	Decode(t tensor.Tensor) ([]postprocess.Detection, error)
	// PostProcess decodes the tensor and applies Non-Maximum Suppression.
	PostProcess(t tensor.Tensor) ([]postprocess.Detection, error)
}

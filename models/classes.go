// Package models - class sets and the model registry.
package models

import (
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a family to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family model.Family
	// Classes that are supported and mappable, in model output order.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// LabelTable returns the class names in index order, ready for model.Config.Labels.
func (s *OutputClassSet) LabelTable() model.LabelTable {
	labels := make(model.LabelTable, len(s.Classes))
	for i, c := range s.Classes {
		labels[i] = c.Name
	}
	return labels
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[model.Family]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(allSets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[model.Family]*OutputClassSet)}
	for _, set := range allSets {
		set.BuildNameIndexMap()
		mgr.sets[set.Family] = set
	}
	return mgr
}

// GetIndex returns the class index for a given family and name.
func (m *ClassManager) GetIndex(family model.Family, name string) (int, error) {
	set, ok := m.sets[family]
	if !ok {
		return -1, errors.Errorf("family %q not registered", family)
	}
	idx, ok := set.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in family %q", name, family)
	}
	return idx, nil
}

// LabelsFor returns the label table of a family.
func (m *ClassManager) LabelsFor(family model.Family) (model.LabelTable, error) {
	set, ok := m.sets[family]
	if !ok {
		return nil, errors.Errorf("family %q not registered", family)
	}
	return set.LabelTable(), nil
}

// DefaultClassManager returns a manager with the VOC and COCO sets registered.
func DefaultClassManager() *ClassManager {
	voc, coco := VOCClasses, COCOClasses
	return NewClassManager(&voc, &coco)
}

func classSet(family model.Family, names []string) OutputClassSet {
	classes := make([]OutputClass, len(names))
	for i, name := range names {
		classes[i] = OutputClass{Index: i, Name: name}
	}
	return OutputClassSet{Family: family, Classes: classes}
}

// VOCClasses is the 20 Pascal VOC classes, zero-based with no background, as the
// YOLO v2 VOC models emit them.
var VOCClasses = classSet(model.ModelFamilyVOC, model.VOCLabels)

// COCOClasses is the 80 COCO classes, zero-based with no background, as YOLO models
// trained on COCO emit them.
var COCOClasses = classSet(model.ModelFamilyCOCO, []string{
	"person", "bicycle", "car", "motorcycle", "airplane",
	"bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird",
	"cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock",
	"vase", "scissors", "teddy bear", "hair drier", "toothbrush",
})

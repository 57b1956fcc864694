package models

import (
	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/yolov2"
)

// NewModel creates a new detection model instance based on the configured model name.
//
// Arguments:
//   - config: The model configuration, e.g. model.DefaultConfig() or model.LoadConfig(path).
//     An empty label table is filled from the configured family's class set. Relevant
//     classes must be present in the label table.
//
// Returns:
//   - model.Model: A validated model instance.
//   - error: A ConfigurationError if the name is unsupported or the configuration is invalid.
//
// Example:
//
//	config, err := model.LoadConfig("configs/tiny-yolov2-voc.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	detector, err := models.NewModel(config)
func NewModel(config model.Config) (model.Model, error) {
	if len(config.Labels) == 0 {
		labels, err := DefaultClassManager().LabelsFor(config.Family)
		if err != nil {
			return nil, common.NewConfigurationError("NewModel", "no labels configured: %v", err)
		}
		config.Labels = labels
	}

	// Every relevant class must name a label the model can emit.
	set := classSet(config.Family, config.Labels)
	classes := NewClassManager(&set)
	for _, name := range config.RelevantClasses {
		if _, err := classes.GetIndex(config.Family, name); err != nil {
			return nil, common.NewConfigurationError("NewModel", "relevant class: %v", err)
		}
	}

	switch config.Name {
	case model.ModelNameTinyYOLOv2, model.ModelNameYOLOv2:
		m, err := yolov2.NewModel(config)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, common.NewConfigurationError("NewModel", "unsupported model name: %q", config.Name)
	}
}

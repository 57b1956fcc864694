package yolov2

import (
	"testing"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelRejectsInvalidConfig(t *testing.T) {
	config := model.DefaultConfig()
	config.Anchors = config.Anchors[:6]
	config.ConfidenceThreshold = 2

	_, err := NewModel(config)
	require.Error(t, err)
	assert.True(t, common.IsConfigurationError(err), "got %v", err)
}

func TestNewModelCopiesConfig(t *testing.T) {
	config := model.DefaultConfig()
	m, err := NewModel(config)
	require.NoError(t, err)

	config.Labels[0] = "changed"
	config.Anchors[0] = 99
	config.NMS.MaxResults = 1

	opts := m.Options()
	assert.Equal(t, "aeroplane", opts.Labels[0], "caller edits must not leak into the model")
	assert.Equal(t, float32(1.08), opts.Anchors[0])
	assert.Equal(t, 5, opts.NMS.MaxResults)

	opts.Labels[0] = "mutated"
	opts.NMS.IoUThreshold = 0.9
	again := m.Options()
	assert.Equal(t, "aeroplane", again.Labels[0], "Options should return a copy")
	assert.Equal(t, float32(0.3), again.NMS.IoUThreshold)
}

// TestPostProcess runs decode, filtering and suppression end to end on two overlapping
// boxes of the same object plus one distant box.
func TestPostProcess(t *testing.T) {
	config := model.DefaultConfig()
	m, err := NewModel(config)
	require.NoError(t, err)

	b := newGridBuilder(config.Grid)
	person := make([]float32, config.Grid.ClassCount)
	person[14] = 6
	car := make([]float32, config.Grid.ClassCount)
	car[6] = 6

	// Same cell, neighbouring anchors of similar size: heavy overlap.
	b.set(5, 5, 1, 0, 0, 0, 0, 4, person...)
	b.set(5, 5, 1+1, 0, 0, -0.45, -0.95, 2, person...)
	b.set(11, 1, 0, 0, 0, 0, 0, 3, car...)

	candidates, err := m.Decode(b.tensor())
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	dets, err := m.PostProcess(b.tensor())
	require.NoError(t, err)
	require.Len(t, dets, 2, "the weaker overlapping person box should be suppressed")
	assert.Equal(t, "person", dets[0].Label)
	assert.Equal(t, "car", dets[1].Label)
	assert.Greater(t, dets[0].Confidence, dets[1].Confidence)
}

func TestPostProcessRelevantClasses(t *testing.T) {
	config := model.DefaultConfig()
	config.RelevantClasses = []string{"car"}
	m, err := NewModel(config)
	require.NoError(t, err)

	b := newGridBuilder(config.Grid)
	person := make([]float32, config.Grid.ClassCount)
	person[14] = 6
	car := make([]float32, config.Grid.ClassCount)
	car[6] = 6
	b.set(5, 5, 1, 0, 0, 0, 0, 4, person...)
	b.set(11, 1, 0, 0, 0, 0, 0, 3, car...)

	dets, err := m.PostProcess(b.tensor())
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "car", dets[0].Label)
}

func TestPostProcessMaxResults(t *testing.T) {
	config := model.DefaultConfig()
	config.NMS = &postprocess.NMSConfig{MaxResults: 2, IoUThreshold: 0.3}
	m, err := NewModel(config)
	require.NoError(t, err)

	b := newGridBuilder(config.Grid)
	logits := make([]float32, config.Grid.ClassCount)
	logits[2] = 6
	// Small anchor 0 boxes in far apart cells never overlap.
	for i, cell := range [][2]int{{0, 0}, {0, 6}, {6, 0}, {12, 12}} {
		b.set(cell[0], cell[1], 0, 0, 0, 0, 0, float32(1+i), logits...)
	}

	dets, err := m.PostProcess(b.tensor())
	require.NoError(t, err)
	require.Len(t, dets, 2)
	x, y := dets[0].Center()
	assert.InDelta(t, 12*32+16, x, 1e-3, "the most confident box comes first")
	assert.InDelta(t, 12*32+16, y, 1e-3)
	x, y = dets[1].Center()
	assert.InDelta(t, 0*32+16, x, 1e-3)
	assert.InDelta(t, 6*32+16, y, 1e-3)
}

func TestPostProcessRejectsBadTensor(t *testing.T) {
	m, err := NewModel(model.DefaultConfig())
	require.NoError(t, err)

	_, err = m.PostProcess(nil)
	assert.True(t, common.IsConfigurationError(err))
}

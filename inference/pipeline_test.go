package inference

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorgonia.org/tensor"
)

// fakeProducer turns a one-element input into a grid with a single confident slot in
// the cell whose index is the input value. A negative value fails the frame.
type fakeProducer struct {
	grid     model.Grid
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeProducer) Produce(ctx context.Context, input []float32) (tensor.Tensor, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}

	if input[0] < 0 {
		return nil, errors.New("camera unplugged")
	}

	g := f.grid
	data := make([]float32, g.Size())
	for i := 0; i < g.Rows*g.Cols*g.BoxesPerCell; i++ {
		data[i*g.BoxStride()+4] = -10
	}
	cell := int(input[0])
	slot := data[cell*g.Channels() : cell*g.Channels()+g.BoxStride()]
	slot[4] = 3
	slot[model.BoxInfoFeatureCount+14] = 6 // person

	return tensor.New(tensor.WithShape(g.Shape()...), tensor.WithBacking(data)), nil
}

func newPipeline(t *testing.T, concurrency int) (*Pipeline, *fakeProducer) {
	config := model.DefaultConfig()
	m, err := models.NewModel(config)
	require.NoError(t, err)

	producer := &fakeProducer{grid: config.Grid, delay: 5 * time.Millisecond}
	return &Pipeline{
		Producer:    producer,
		Model:       m,
		Concurrency: concurrency,
		Logger:      zaptest.NewLogger(t),
	}, producer
}

func TestPipelineDetect(t *testing.T) {
	p, _ := newPipeline(t, 1)

	dets, err := p.Detect(context.Background(), []float32{13*4 + 7})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Label)

	x, y := dets[0].Center()
	assert.InDelta(t, 7*32+16, x, 1e-3)
	assert.InDelta(t, 4*32+16, y, 1e-3)
}

// TestPipelineDetectBatch checks results come back in input order with the number of
// frames in flight bounded by Concurrency.
func TestPipelineDetectBatch(t *testing.T) {
	p, producer := newPipeline(t, 3)

	inputs := make([][]float32, 12)
	for i := range inputs {
		inputs[i] = []float32{float32(i * 14)}
	}

	results, err := p.DetectBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))

	for i, dets := range results {
		require.Len(t, dets, 1, "frame %d", i)
		x, y := dets[0].Center()
		cell := i * 14
		assert.InDelta(t, float32(cell%13)*32+16, x, 1e-3, "frame %d out of order", i)
		assert.InDelta(t, float32(cell/13)*32+16, y, 1e-3, "frame %d out of order", i)
	}
	assert.LessOrEqual(t, producer.peak.Load(), int32(3), "no more than Concurrency frames in flight")
	assert.GreaterOrEqual(t, producer.peak.Load(), int32(1))
}

func TestPipelineDetectBatchFailure(t *testing.T) {
	p, _ := newPipeline(t, 2)

	inputs := [][]float32{{0}, {1}, {-1}, {3}}
	results, err := p.DetectBatch(context.Background(), inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 2")
	assert.Contains(t, err.Error(), "camera unplugged")
	assert.Nil(t, results)
}

func TestPipelineDetectBatchCancelled(t *testing.T) {
	p, _ := newPipeline(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.DetectBatch(ctx, [][]float32{{0}, {1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineDetectTensors(t *testing.T) {
	p, producer := newPipeline(t, 0)

	var outputs []tensor.Tensor
	for _, cell := range []float32{0, 168} {
		out, err := producer.Produce(context.Background(), []float32{cell})
		require.NoError(t, err)
		outputs = append(outputs, out)
	}
	outputs = append(outputs, tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float32{0, 0})))

	_, err := p.DetectTensors(context.Background(), outputs)
	require.Error(t, err, "a mis-shaped tensor fails the batch")

	results, err := p.DetectTensors(context.Background(), outputs[:2])
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, results[0], 1)
	assert.Len(t, results[1], 1)
	assert.Greater(t, results[1][0].X, results[0][0].X)
}

func TestPipelineRequiresCollaborators(t *testing.T) {
	_, err := (&Pipeline{}).Detect(context.Background(), []float32{0})
	assert.Error(t, err)

	_, err = (&Pipeline{Producer: &fakeProducer{}}).DetectBatch(context.Background(), nil)
	assert.Error(t, err)
}

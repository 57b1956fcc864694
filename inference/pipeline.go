package inference

import (
	"context"
	"runtime"
	"time"

	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// Pipeline runs frames through a Producer and a Model.
//
// The Model is safe for concurrent use; whether frames actually overlap inside the
// Producer is up to the Producer.
type Pipeline struct {
	Producer Producer
	Model    model.Model
	// Concurrency bounds the frames in flight. Values below 1 mean runtime.NumCPU().
	Concurrency int
	// Logger may be nil.
	Logger *zap.Logger
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) limit() int {
	if p.Concurrency < 1 {
		return runtime.NumCPU()
	}
	return p.Concurrency
}

// Detect produces and post-processes one frame.
//
// Arguments:
//   - ctx: Cancels the frame before it reaches the Producer.
//   - input: The preprocessed image.
//
// Returns:
//   - The final detections.
//   - An error from the Producer or a ConfigurationError from the Model.
func (p *Pipeline) Detect(ctx context.Context, input []float32) ([]postprocess.Detection, error) {
	if p.Producer == nil {
		return nil, errors.New("pipeline has no producer")
	}
	output, err := p.Producer.Produce(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to produce output tensor")
	}
	return p.postProcess(output)
}

// DetectTensors post-processes already produced output tensors.
func (p *Pipeline) DetectTensors(ctx context.Context, outputs []tensor.Tensor) ([][]postprocess.Detection, error) {
	return p.run(ctx, len(outputs), func(_ context.Context, i int) ([]postprocess.Detection, error) {
		return p.postProcess(outputs[i])
	})
}

// DetectBatch runs every input through Detect with at most Concurrency frames in flight.
//
// Arguments:
//   - ctx: Cancelling it stops frames that have not started yet.
//   - inputs: The preprocessed images.
//
// Returns:
//   - Per-frame detections, in input order.
//   - The first error encountered. Remaining frames are cancelled.
func (p *Pipeline) DetectBatch(ctx context.Context, inputs [][]float32) ([][]postprocess.Detection, error) {
	return p.run(ctx, len(inputs), func(ctx context.Context, i int) ([]postprocess.Detection, error) {
		return p.Detect(ctx, inputs[i])
	})
}

func (p *Pipeline) run(
	ctx context.Context,
	frames int,
	detect func(ctx context.Context, i int) ([]postprocess.Detection, error),
) ([][]postprocess.Detection, error) {
	if p.Model == nil {
		return nil, errors.New("pipeline has no model")
	}

	log := p.logger()
	results := make([][]postprocess.Detection, frames)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit())

	for i := 0; i < frames; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			dets, err := detect(gctx, i)
			if err != nil {
				log.Error("frame failed", zap.Int("frame", i), zap.Error(err))
				return errors.Wrapf(err, "frame %d", i)
			}

			log.Debug("frame processed",
				zap.Int("frame", i),
				zap.Int("detections", len(dets)),
				zap.Duration("elapsed", time.Since(start)),
			)
			results[i] = dets
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Cancelled before any frame failed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) postProcess(output tensor.Tensor) ([]postprocess.Detection, error) {
	if p.Model == nil {
		return nil, errors.New("pipeline has no model")
	}
	return p.Model.PostProcess(output)
}

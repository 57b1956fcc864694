package inference

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"
)

// Producer produces the raw output grid of a network for one preprocessed input.
type Producer interface {
	Produce(ctx context.Context, input []float32) (tensor.Tensor, error)
}

// SessionArgs represents the arguments for creating a new ONNX Runtime session.
type SessionArgs struct {
	// The path to the ONNX model file.
	ModelPath  string
	InputName  string
	OutputName string
	// InputShape is the preprocessed image shape, e.g. [1, 3, 416, 416].
	InputShape ort.Shape
	// OutputShape is the raw output shape in OutputLayout order.
	OutputShape  ort.Shape
	OutputLayout Layout
	Provider     ProviderConfig
}

// SessionArgsFromConfig derives session arguments from a model configuration: a square
// RGB NCHW input of the grid's input size and an NCHW grid output.
func SessionArgsFromConfig(config model.Config) SessionArgs {
	width, height := config.Grid.InputSize()
	args := SessionArgs{
		ModelPath:    config.Path,
		InputName:    "image",
		OutputName:   "grid",
		InputShape:   ort.NewShape(1, 3, int64(height), int64(width)),
		OutputShape:  ort.NewShape(1, int64(config.Grid.Channels()), int64(config.Grid.Rows), int64(config.Grid.Cols)),
		OutputLayout: LayoutNCHW,
		Provider:     DefaultProviderConfig(),
	}
	if len(config.Inputs) > 0 {
		args.InputName = config.Inputs[0]
	}
	if len(config.Outputs) > 0 {
		args.OutputName = config.Outputs[0]
	}
	return args
}

// Validate checks the arguments before any native resources are touched.
func (a SessionArgs) Validate() error {
	var err error
	if a.ModelPath == "" {
		err = multierr.Append(err, common.NewConfigurationError("session", "model path is required"))
	}
	if a.InputName == "" || a.OutputName == "" {
		err = multierr.Append(err, common.NewConfigurationError("session", "input and output names are required"))
	}
	if !validShape(a.InputShape) {
		err = multierr.Append(err, common.NewConfigurationError("session", "invalid input shape %v", a.InputShape))
	}
	if len(a.OutputShape) != 4 || !validShape(a.OutputShape) {
		err = multierr.Append(err, common.NewConfigurationError("session", "invalid output shape %v", a.OutputShape))
	}
	if a.OutputLayout != LayoutNHWC && a.OutputLayout != LayoutNCHW {
		err = multierr.Append(err, common.NewConfigurationError("session", "unknown output layout %q", a.OutputLayout))
	}
	return multierr.Append(err, a.Provider.Validate())
}

func validShape(shape ort.Shape) bool {
	if len(shape) == 0 {
		return false
	}
	for _, d := range shape {
		if d < 1 {
			return false
		}
	}
	return true
}

// Session represents a model session from the onnxruntime with preallocated input and
// output tensors.
//
// Runs are serialised because the bound tensors are shared; use one Session per
// concurrent stream.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	args    SessionArgs
}

var _ Producer = (*Session)(nil)

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Argument validation.
//  2. Environment setup: loads the native library once per process.
//  3. Tensor allocation: fixed-shape buffers for input and output.
//  4. Session options and execution provider.
//  5. Session creation, binding the model to the buffers.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session. The caller must Close it.
//   - error: An error if the session creation fails.
func NewSession(args SessionArgs) (*Session, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	if err := initEnvironment(); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](args.InputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](args.OutputShape)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := args.Provider.sessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return &Session{
		session: session,
		input:   input,
		output:  output,
		args:    args,
	}, nil
}

// Produce copies input into the session, runs the network and returns the NHWC grid.
//
// Arguments:
//   - ctx: Checked before the run; a run in progress is not interrupted.
//   - input: The preprocessed image, InputShape elements.
//
// Returns:
//   - The output grid, owning its own backing.
//   - An error if the input size is wrong, the session is closed or the run fails.
func (s *Session) Produce(ctx context.Context, input []float32) (tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if want := s.args.InputShape.FlattenedSize(); int64(len(input)) != want {
		return nil, common.NewConfigurationError("produce", "input holds %d values, want %d", len(input), want)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}
	copy(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}
	return GridTensor(s.args.OutputShape, s.output.GetData(), s.args.OutputLayout)
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		err = multierr.Append(err, s.output.Destroy())
		s.output = nil
	}
	return err
}

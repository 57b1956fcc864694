package main

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-tinyyolo/benchmark"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/util"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

const (
	flagDebug       = "debug"
	flagConfig      = "config"
	flagTensor      = "tensor"
	flagLayout      = "layout"
	flagMax         = "max"
	flagIoU         = "iou"
	flagThreshold   = "threshold"
	flagScaleScreen = "scale-screen"
	flagMinArea     = "min-area"
	flagDir         = "dir"
	flagIterations  = "iterations"
	flagWarmup      = "warmup"
	flagOutput      = "output"
	flagModel       = "model"
	flagBackend     = "backend"
	flagConcurrency = "concurrency"

	loggerKey = "logger"
)

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load the model configuration from `FILE` (defaults to Tiny YOLO v2 VOC)",
	}
	thresholdFlags := []cli.Flag{
		&cli.IntFlag{Name: flagMax, Usage: "keep at most `N` detections (overrides config)"},
		&cli.Float64Flag{Name: flagIoU, Usage: "suppress boxes overlapping more than `IOU` (overrides config)"},
		&cli.Float64Flag{Name: flagThreshold, Usage: "minimum confidence (overrides config)"},
	}

	return &cli.App{
		Name:            "tinyyolo",
		Usage:           "decode Tiny YOLO v2 grid outputs into detections",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			logger, err := newLogger(c.Bool(flagDebug))
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{loggerKey: logger}
			return nil
		},
		After: func(c *cli.Context) error {
			_ = loggerFrom(c).Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "decode",
				Usage:     "decode one captured output tensor and print detections as JSON",
				UsageText: "tinyyolo decode --tensor frame-1.npy [--layout nchw] [--scale-screen 1920x1080]",
				Flags: append([]cli.Flag{
					configFlag,
					&cli.StringFlag{Name: flagTensor, Required: true, Usage: "output tensor `FILE` (.npy or raw float32)"},
					&cli.StringFlag{Name: flagLayout, Value: string(inference.LayoutNHWC), Usage: "tensor layout, nhwc or nchw"},
					&cli.StringFlag{Name: flagScaleScreen, Usage: "map boxes onto a `WxH` screen"},
					&cli.Float64Flag{Name: flagMinArea, Usage: "drop detections smaller than `PX` square pixels"},
				}, thresholdFlags...),
				Action: DecodeAction,
			},
			{
				Name:  "bench",
				Usage: "benchmark decoding and suppression over a directory of frame-N tensors",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: flagDir, Required: true, Usage: "`DIR` of frame-N.npy or frame-N.bin tensors"},
					&cli.StringFlag{Name: flagLayout, Value: string(inference.LayoutNHWC), Usage: "tensor layout, nhwc or nchw"},
					&cli.IntFlag{Name: flagIterations, Value: 100, Usage: "measured iterations per scenario"},
					&cli.IntFlag{Name: flagWarmup, Value: 10, Usage: "warmup iterations per scenario"},
					&cli.Float64SliceFlag{Name: flagThreshold, Usage: "sweep these confidence thresholds"},
					&cli.StringFlag{Name: flagOutput, Usage: "also save JSON and CSV results to `DIR`"},
				},
				Action: BenchAction,
			},
			{
				Name:  "detect",
				Usage: "run preprocessed input tensors through ONNX Runtime and print detections as JSON",
				Flags: append([]cli.Flag{
					configFlag,
					&cli.StringFlag{Name: flagModel, Usage: "ONNX model `FILE` (overrides config path)"},
					&cli.StringFlag{Name: flagDir, Required: true, Usage: "`DIR` of frame-N input tensors, 1x3x416x416"},
					&cli.StringFlag{Name: flagBackend, Value: string(inference.CPUProviderBackend), Usage: "cpu, coreml, cuda or openvino"},
					&cli.IntFlag{Name: flagConcurrency, Value: 1, Usage: "frames in flight"},
				}, thresholdFlags...),
				Action: DetectAction,
			},
		},
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loggerFrom(c *cli.Context) *zap.Logger {
	if logger, ok := c.App.Metadata[loggerKey].(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// loadConfig reads --config, or the defaults, and applies threshold overrides.
func loadConfig(c *cli.Context) (model.Config, error) {
	config := model.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		var err error
		if config, err = model.LoadConfig(path); err != nil {
			return model.Config{}, err
		}
	}

	nms := postprocess.DefaultNMSConfig()
	if config.NMS != nil {
		*nms = *config.NMS
	}
	config.NMS = nms
	if c.IsSet(flagMax) {
		config.NMS.MaxResults = c.Int(flagMax)
	}
	if c.IsSet(flagIoU) {
		config.NMS.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagThreshold) {
		config.ConfidenceThreshold = float32(c.Float64(flagThreshold))
	}
	return config, config.Validate()
}

// loadGrid reads a captured output tensor and puts it in NHWC order.
func loadGrid(path string, layout inference.Layout, g model.Grid) (*tensor.Dense, error) {
	t, err := util.LoadTensorFile(path)
	if err != nil {
		return nil, err
	}
	return toGrid(t, layout, g)
}

// toGrid reshapes a loaded tensor to the grid and permutes NCHW data to NHWC.
func toGrid(t *tensor.Dense, layout inference.Layout, g model.Grid) (*tensor.Dense, error) {
	shape := g.Shape()
	if layout == inference.LayoutNCHW {
		shape = []int{1, g.Channels(), g.Rows, g.Cols}
	}
	if t.Size() != tensor.Shape(shape).TotalSize() {
		return nil, errors.Errorf("tensor has %d values, grid %v needs %d", t.Size(), shape, tensor.Shape(shape).TotalSize())
	}
	if layout == inference.LayoutNHWC {
		if err := t.Reshape(shape...); err != nil {
			return nil, errors.Wrap(err, "failed to reshape tensor to grid")
		}
		return t, nil
	}

	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return inference.GridTensor(dims, t.Float32s(), layout)
}

// parseScreen parses "WxH".
func parseScreen(s string) (width, height int, err error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("screen size %q is not WxH", s)
	}
	if width, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, errors.Wrapf(err, "screen width in %q", s)
	}
	if height, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, errors.Wrapf(err, "screen height in %q", s)
	}
	return width, height, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DecodeAction decodes one tensor file.
func DecodeAction(c *cli.Context) error {
	logger := loggerFrom(c)

	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	layout, err := inference.ParseLayout(c.String(flagLayout))
	if err != nil {
		return err
	}
	m, err := models.NewModel(config)
	if err != nil {
		return err
	}

	grid, err := loadGrid(c.String(flagTensor), layout, config.Grid)
	if err != nil {
		return err
	}
	detections, err := m.PostProcess(grid)
	if err != nil {
		return err
	}
	logger.Debug("decoded tensor",
		zap.String("tensor", c.String(flagTensor)),
		zap.Int("detections", len(detections)),
	)

	if minArea := c.Float64(flagMinArea); minArea > 0 {
		detections = postprocess.NewAreaFilter(float32(minArea))(detections)
	}

	st := images.ScreenTransform{Scale: 1}
	if screen := c.String(flagScaleScreen); screen != "" {
		width, height, err := parseScreen(screen)
		if err != nil {
			return err
		}
		inputWidth, _ := config.Grid.InputSize()
		if st, err = images.NewScreenTransform(width, height, int(inputWidth)); err != nil {
			return err
		}
	}

	r := &jsonRenderer{w: c.App.Writer}
	r.Render(detections, st.Scale, st.ShiftX, st.ShiftY)
	return r.err
}

// jsonRenderer writes detections mapped to screen space as a JSON array.
type jsonRenderer struct {
	w   io.Writer
	err error
}

var _ postprocess.Renderer = (*jsonRenderer)(nil)

func (r *jsonRenderer) Render(detections []postprocess.Detection, scale, shiftX, shiftY float32) {
	st := images.ScreenTransform{Scale: scale, ShiftX: shiftX, ShiftY: shiftY}
	out := make([]postprocess.Detection, len(detections))
	for i, d := range detections {
		rect := st.Apply(d.Rect())
		d.X, d.Y = rect.X1, rect.Y1
		d.Width, d.Height = rect.Width(), rect.Height()
		out[i] = d
	}
	r.err = writeJSON(r.w, out)
}

// BenchAction benchmarks the decoder over captured tensors.
func BenchAction(c *cli.Context) error {
	logger := loggerFrom(c)

	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	layout, err := inference.ParseLayout(c.String(flagLayout))
	if err != nil {
		return err
	}

	files, err := util.LoadDirectoryTensorFiles(c.String(flagDir))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no frame-N tensors in %s", c.String(flagDir))
	}
	tensors := make([]tensor.Tensor, 0, len(files))
	for _, f := range files {
		grid, err := toGrid(f.Tensor, layout, config.Grid)
		if err != nil {
			return errors.Wrap(err, f.Path)
		}
		tensors = append(tensors, grid)
	}
	logger.Info("loaded tensors", zap.Int("count", len(tensors)), zap.String("dir", c.String(flagDir)))

	iterations := c.Int(flagIterations)
	var scenarios []benchmark.Scenario
	if thresholds := c.Float64Slice(flagThreshold); len(thresholds) > 0 {
		values := make([]float32, len(thresholds))
		for i, v := range thresholds {
			values[i] = float32(v)
		}
		scenarios = benchmark.ThresholdSweep(iterations, values...).Scenarios
	} else {
		scenarios = []benchmark.Scenario{
			benchmark.NewScenarioBuilder(string(config.Name)).
				WithThreshold(config.ConfidenceThreshold).
				WithNMS(config.NMS.MaxResults, config.NMS.IoUThreshold).
				WithClassAware(config.NMS.ClassAware).
				WithRelevantClasses(config.RelevantClasses...).
				WithIterations(iterations).
				Build(),
		}
	}
	for i := range scenarios {
		scenarios[i].WarmupRuns = c.Int(flagWarmup)
	}

	suite := benchmark.NewSuite(benchmark.NewSuiteArgs{
		Config:    config,
		Tensors:   tensors,
		OutputDir: c.String(flagOutput),
		Logger:    logger,
	})
	suite.AddScenario(scenarios...)
	if err := suite.RunAllScenarios(c.Context); err != nil {
		return err
	}

	results := suite.Results()
	if len(results) == 0 {
		return errors.New("every benchmark scenario failed")
	}
	if c.String(flagOutput) != "" {
		if _, _, err := suite.SaveResults(); err != nil {
			return err
		}
	}
	return writeJSON(c.App.Writer, results)
}

// DetectAction runs inputs through an ONNX Runtime session.
func DetectAction(c *cli.Context) error {
	logger := loggerFrom(c)

	config, err := loadConfig(c)
	if err != nil {
		return err
	}
	if path := c.String(flagModel); path != "" {
		config.Path = path
	}
	m, err := models.NewModel(config)
	if err != nil {
		return err
	}

	args := inference.SessionArgsFromConfig(config)
	args.Provider.Backend = inference.ProviderBackend(c.String(flagBackend))
	session, err := inference.NewSession(args)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	dims := make([]int, len(args.InputShape))
	for i, d := range args.InputShape {
		dims[i] = int(d)
	}
	files, err := util.LoadDirectoryTensorFiles(c.String(flagDir), dims...)
	if err != nil {
		return err
	}
	inputs := make([][]float32, len(files))
	for i, f := range files {
		inputs[i] = f.Tensor.Float32s()
	}

	pipeline := &inference.Pipeline{
		Producer:    session,
		Model:       m,
		Concurrency: c.Int(flagConcurrency),
		Logger:      logger,
	}
	results, err := pipeline.DetectBatch(c.Context, inputs)
	if err != nil {
		return err
	}

	type frameResult struct {
		Frame      int                     `json:"frame"`
		Path       string                  `json:"path"`
		Detections []postprocess.Detection `json:"detections"`
	}
	out := make([]frameResult, len(files))
	for i, f := range files {
		out[i] = frameResult{Frame: f.Frame, Path: f.Path, Detections: results[i]}
	}
	logger.Info("detection finished", zap.Int("frames", len(out)))
	return writeJSON(c.App.Writer, out)
}

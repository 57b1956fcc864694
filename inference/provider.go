package inference

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnv overrides the ONNX Runtime shared library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU execution provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// CUDAProviderBackend uses NVIDIA CUDA.
	CUDAProviderBackend ProviderBackend = "cuda"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// ProviderConfig selects the execution provider and threading of a session.
type ProviderConfig struct {
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// DeviceID is passed to CUDA and OpenVINO.
	DeviceID string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	// DeviceType is the OpenVINO device, e.g. CPU, GPU or NPU.
	DeviceType string `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	// Thread counts; 0 lets ONNX Runtime decide.
	IntraOpThreads int `json:"intra_op_threads,omitempty" yaml:"intra_op_threads,omitempty"`
	InterOpThreads int `json:"inter_op_threads,omitempty" yaml:"inter_op_threads,omitempty"`
}

// DefaultProviderConfig returns a CPU provider with runtime-chosen thread counts.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{Backend: CPUProviderBackend}
}

// Validate checks the backend is known and thread counts are not negative.
func (c ProviderConfig) Validate() error {
	switch c.Backend {
	case CPUProviderBackend, CoreMLProviderBackend, CUDAProviderBackend, OpenVINOProviderBackend:
	default:
		return common.NewConfigurationError("provider", "unsupported backend %q", c.Backend)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return common.NewConfigurationError("provider", "thread counts must not be negative")
	}
	return nil
}

// sessionOptions builds ONNX Runtime session options for the provider. The caller
// destroys them.
func (c ProviderConfig) sessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := c.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (c ProviderConfig) apply(options *ort.SessionOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch c.Backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOProviderBackend:
		// See:
		// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
		config := map[string]string{"device_type": c.DeviceType}
		if c.DeviceID != "" {
			config["device_id"] = c.DeviceID
		}
		if c.IntraOpThreads > 0 {
			config["num_of_threads"] = fmt.Sprintf("%d", c.IntraOpThreads)
		}
		if err := options.AppendExecutionProviderOpenVINO(config); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case CUDAProviderBackend:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if c.DeviceID != "" {
			if err := cuda.Update(map[string]string{"device_id": c.DeviceID}); err != nil {
				return errors.Wrap(err, "error converting CUDA options")
			}
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	}
	return nil
}

// SharedLibraryPath returns the ONNX Runtime shared library for the current platform,
// or the value of SharedLibraryEnv when set.
func SharedLibraryPath() string {
	if path := os.Getenv(SharedLibraryEnv); path != "" {
		return path
	}
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
}

var (
	environmentOnce sync.Once
	environmentErr  error
)

// initEnvironment loads the shared library and prepares the ONNX Runtime environment,
// once per process.
func initEnvironment() error {
	libPath := SharedLibraryPath()
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s (set %s)", libPath, SharedLibraryEnv)
	}

	environmentOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			environmentErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return environmentErr
}

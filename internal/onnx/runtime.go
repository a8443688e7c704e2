// Package onnx loads the embedding and classifier models through ONNX
// Runtime.
//
// Both models run on DynamicAdvancedSessions with per-call input and output
// tensors, so a single session can serve concurrent requests without a lock.
// The ONNX Runtime shared library must be initialised once per process with
// Init before any model is opened.
package onnx

import (
	"fmt"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// Runtime owns the process-wide ONNX Runtime environment.
type Runtime struct {
	log *logger.Logger
}

// Init points onnxruntime_go at the shared library and initialises the
// environment. libPath may be empty to use the platform default.
func Init(libPath string, log *logger.Logger) (*Runtime, error) {
	if ort.IsInitialized() {
		return &Runtime{log: log}, nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	log.Debug("onnx: initializing runtime (lib=%s)", libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: onnx runtime init: %v", domain.ErrModelUnavailable, err)
	}
	log.Debug("onnx: runtime initialized (version %s)", ort.GetVersion())
	return &Runtime{log: log}, nil
}

// Close tears the environment down. Destroy every session first.
func (r *Runtime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	r.log.Debug("onnx: destroying runtime")
	return ort.DestroyEnvironment()
}

// lastDim returns the trailing dimension of a model input or output, or 0
// when it is dynamic.
func lastDim(shape ort.Shape) int {
	if len(shape) == 0 {
		return 0
	}
	d := shape[len(shape)-1]
	if d < 0 {
		return 0
	}
	return int(d)
}

package onnx

import (
	"context"
	"fmt"
	"strings"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// YAMNet pipeline constants. The model consumes a 16 kHz mono waveform and
// emits one embedding per 0.96 s patch with a 0.48 s hop.
const (
	YAMNetSampleRate   = 16000
	YAMNetMinSamples   = 15600 // shortest input that yields a patch
	YAMNetEmbeddingDim = 1024
)

// YAMNetConfig locates the exported model.
type YAMNetConfig struct {
	ModelPath string
	// InputName and EmbeddingOutput default to the model's first input and
	// to the output whose name contains "embedding".
	InputName       string
	EmbeddingOutput string
}

// YAMNet produces per-frame embeddings for a waveform.
type YAMNet struct {
	session *ort.DynamicAdvancedSession
	dim     int
	log     *logger.Logger
}

// NewYAMNet opens the model. Failure here is fatal for the process.
func NewYAMNet(cfg YAMNetConfig, log *logger.Logger) (*YAMNet, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrModelUnavailable, cfg.ModelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no inputs or outputs", domain.ErrModelUnavailable, cfg.ModelPath)
	}

	inName := cfg.InputName
	if inName == "" {
		inName = inputs[0].Name
	}

	outName := cfg.EmbeddingOutput
	dim := 0
	for _, o := range outputs {
		if (outName == "" && strings.Contains(strings.ToLower(o.Name), "embedding")) || o.Name == outName {
			outName = o.Name
			dim = lastDim(o.Dimensions)
			break
		}
	}
	if outName == "" {
		return nil, fmt.Errorf("%w: no embedding output in %s", domain.ErrModelUnavailable, cfg.ModelPath)
	}
	if dim == 0 {
		dim = YAMNetEmbeddingDim
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inName}, []string{outName}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrModelUnavailable, cfg.ModelPath, err)
	}

	log.Info("onnx: embedding model loaded (%s, in=%s, out=%s, dim=%d)", cfg.ModelPath, inName, outName, dim)
	return &YAMNet{session: session, dim: dim, log: log}, nil
}

// Dim returns the embedding dimension.
func (y *YAMNet) Dim() int { return y.dim }

// MinSamples is the shortest waveform that produces a frame.
func (y *YAMNet) MinSamples() int { return YAMNetMinSamples }

// Frames runs the waveform through the model. Inputs shorter than one patch
// return no frames without touching the runtime.
func (y *YAMNet) Frames(ctx context.Context, samples []float32) ([][]float32, error) {
	if len(samples) < YAMNetMinSamples {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(int64(len(samples))), samples)
	if err != nil {
		return nil, fmt.Errorf("onnx: input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := y.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: embedding run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected embedding output type %T", outputs[0])
	}
	shape := out.GetShape()
	if len(shape) != 2 || int(shape[1]) != y.dim {
		return nil, fmt.Errorf("onnx: unexpected embedding shape %v", shape)
	}

	data := out.GetData()
	n := int(shape[0])
	frames := make([][]float32, n)
	for i := 0; i < n; i++ {
		f := make([]float32, y.dim)
		copy(f, data[i*y.dim:(i+1)*y.dim])
		frames[i] = f
	}
	y.log.Debug("onnx: %d samples -> %d embedding frames", len(samples), n)
	return frames, nil
}

// Close releases the session.
func (y *YAMNet) Close() error {
	return y.session.Destroy()
}

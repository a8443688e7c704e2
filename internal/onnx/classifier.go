package onnx

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// Classifier is a binary cry head taking a [1, dim] embedding and
// returning a [1, 1] sigmoid probability.
type Classifier struct {
	session *ort.DynamicAdvancedSession
	dim     int
	log     *logger.Logger
}

// NewClassifier opens the classifier model and reads its input dimension.
func NewClassifier(modelPath string, log *logger.Logger) (*Classifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrModelUnavailable, modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no inputs or outputs", domain.ErrModelUnavailable, modelPath)
	}

	dim := lastDim(inputs[0].Dimensions)
	if dim == 0 {
		return nil, fmt.Errorf("%w: %s has a dynamic input dimension", domain.ErrConfiguration, modelPath)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrModelUnavailable, modelPath, err)
	}

	log.Info("onnx: classifier loaded (%s, dim=%d)", modelPath, dim)
	return &Classifier{session: session, dim: dim, log: log}, nil
}

// InputDim returns the expected embedding dimension.
func (c *Classifier) InputDim() int { return c.dim }

// Predict returns the raw model probability for one embedding.
func (c *Classifier) Predict(ctx context.Context, embedding []float32) (float64, error) {
	if len(embedding) != c.dim {
		return 0, fmt.Errorf("%w: embedding dim %d, classifier expects %d", domain.ErrConfiguration, len(embedding), c.dim)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data := make([]float32, c.dim)
	copy(data, embedding)
	in, err := ort.NewTensor(ort.NewShape(1, int64(c.dim)), data)
	if err != nil {
		return 0, fmt.Errorf("onnx: classifier input: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{in}, outputs); err != nil {
		return 0, fmt.Errorf("onnx: classifier run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("onnx: unexpected classifier output type %T", outputs[0])
	}
	values := out.GetData()
	if len(values) == 0 {
		return 0, fmt.Errorf("onnx: classifier returned no values")
	}
	return float64(values[0]), nil
}

// Close releases the session.
func (c *Classifier) Close() error {
	return c.session.Destroy()
}

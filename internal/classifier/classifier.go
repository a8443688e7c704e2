// Package classifier maps embeddings to calibrated cry probabilities.
package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// Model is a loaded binary head. Implementations must be safe for
// concurrent Predict calls.
type Model interface {
	Predict(ctx context.Context, embedding []float32) (float64, error)
	InputDim() int
}

// Classifier validates and clamps model output.
type Classifier struct {
	model Model
	log   *logger.Logger
}

// New checks the model against the embedding dimension the feature
// extractor produces.
func New(model Model, embeddingDim int, log *logger.Logger) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: no classifier model loaded", domain.ErrModelUnavailable)
	}
	if model.InputDim() != embeddingDim {
		return nil, fmt.Errorf("%w: classifier input dim %d does not match embedding dim %d",
			domain.ErrConfiguration, model.InputDim(), embeddingDim)
	}
	return &Classifier{model: model, log: log}, nil
}

// Classify returns the probability that the embedding is a cry.
func (c *Classifier) Classify(ctx context.Context, embedding domain.Embedding) (float64, error) {
	p, err := c.model.Predict(ctx, embedding)
	if err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("classify: model returned NaN")
	}
	if p < 0 || p > 1 {
		c.log.Debug("classifier: clamping out-of-range probability %.4f", p)
		p = math.Max(0, math.Min(1, p))
	}
	return p, nil
}

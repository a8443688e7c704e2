package classifier

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/hammamikhairi/guardian/internal/domain"
	"gopkg.in/yaml.v3"
)

// Logistic is a single-layer sigmoid head: p = σ(w·x + b).
type Logistic struct {
	Weights []float64 `yaml:"weights" json:"weights"`
	Bias    float64   `yaml:"bias" json:"bias"`
}

var _ Model = (*Logistic)(nil)

// LoadLogistic reads weights from a YAML or JSON file.
func LoadLogistic(path string) (*Logistic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrModelUnavailable, path, err)
	}
	var l Logistic
	// JSON is a subset of YAML, so one decoder covers both.
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrModelUnavailable, path, err)
	}
	if len(l.Weights) == 0 {
		return nil, fmt.Errorf("%w: %s has no weights", domain.ErrModelUnavailable, path)
	}
	return &l, nil
}

// InputDim returns the number of weights.
func (l *Logistic) InputDim() int { return len(l.Weights) }

// Predict applies the head.
func (l *Logistic) Predict(_ context.Context, embedding []float32) (float64, error) {
	if len(embedding) != len(l.Weights) {
		return 0, fmt.Errorf("%w: embedding dim %d, weights %d", domain.ErrConfiguration, len(embedding), len(l.Weights))
	}
	z := l.Bias
	for i, w := range l.Weights {
		z += w * float64(embedding[i])
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Package features turns audio clips into fixed-length embeddings.
package features

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/guardian/internal/audio"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// FrameModel produces one embedding per analysis frame of a 16 kHz mono
// waveform. Inputs too short for a single frame yield no frames.
type FrameModel interface {
	Frames(ctx context.Context, samples []float32) ([][]float32, error)
	Dim() int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithSampleRate overrides the rate clips are resampled to before framing.
func WithSampleRate(rate int) Option {
	return func(e *Extractor) {
		e.rate = rate
	}
}

// Extractor decodes clips and mean-pools frame embeddings.
type Extractor struct {
	model FrameModel
	rate  int
	log   *logger.Logger
}

// NewExtractor creates an extractor over the given frame model.
func NewExtractor(model FrameModel, log *logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		model: model,
		rate:  domain.TargetSampleRate,
		log:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dim returns the embedding dimension.
func (e *Extractor) Dim() int { return e.model.Dim() }

// Extract decodes the clip, resamples it and returns the mean frame
// embedding.
func (e *Extractor) Extract(ctx context.Context, clip domain.AudioClip) (domain.Embedding, error) {
	pcm, err := audio.Prepare(clip, e.rate)
	if err != nil {
		return nil, err
	}
	e.log.Debug("features: decoded %d samples (%s)", len(pcm.Samples), pcm.Duration())
	return e.ExtractSamples(ctx, pcm.Samples)
}

// ExtractSamples is Extract for samples already at the extractor's rate.
func (e *Extractor) ExtractSamples(ctx context.Context, samples []float32) (domain.Embedding, error) {
	frames, err := e.model.Frames(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("frame model: %w", err)
	}
	if len(frames) == 0 {
		return nil, domain.ErrEmptyClip
	}
	dim := e.model.Dim()
	for i, f := range frames {
		if len(f) != dim {
			return nil, fmt.Errorf("%w: frame %d has dim %d, model reports %d", domain.ErrConfiguration, i, len(f), dim)
		}
	}
	return Mean(frames), nil
}

// Mean averages frames element-wise. Accumulation is done in float64 so the
// result does not depend on frame count rounding.
func Mean(frames [][]float32) domain.Embedding {
	if len(frames) == 0 {
		return nil
	}
	dim := len(frames[0])
	acc := make([]float64, dim)
	for _, f := range frames {
		for j := 0; j < dim; j++ {
			acc[j] += float64(f[j])
		}
	}
	out := make(domain.Embedding, dim)
	n := float64(len(frames))
	for j := range acc {
		out[j] = float32(acc[j] / n)
	}
	return out
}

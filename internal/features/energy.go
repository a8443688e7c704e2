package features

import (
	"context"
	"math"
)

// Framing used by EnergyModel. It mirrors the YAMNet patch layout so the two
// models accept and reject the same clip lengths.
const (
	EnergyWindow = 15600
	EnergyHop    = 7680
	EnergyDim    = 4
)

// EnergyModel is a pure-Go frame model computing time-domain descriptors per
// window: RMS, zero-crossing rate, peak amplitude and crest factor. It backs
// the logistic classifier when no ONNX runtime is installed.
type EnergyModel struct{}

// Dim returns EnergyDim.
func (EnergyModel) Dim() int { return EnergyDim }

// Frames slices samples into EnergyWindow-long frames every EnergyHop
// samples. A trailing partial window is dropped.
func (EnergyModel) Frames(ctx context.Context, samples []float32) ([][]float32, error) {
	if len(samples) < EnergyWindow {
		return nil, nil
	}
	var frames [][]float32
	for start := 0; start+EnergyWindow <= len(samples); start += EnergyHop {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames = append(frames, describe(samples[start:start+EnergyWindow]))
	}
	return frames, nil
}

func describe(w []float32) []float32 {
	var (
		sumSq     float64
		peak      float64
		crossings int
	)
	for i, s := range w {
		v := float64(s)
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
		if i > 0 && (w[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}
	rms := math.Sqrt(sumSq / float64(len(w)))
	crest := 0.0
	if rms > 0 {
		crest = peak / rms
	}
	return []float32{
		float32(rms),
		float32(crossings) / float32(len(w)-1),
		float32(peak),
		float32(crest),
	}
}

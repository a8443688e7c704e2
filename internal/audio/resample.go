package audio

import "math"

// Resample converts samples from one rate to another with linear
// interpolation. Output length is round(len * to / from).
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	if len(samples) == 0 {
		return nil
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}

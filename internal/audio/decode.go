// Package audio turns uploaded clip bytes into mono float32 samples at the
// rate the embedding model expects.
package audio

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
)

// PCM is decoded mono audio with samples in [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the samples.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// format is a sniffed container type.
type format int

const (
	formatUnknown format = iota
	formatWAV
	formatMP3
)

// sniff inspects magic bytes first and only falls back to the declared
// content type when the header is inconclusive.
func sniff(data []byte, contentType string) format {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return formatWAV
	}
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return formatMP3
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return formatMP3
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return formatMP3
	case strings.Contains(ct, "wav"):
		return formatWAV
	}
	return formatUnknown
}

// Decode decodes a clip into mono samples at the clip's native rate.
// Every failure wraps domain.ErrDecode.
func Decode(clip domain.AudioClip) (PCM, error) {
	if len(clip.Data) == 0 {
		return PCM{}, fmt.Errorf("%w: empty body", domain.ErrDecode)
	}

	var (
		samples  []float32
		channels int
		rate     int
		err      error
	)
	switch sniff(clip.Data, clip.ContentType) {
	case formatWAV:
		samples, channels, rate, err = decodeWAV(clip.Data)
	case formatMP3:
		samples, channels, rate, err = decodeMP3(clip.Data)
	default:
		return PCM{}, fmt.Errorf("%w: unrecognised container (content-type %q)", domain.ErrDecode, clip.ContentType)
	}
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if rate <= 0 {
		rate = clip.SampleRate
	}
	if rate <= 0 {
		return PCM{}, fmt.Errorf("%w: unknown sample rate", domain.ErrDecode)
	}

	return PCM{Samples: Mono(samples, channels), SampleRate: rate}, nil
}

// Prepare decodes a clip and resamples it to the given rate.
func Prepare(clip domain.AudioClip, rate int) (PCM, error) {
	pcm, err := Decode(clip)
	if err != nil {
		return PCM{}, err
	}
	if pcm.SampleRate == rate {
		return pcm, nil
	}
	return PCM{Samples: Resample(pcm.Samples, pcm.SampleRate, rate), SampleRate: rate}, nil
}

// Mono averages interleaved channels into one.
func Mono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

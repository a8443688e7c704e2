package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatFloat is the IEEE float format tag. go-audio reads samples by bit
// depth alone, so float data is converted here.
const wavFormatFloat = 3

// decodeWAV returns interleaved float32 samples with the channel count and
// sample rate from the fmt chunk.
func decodeWAV(data []byte) ([]float32, int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, 0, errors.New("not a valid WAV file")
	}
	channels, rate := int(d.NumChans), int(d.SampleRate)

	if d.WavAudioFormat == wavFormatFloat {
		samples, err := floatPCM(d)
		return samples, channels, rate, err
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading PCM: %w", err)
	}
	samples, err := scaleInts(buf.Data, int(d.BitDepth))
	return samples, channels, rate, err
}

// scaleInts maps integer samples of the given depth onto [-1, 1).
func scaleInts(in []int, bits int) ([]float32, error) {
	out := make([]float32, len(in))
	switch bits {
	case 8:
		// 8-bit WAV is unsigned with a 128 midpoint.
		for i, v := range in {
			out[i] = (float32(v) - 128) / 128
		}
	case 16, 24, 32:
		full := float32(int64(1) << (bits - 1))
		for i, v := range in {
			out[i] = float32(v) / full
		}
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth %d", bits)
	}
	return out, nil
}

func floatPCM(d *wav.Decoder) ([]float32, error) {
	if d.BitDepth != 32 {
		return nil, fmt.Errorf("unsupported float WAV bit depth %d", d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seeking PCM: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(d.PCMChunk.R, int64(d.PCMChunk.Size)))
	if err != nil {
		return nil, fmt.Errorf("reading PCM: %w", err)
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// EncodeWAV writes mono float samples as a 16-bit PCM WAV file.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}
	return EncodeWAV16(pcm, sampleRate)
}

// EncodeWAV16 writes mono 16-bit samples as a PCM WAV file.
func EncodeWAV16(pcm []int16, sampleRate int) []byte {
	ints := make([]int, len(pcm))
	for i, v := range pcm {
		ints[i] = int(v)
	}
	out, err := encodeInts(ints, sampleRate, 16)
	if err != nil {
		// Writes to memory only fail on a bad bit depth.
		panic(err)
	}
	return out
}

// encodeInts writes mono integer samples at the given bit depth.
func encodeInts(samples []int, sampleRate, bits int) ([]byte, error) {
	var f memFile
	enc := wav.NewEncoder(&f, sampleRate, bits, 1, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bits,
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return f.buf, nil
}

// memFile is an in-memory io.WriteSeeker; the encoder seeks back to patch
// chunk sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, errors.New("memfile: bad whence")
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = next
	return int64(next), nil
}

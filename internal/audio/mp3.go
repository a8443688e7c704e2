package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// decodeMP3 decodes an MP3 stream. go-mp3 always yields 16-bit
// little-endian stereo.
func decodeMP3(data []byte) ([]float32, int, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, 0, err
	}

	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return out, 2, d.SampleRate(), nil
}

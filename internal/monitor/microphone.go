package monitor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/guardian/internal/logger"
)

const chunkQueueCap = 32

// Microphone captures 16-bit mono PCM from the default input device.
type Microphone struct {
	rate int
	log  *logger.Logger
}

var _ Capture = (*Microphone)(nil)

// NewMicrophone creates a capture for the default device at the given rate.
func NewMicrophone(rate int, log *logger.Logger) *Microphone {
	return &Microphone{rate: rate, log: log}
}

// SampleRate implements Capture.
func (m *Microphone) SampleRate() int { return m.rate }

// Stream opens the device and delivers chunks until ctx is cancelled.
// Chunks are dropped when the consumer falls behind.
func (m *Microphone) Stream(ctx context.Context, out chan<- []int16) error {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		m.log.Debug("malgo: %s", msg)
	})
	if err != nil {
		return fmt.Errorf("audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(m.rate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	chunks := make(chan []int16, chunkQueueCap)
	var drops atomic.Int64

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			pcm := make([]int16, len(raw)/2)
			for i := range pcm {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			select {
			case chunks <- pcm:
			default:
				drops.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		return fmt.Errorf("audio device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("audio device start: %w", err)
	}
	defer func() { _ = device.Stop() }()
	m.log.Info("microphone: capturing at %d Hz", m.rate)

	for {
		select {
		case <-ctx.Done():
			if n := drops.Load(); n > 0 {
				m.log.Warn("microphone: dropped %d chunks", n)
			}
			return nil
		case pcm := <-chunks:
			select {
			case out <- pcm:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

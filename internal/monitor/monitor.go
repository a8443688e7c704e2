// Package monitor listens to a live audio source and classifies it in
// fixed windows, the same way an uploaded clip is classified.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/guardian/internal/audio"
	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// Capture delivers raw 16-bit mono PCM chunks until ctx is cancelled.
type Capture interface {
	Stream(ctx context.Context, out chan<- []int16) error
	SampleRate() int
}

// Predictor classifies one clip for a source.
type Predictor interface {
	Predict(ctx context.Context, clip domain.AudioClip, sourceID string) (engine.Result, error)
}

// Defaults.
const (
	DefaultSource = "nursery"
	DefaultWindow = 3 * time.Second
)

// Option configures the monitor.
type Option func(*Monitor)

// WithSource sets the source id verdicts are recorded under.
func WithSource(id string) Option {
	return func(m *Monitor) {
		if id != "" {
			m.source = id
		}
	}
}

// WithWindow sets the length of each classified window.
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.window = d
		}
	}
}

// Monitor cuts the capture stream into windows and predicts each one.
type Monitor struct {
	capture   Capture
	predictor Predictor
	source    string
	window    time.Duration
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a monitor.
func New(capture Capture, predictor Predictor, log *logger.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		capture:   capture,
		predictor: predictor,
		source:    DefaultSource,
		window:    DefaultWindow,
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the monitor in the background. Non-blocking.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warn("monitor already running")
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		if err := m.Run(childCtx); err != nil {
			m.log.Error("monitor: %v", err)
		}
	}()
}

// Stop cancels a monitor started with Start and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	done := m.done
	m.mu.Unlock()

	<-done
	m.log.Info("monitor stopped")
}

// Run blocks until ctx is cancelled or the capture fails.
func (m *Monitor) Run(ctx context.Context) error {
	rate := m.capture.SampleRate()
	if rate <= 0 {
		return errors.New("monitor: capture reports no sample rate")
	}
	size := int(m.window.Seconds() * float64(rate))
	if size <= 0 {
		return errors.New("monitor: window shorter than one sample")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []int16, chunkQueueCap)
	errc := make(chan error, 1)
	go func() {
		errc <- m.capture.Stream(ctx, chunks)
	}()

	m.log.Info("monitor: listening as %q in %s windows", m.source, m.window)
	buf := make([]int16, 0, size)
	for {
		select {
		case <-ctx.Done():
			<-errc
			return nil
		case err := <-errc:
			if err != nil {
				return err
			}
			return nil
		case pcm := <-chunks:
			for len(pcm) > 0 {
				n := min(size-len(buf), len(pcm))
				buf = append(buf, pcm[:n]...)
				pcm = pcm[n:]
				if len(buf) == size {
					m.classify(ctx, buf, rate)
					buf = buf[:0]
				}
			}
		}
	}
}

func (m *Monitor) classify(ctx context.Context, pcm []int16, rate int) {
	clip := domain.AudioClip{
		Data:        audio.EncodeWAV16(pcm, rate),
		ContentType: "audio/wav",
		SampleRate:  rate,
	}
	res, err := m.predictor.Predict(ctx, clip, m.source)
	switch {
	case err == nil:
		if res.Verdict.IsCry() {
			m.log.Info("monitor: cry p=%.2f escalated=%v", res.Verdict.Probability, res.Escalated)
		}
	case errors.Is(err, domain.ErrEmptyClip), ctx.Err() != nil:
		m.log.Debug("monitor: window skipped: %v", err)
	default:
		m.log.Warn("monitor: prediction failed: %v", err)
	}
}

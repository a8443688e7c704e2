// Package lullaby writes a short bedtime story for a topic and narrates it.
package lullaby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// ErrEmptyTopic is returned for a blank topic before any service is called.
var ErrEmptyTopic = errors.New("lullaby topic is empty")

// Option configures the generator.
type Option func(*Generator)

// WithVoice sets the voice id passed to the synthesizer.
func WithVoice(id string) Option {
	return func(g *Generator) {
		g.voiceID = id
	}
}

// WithTextTimeout bounds the language-generation stage.
func WithTextTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.textTimeout = d
	}
}

// WithSpeechTimeout bounds the synthesis stage.
func WithSpeechTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.speechTimeout = d
	}
}

// Generator runs the two-stage text then speech pipeline.
type Generator struct {
	writer        domain.TextGenerator
	voice         domain.SpeechSynthesizer
	voiceID       string
	textTimeout   time.Duration
	speechTimeout time.Duration
	log           *logger.Logger
}

// New creates a generator.
func New(writer domain.TextGenerator, voice domain.SpeechSynthesizer, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		writer:        writer,
		voice:         voice,
		textTimeout:   30 * time.Second,
		speechTimeout: 60 * time.Second,
		log:           log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ContentType reports the MIME type of the generated audio.
func (g *Generator) ContentType() string { return g.voice.ContentType() }

// Prompt builds the story request for a topic.
func Prompt(topic string) string {
	return fmt.Sprintf("Write a short, gentle bedtime lullaby story about %s for a baby who is trying to fall asleep.", topic)
}

// Generate writes a story about topic and returns the narrated audio. The
// synthesizer is never called when the text stage fails.
func (g *Generator) Generate(ctx context.Context, topic string) ([]byte, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	text, err := g.write(ctx, topic)
	if err != nil {
		return nil, err
	}
	g.log.Debug("lullaby: story for %q ready (%d chars)", topic, len(text))

	return g.narrate(ctx, topic, text)
}

func (g *Generator) write(ctx context.Context, topic string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, g.textTimeout)
	defer cancel()

	text, err := g.writer.GenerateText(tctx, Prompt(topic))
	if err != nil {
		return "", stageError("text generation", tctx, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text generation returned nothing", domain.ErrService)
	}
	return text, nil
}

type synthResult struct {
	audio []byte
	err   error
}

// narrate runs synthesis in its own goroutine so a cancelled caller is
// released immediately. A result that lands afterwards is dropped.
func (g *Generator) narrate(ctx context.Context, topic, text string) ([]byte, error) {
	sctx, cancel := context.WithTimeout(ctx, g.speechTimeout)
	defer cancel()

	done := make(chan synthResult, 1)
	go func() {
		audio, err := g.voice.Synthesize(sctx, text, g.voiceID)
		done <- synthResult{audio: audio, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, stageError("speech synthesis", sctx, r.err)
		}
		if len(r.audio) == 0 {
			return nil, fmt.Errorf("%w: speech synthesis returned no audio", domain.ErrService)
		}
		return r.audio, nil
	case <-sctx.Done():
		go func() {
			if r := <-done; r.err == nil && len(r.audio) > 0 {
				g.log.Warn("lullaby: discarding %d bytes of late audio for %q", len(r.audio), topic)
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: speech synthesis", domain.ErrTimeout)
	}
}

// stageError maps a stage deadline to ErrTimeout and leaves caller
// cancellation untouched.
func stageError(stage string, stageCtx context.Context, err error) error {
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, stage, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

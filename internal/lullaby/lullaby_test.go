package lullaby

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// recorder is shared by the fakes so tests can assert call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeWriter struct {
	rec   *recorder
	text  string
	err   error
	delay time.Duration
}

func (f *fakeWriter) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.rec.add("text:" + prompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeVoice struct {
	rec     *recorder
	audio   []byte
	err     error
	release chan struct{}
}

func (f *fakeVoice) ContentType() string { return "audio/mpeg" }

func (f *fakeVoice) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.rec.add("speech:" + text)
	if f.release != nil {
		<-f.release
	}
	return f.audio, f.err
}

func newGen(w *fakeWriter, v *fakeVoice, opts ...Option) *Generator {
	return New(w, v, logger.New(logger.LevelOff, nil), opts...)
}

func TestGenerateOrdersTextThenSpeech(t *testing.T) {
	rec := &recorder{}
	g := newGen(
		&fakeWriter{rec: rec, text: "Twinkle, little star."},
		&fakeVoice{rec: rec, audio: []byte{1, 2, 3}},
	)

	audio, err := g.Generate(context.Background(), "stars")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) == 0 {
		t.Fatal("expected audio")
	}
	calls := rec.list()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", calls)
	}
	if !strings.HasPrefix(calls[0], "text:") || !strings.Contains(calls[0], "stars") {
		t.Fatalf("first call = %q", calls[0])
	}
	if calls[1] != "speech:Twinkle, little star." {
		t.Fatalf("second call = %q", calls[1])
	}
	if g.ContentType() != "audio/mpeg" {
		t.Fatalf("content type = %s", g.ContentType())
	}
}

func TestGenerateTextFailureSkipsSpeech(t *testing.T) {
	tests := []struct {
		name   string
		writer *fakeWriter
	}{
		{"service error", &fakeWriter{err: domain.ErrService}},
		{"empty text", &fakeWriter{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			tt.writer.rec = rec
			g := newGen(tt.writer, &fakeVoice{rec: rec, audio: []byte{1}})

			_, err := g.Generate(context.Background(), "stars")
			if !errors.Is(err, domain.ErrService) {
				t.Fatalf("expected ErrService, got %v", err)
			}
			for _, c := range rec.list() {
				if strings.HasPrefix(c, "speech:") {
					t.Fatalf("synthesizer called after text failure: %v", rec.list())
				}
			}
		})
	}
}

func TestGenerateEmptyTopic(t *testing.T) {
	rec := &recorder{}
	g := newGen(&fakeWriter{rec: rec, text: "x"}, &fakeVoice{rec: rec, audio: []byte{1}})
	if _, err := g.Generate(context.Background(), "  "); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
	if len(rec.list()) != 0 {
		t.Fatalf("no service should be called, got %v", rec.list())
	}
}

func TestGenerateSpeechFailureDiscardsText(t *testing.T) {
	rec := &recorder{}
	g := newGen(&fakeWriter{rec: rec, text: "story"}, &fakeVoice{rec: rec, err: domain.ErrService})
	audio, err := g.Generate(context.Background(), "moon")
	if !errors.Is(err, domain.ErrService) || audio != nil {
		t.Fatalf("expected ErrService and no audio, got %v / %v", err, audio)
	}
}

func TestGenerateTextTimeout(t *testing.T) {
	rec := &recorder{}
	g := newGen(
		&fakeWriter{rec: rec, text: "late", delay: time.Second},
		&fakeVoice{rec: rec, audio: []byte{1}},
		WithTextTimeout(20*time.Millisecond),
	)
	_, err := g.Generate(context.Background(), "clouds")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateCancelledDuringSpeech(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	defer close(release)
	g := newGen(
		&fakeWriter{rec: rec, text: "story"},
		&fakeVoice{rec: rec, audio: []byte{9}, release: release},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			if len(rec.list()) == 2 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	audio, err := g.Generate(ctx, "sheep")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if audio != nil {
		t.Fatalf("cancelled request must not deliver audio")
	}
}

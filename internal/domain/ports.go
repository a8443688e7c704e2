package domain

import (
	"context"
	"time"
)

// MessagingGateway delivers a text message to a caregiver. Implementations
// can be Twilio, a log sink, or anything else that returns a message id.
type MessagingGateway interface {
	Send(ctx context.Context, to, from, body string) (string, error)
}

// TextGenerator produces free text for a prompt (an LLM behind an
// OpenAI-compatible endpoint in production).
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// SpeechSynthesizer narrates text with the given voice. ContentType reports
// the MIME type of the returned audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
	ContentType() string
}

// RecordStore persists lullaby records. Find returns newest first.
type RecordStore interface {
	Insert(ctx context.Context, rec *LullabyRecord) error
	Get(ctx context.Context, id string) (*LullabyRecord, error)
	Find(ctx context.Context, filter RecordFilter) ([]*LullabyRecord, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore keeps audio content addressed by an opaque reference.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// EscalationState remembers when each source last escalated.
//
// TryAcquire is a single atomic compare-and-update: it reports true and
// records now as the last escalation when the source has never escalated or
// its last escalation is at least window old, and reports false otherwise.
type EscalationState interface {
	TryAcquire(ctx context.Context, sourceID string, now time.Time, window time.Duration) (bool, error)
}

// Clock abstracts time for the decision policy.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
